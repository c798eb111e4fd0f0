// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-signer.
//
// go-signer is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package digest computes message digests incrementally, either on a
// PKCS#11 token or in process.
//
// An Engine moves through three states. It starts Uninitialized, the first
// Write makes it Accumulating, and Sum makes it Finalized. A finalized
// engine rejects Write and Sum with ErrFinalized until Reset.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"io"

	"go.cypherpunks.ru/gogost/v5/gost28147"
	"go.cypherpunks.ru/gogost/v5/gost341194"
	"go.cypherpunks.ru/gogost/v5/gost34112012256"
	"go.cypherpunks.ru/gogost/v5/gost34112012512"
	"golang.org/x/crypto/ripemd160"

	"github.com/jeremyhahn/go-signer/pkg/algorithm"
)

var (
	// ErrFinalized indicates use of an engine after Sum without Reset
	ErrFinalized = errors.New("digest: engine already finalized")

	// ErrNoSoftwareHash indicates an algorithm with no in-process
	// implementation
	ErrNoSoftwareHash = errors.New("digest: no software implementation")
)

// Engine is an incremental digest calculator.
type Engine interface {
	io.Writer

	// Sum finalizes the digest and returns it. Sum on an engine that has
	// seen no Write digests the empty message.
	Sum() ([]byte, error)

	// Reset returns the engine to its initial state, discarding any
	// partial computation.
	Reset() error

	// Algorithm returns the digest algorithm computed by the engine
	Algorithm() *algorithm.DigestAlgorithm

	// Size returns the digest length in bytes
	Size() int
}

type state int

const (
	uninitialized state = iota
	accumulating
	finalized
)

var softwareHashes = map[string]func() hash.Hash{
	algorithm.GOSTR341194.Name: func() hash.Hash {
		return gost341194.New(&gost28147.SboxIdGostR341194CryptoProParamSet)
	},
	algorithm.GOSTR34112012256.Name: func() hash.Hash { return gost34112012256.New() },
	algorithm.GOSTR34112012512.Name: func() hash.Hash { return gost34112012512.New() },
	algorithm.SHA1.Name:             sha1.New,
	algorithm.SHA224.Name:           sha256.New224,
	algorithm.SHA256.Name:           sha256.New,
	algorithm.SHA384.Name:           sha512.New384,
	algorithm.SHA512.Name:           sha512.New,
	algorithm.MD5.Name:              md5.New,
	algorithm.RIPEMD160.Name:        ripemd160.New,
}

// NewHash returns an in-process hash for alg.
func NewHash(alg *algorithm.DigestAlgorithm) (hash.Hash, error) {
	newHash, ok := softwareHashes[alg.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSoftwareHash, alg)
	}
	return newHash(), nil
}

// Sum digests data in one call with an in-process hash.
func Sum(alg *algorithm.DigestAlgorithm, data []byte) ([]byte, error) {
	h, err := NewHash(alg)
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return h.Sum(nil), nil
}

type softwareEngine struct {
	alg   *algorithm.DigestAlgorithm
	hash  hash.Hash
	state state
}

// NewSoftware returns an engine computing alg in process. GOST R 34.11
// hashes come from gogost and RIPEMD-160 from x/crypto. RIPEMD-128 and
// RIPEMD-256 are not available.
func NewSoftware(alg *algorithm.DigestAlgorithm) (Engine, error) {
	h, err := NewHash(alg)
	if err != nil {
		return nil, err
	}
	return &softwareEngine{alg: alg, hash: h}, nil
}

func (e *softwareEngine) Write(p []byte) (int, error) {
	if e.state == finalized {
		return 0, ErrFinalized
	}
	e.state = accumulating
	return e.hash.Write(p)
}

func (e *softwareEngine) Sum() ([]byte, error) {
	if e.state == finalized {
		return nil, ErrFinalized
	}
	e.state = finalized
	return e.hash.Sum(nil), nil
}

func (e *softwareEngine) Reset() error {
	e.hash.Reset()
	e.state = uninitialized
	return nil
}

func (e *softwareEngine) Algorithm() *algorithm.DigestAlgorithm {
	return e.alg
}

func (e *softwareEngine) Size() int {
	return e.alg.Size
}
