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

package keystore

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// MinSaltLength is the minimum salt length in bytes
	MinSaltLength = 16

	// KDFArgon2id names the only supported key derivation
	KDFArgon2id = "argon2id"
)

// KDFParams are the Argon2id cost parameters of a sealed entry.
type KDFParams struct {
	Name    string `yaml:"name"`
	Salt    Binary `yaml:"salt"`
	Time    uint32 `yaml:"time"`
	Memory  uint32 `yaml:"memory"`
	Threads uint8  `yaml:"threads"`
}

// DefaultKDFParams returns the cost parameters used for new entries.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Name:    KDFArgon2id,
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
	}
}

func (p KDFParams) validate() error {
	if p.Name != KDFArgon2id {
		return fmt.Errorf("%w: kdf %q", ErrInvalidFormat, p.Name)
	}
	if len(p.Salt) < MinSaltLength || p.Time == 0 || p.Memory == 0 || p.Threads == 0 {
		return fmt.Errorf("%w: argon2id parameters", ErrInvalidFormat)
	}
	return nil
}

func (p KDFParams) deriveKey(password []byte) []byte {
	return argon2.IDKey(password, p.Salt, p.Time, p.Memory, p.Threads, chacha20poly1305.KeySize)
}

// seal encrypts plaintext under a key derived from password. The alias is
// bound as additional data so entries cannot be swapped.
func seal(random io.Reader, params KDFParams, password []byte, alias string, plaintext []byte) (KDFParams, []byte, []byte, error) {
	params.Salt = make([]byte, MinSaltLength)
	if _, err := io.ReadFull(random, params.Salt); err != nil {
		return params, nil, nil, err
	}
	key := params.deriveKey(password)
	defer clear(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return params, nil, nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(random, nonce); err != nil {
		return params, nil, nil, err
	}
	return params, nonce, aead.Seal(nil, nonce, plaintext, []byte(alias)), nil
}

func open(params KDFParams, password []byte, alias string, nonce, ciphertext []byte) ([]byte, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	key := params.deriveKey(password)
	defer clear(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce length %d", ErrInvalidFormat, len(nonce))
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(alias))
	if err != nil {
		return nil, ErrInvalidPassword
	}
	return plaintext, nil
}

var defaultRand io.Reader = rand.Reader
