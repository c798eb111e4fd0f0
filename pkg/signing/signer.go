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

// Package signing produces raw signatures with in-process RSA and GOST
// R 34.10 keys. Output is byte-for-byte what a PKCS#11 token returns for
// the same key and mechanism: CKM_RSA_PKCS over a DigestInfo for RSA, and
// s||r over the raw digest for GOST.
package signing

import (
	"crypto"
	"crypto/rsa"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-signer/pkg/algorithm"
	"github.com/jeremyhahn/go-signer/pkg/gost"
)

// Signer signs digests with a private key under a fixed signature
// algorithm.
type Signer struct {
	key any
	alg *algorithm.SignatureAlgorithm
}

// NewSigner creates a signer for key, which must be an *rsa.PrivateKey or
// a *gost.PrivateKey of the family alg belongs to.
func NewSigner(key any, alg *algorithm.SignatureAlgorithm) (*Signer, error) {
	if key == nil {
		return nil, ErrSignerRequired
	}
	if alg == nil {
		return nil, fmt.Errorf("%w: no signature algorithm", ErrUnsupportedAlgorithm)
	}
	switch k := key.(type) {
	case *rsa.PrivateKey:
		if alg.National {
			return nil, fmt.Errorf("%w: RSA key with %s", ErrUnsupportedAlgorithm, alg)
		}
	case *gost.PrivateKey:
		if !alg.National || len(k.Raw()) != alg.Digest.Size {
			return nil, fmt.Errorf("%w: %s key with %s", ErrUnsupportedAlgorithm, k.Algorithm, alg)
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedAlgorithm, key)
	}
	return &Signer{key: key, alg: alg}, nil
}

// Algorithm returns the signature algorithm.
func (s *Signer) Algorithm() *algorithm.SignatureAlgorithm {
	return s.alg
}

// Public returns the public key: an *rsa.PublicKey or a *gost.PublicKey.
func (s *Signer) Public() (any, error) {
	switch k := s.key.(type) {
	case *rsa.PrivateKey:
		return &k.PublicKey, nil
	case *gost.PrivateKey:
		return k.Public()
	}
	return nil, ErrUnsupportedAlgorithm
}

// Sign signs digest, or the digest of opts.BlobData when set. rand is used
// by GOST signatures only; RSA PKCS#1 v1.5 is deterministic.
func (s *Signer) Sign(rand io.Reader, digest []byte, opts *SignerOpts) ([]byte, error) {
	actualDigest, err := opts.GetDigest(s.alg.Digest, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to get digest: %w", err)
	}
	if len(actualDigest) != s.alg.Digest.Size {
		return nil, fmt.Errorf("%w: %s needs %d bytes, got %d",
			ErrInvalidDigest, s.alg.Digest, s.alg.Digest.Size, len(actualDigest))
	}

	switch k := s.key.(type) {
	case *rsa.PrivateKey:
		return s.signRSA(k, actualDigest)
	case *gost.PrivateKey:
		return s.signGOST(rand, k, actualDigest)
	}
	return nil, ErrUnsupportedAlgorithm
}

// signRSA signs the DigestInfo with no hash prefix added, the software
// equivalent of CKM_RSA_PKCS.
func (s *Signer) signRSA(key *rsa.PrivateKey, digest []byte) ([]byte, error) {
	info, err := algorithm.DigestInfo(s.alg.Digest, digest)
	if err != nil {
		return nil, err
	}
	sig, err := rsa.SignPKCS1v15(nil, key, crypto.Hash(0), info)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	return sig, nil
}

func (s *Signer) signGOST(rand io.Reader, key *gost.PrivateKey, digest []byte) ([]byte, error) {
	sig, err := key.Sign(rand, digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	return sig, nil
}
