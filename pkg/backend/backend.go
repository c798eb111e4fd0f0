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

// Package backend defines the signing capability shared by the software
// container backend and the PKCS#11 token backend. A run selects exactly
// one backend; it owns its session or container until Close.
package backend

import (
	"crypto/x509"
	"crypto/x509/pkix"

	"github.com/jeremyhahn/go-signer/pkg/algorithm"
	"github.com/jeremyhahn/go-signer/pkg/digest"
)

// Backend produces raw signatures with one private key.
type Backend interface {
	// Type returns the backend type
	Type() Type

	// SignRaw digests data with the signature algorithm's hash and signs
	// the digest. The result is a bare signature value: s||r for GOST,
	// the PKCS#1 v1.5 block for RSA.
	SignRaw(data []byte) ([]byte, error)

	// Certificate returns the signer certificate
	Certificate() (*x509.Certificate, error)

	// CertificateChain returns the signer certificate followed by its
	// issuers, as far as they are known
	CertificateChain() ([]*x509.Certificate, error)

	// DigestEngine returns a fresh engine for the digest identified by
	// alg. Only the algorithm OID is consulted.
	DigestEngine(alg pkix.AlgorithmIdentifier) (digest.Engine, error)

	// SignatureAlgorithm returns the algorithm SignRaw signs with
	SignatureAlgorithm() *algorithm.SignatureAlgorithm

	// Close releases the session or key material
	Close() error
}
