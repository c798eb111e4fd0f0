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

// Package algorithm holds the static signature and digest algorithm tables
// that map certificate algorithm identifiers to PKCS#11 mechanism codes.
//
// The tables are package-level values initialized at program start and never
// mutated afterwards. Lookups compare object identifiers only; algorithm
// parameters are ignored.
package algorithm

import (
	"encoding/asn1"
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedAlgorithm indicates an identifier with no registry entry
	ErrUnsupportedAlgorithm = errors.New("algorithm: unsupported algorithm")

	// ErrNoMechanism indicates an algorithm the token cannot compute natively
	ErrNoMechanism = errors.New("algorithm: no token mechanism for algorithm")
)

// DigestAlgorithm describes a hash function known to the registry.
type DigestAlgorithm struct {
	// Name is the logical algorithm name, e.g. "GOSTR3411_2012_256"
	Name string

	// Mechanism is the PKCS#11 mechanism code; zero when the token has none
	Mechanism uint

	// OID is the digest algorithm identifier
	OID asn1.ObjectIdentifier

	// Params is the DER-encoded hash paramset passed to C_DigestInit.
	// Nil selects the token's native hardware implementation.
	Params []byte

	// Size is the digest length in bytes
	Size int

	// National marks the GOST R 34.11 family
	National bool
}

// String returns the logical name.
func (d *DigestAlgorithm) String() string {
	return d.Name
}

// HasMechanism reports whether the token can compute this digest.
func (d *DigestAlgorithm) HasMechanism() bool {
	return d.Mechanism != 0
}

// SignatureAlgorithm binds a signature identifier to a mechanism code and
// the digest algorithm it signs over.
type SignatureAlgorithm struct {
	// Name is the logical algorithm name, e.g. "GOSTR3410_2012_256"
	Name string

	// Mechanism is the PKCS#11 signing mechanism code
	Mechanism uint

	// OID is the signature algorithm identifier
	OID asn1.ObjectIdentifier

	// Digest is the hash applied before signing
	Digest *DigestAlgorithm

	// National marks GOST R 34.10 signatures, which sign the raw digest.
	// All other entries are RSA PKCS#1 v1.5 and sign a DigestInfo.
	National bool
}

// String returns the logical name.
func (s *SignatureAlgorithm) String() string {
	return s.Name
}

// SignatureFor returns the signature entry registered under oid.
func SignatureFor(oid asn1.ObjectIdentifier) (*SignatureAlgorithm, error) {
	for _, s := range signatures {
		if s.OID.Equal(oid) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: signature %s", ErrUnsupportedAlgorithm, oid)
}

// DigestFor returns the digest algorithm used by the signature registered
// under signatureOID.
func DigestFor(signatureOID asn1.ObjectIdentifier) (*DigestAlgorithm, error) {
	s, err := SignatureFor(signatureOID)
	if err != nil {
		return nil, err
	}
	return s.Digest, nil
}

// DigestByOID returns the digest entry registered under oid.
func DigestByOID(oid asn1.ObjectIdentifier) (*DigestAlgorithm, error) {
	for _, d := range digests {
		if d.OID.Equal(oid) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: digest %s", ErrUnsupportedAlgorithm, oid)
}

// DigestByName returns the digest entry with the given logical name.
func DigestByName(name string) (*DigestAlgorithm, error) {
	for _, d := range digests {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: digest %q", ErrUnsupportedAlgorithm, name)
}

// DefaultSignatureOID maps a public key algorithm identifier to the signature
// identifier used with it. GOST R 34.10-2012 certificates carry a bare key
// identifier; the signature identifier is derived from the key size. Other
// identifiers are returned unchanged.
func DefaultSignatureOID(publicKeyOID asn1.ObjectIdentifier) asn1.ObjectIdentifier {
	switch {
	case publicKeyOID.Equal(OIDGOST2012PublicKey256):
		return OIDGOST2012Signature256
	case publicKeyOID.Equal(OIDGOST2012PublicKey512):
		return OIDGOST2012Signature512
	case publicKeyOID.Equal(OIDGOST2001PublicKey):
		return OIDGOST2001Signature
	}
	return publicKeyOID
}

// Signatures returns every registered signature entry in table order.
func Signatures() []*SignatureAlgorithm {
	out := make([]*SignatureAlgorithm, len(signatures))
	copy(out, signatures)
	return out
}

// Digests returns every registered digest entry in table order.
func Digests() []*DigestAlgorithm {
	out := make([]*DigestAlgorithm, len(digests))
	copy(out, digests)
	return out
}
