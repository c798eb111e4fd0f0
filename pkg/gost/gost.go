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

// Package gost adapts GOST R 34.10 keys from gogost to the X.509 and PKCS#8
// encodings used by certificates, key containers and PKCS#11 tokens.
//
// Digests are handed to the signature primitive in the byte order produced
// by the GOST R 34.11 hash, which is the order PKCS#11 tokens accept for
// CKM_GOSTR3410. Signatures are s||r, each big-endian and half the
// signature length.
package gost

import (
	"encoding/asn1"
	"errors"
	"fmt"
	"io"

	"go.cypherpunks.ru/gogost/v5/gost3410"
)

var (
	// ErrUnsupportedParamSet indicates a curve parameter set with no known curve
	ErrUnsupportedParamSet = errors.New("gost: unsupported parameter set")

	// ErrMalformedKey indicates a key encoding that could not be decoded
	ErrMalformedKey = errors.New("gost: malformed key")

	// ErrNotGOSTKey indicates a key whose algorithm is not GOST R 34.10
	ErrNotGOSTKey = errors.New("gost: not a GOST R 34.10 key")
)

// Public key algorithm and hash parameter identifiers.
var (
	OIDPublicKey2001    = asn1.ObjectIdentifier{1, 2, 643, 2, 2, 19}
	OIDPublicKey2012256 = asn1.ObjectIdentifier{1, 2, 643, 7, 1, 1, 1, 1}
	OIDPublicKey2012512 = asn1.ObjectIdentifier{1, 2, 643, 7, 1, 1, 1, 2}

	OIDDigest94      = asn1.ObjectIdentifier{1, 2, 643, 2, 2, 30, 1}
	OIDDigest2012256 = asn1.ObjectIdentifier{1, 2, 643, 7, 1, 1, 2, 2}
	OIDDigest2012512 = asn1.ObjectIdentifier{1, 2, 643, 7, 1, 1, 2, 3}
)

// Curve parameter set identifiers.
var (
	OIDCryptoProA    = asn1.ObjectIdentifier{1, 2, 643, 2, 2, 35, 1}
	OIDCryptoProB    = asn1.ObjectIdentifier{1, 2, 643, 2, 2, 35, 2}
	OIDCryptoProC    = asn1.ObjectIdentifier{1, 2, 643, 2, 2, 35, 3}
	OIDCryptoProXchA = asn1.ObjectIdentifier{1, 2, 643, 2, 2, 36, 0}
	OIDCryptoProXchB = asn1.ObjectIdentifier{1, 2, 643, 2, 2, 36, 1}
	OIDTC26256A      = asn1.ObjectIdentifier{1, 2, 643, 7, 1, 2, 1, 1, 1}
	OIDTC26256B      = asn1.ObjectIdentifier{1, 2, 643, 7, 1, 2, 1, 1, 2}
	OIDTC26256C      = asn1.ObjectIdentifier{1, 2, 643, 7, 1, 2, 1, 1, 3}
	OIDTC26256D      = asn1.ObjectIdentifier{1, 2, 643, 7, 1, 2, 1, 1, 4}
	OIDTC26512A      = asn1.ObjectIdentifier{1, 2, 643, 7, 1, 2, 1, 2, 1}
	OIDTC26512B      = asn1.ObjectIdentifier{1, 2, 643, 7, 1, 2, 1, 2, 2}
	OIDTC26512C      = asn1.ObjectIdentifier{1, 2, 643, 7, 1, 2, 1, 2, 3}
)

type paramSet struct {
	oid   asn1.ObjectIdentifier
	curve func() *gost3410.Curve
	size  int
}

var paramSets = []paramSet{
	{OIDCryptoProA, gost3410.CurveIdGostR34102001CryptoProAParamSet, 32},
	{OIDCryptoProB, gost3410.CurveIdGostR34102001CryptoProBParamSet, 32},
	{OIDCryptoProC, gost3410.CurveIdGostR34102001CryptoProCParamSet, 32},
	{OIDCryptoProXchA, gost3410.CurveIdGostR34102001CryptoProXchAParamSet, 32},
	{OIDCryptoProXchB, gost3410.CurveIdGostR34102001CryptoProXchBParamSet, 32},
	{OIDTC26256A, gost3410.CurveIdtc26gost34102012256paramSetA, 32},
	{OIDTC26256B, gost3410.CurveIdtc26gost34102012256paramSetB, 32},
	{OIDTC26256C, gost3410.CurveIdtc26gost34102012256paramSetC, 32},
	{OIDTC26256D, gost3410.CurveIdtc26gost34102012256paramSetD, 32},
	{OIDTC26512A, gost3410.CurveIdtc26gost34102012512paramSetA, 64},
	{OIDTC26512B, gost3410.CurveIdtc26gost34102012512paramSetB, 64},
	{OIDTC26512C, gost3410.CurveIdtc26gost34102012512paramSetC, 64},
}

func lookupParamSet(oid asn1.ObjectIdentifier) (paramSet, error) {
	for _, ps := range paramSets {
		if ps.oid.Equal(oid) {
			return ps, nil
		}
	}
	return paramSet{}, fmt.Errorf("%w: %s", ErrUnsupportedParamSet, oid)
}

// Params identifies the algorithm and domain parameters of a key.
type Params struct {
	// Algorithm is the public key algorithm identifier
	Algorithm asn1.ObjectIdentifier

	// ParamSet selects the curve
	ParamSet asn1.ObjectIdentifier

	// Digest selects the hash paired with the key
	Digest asn1.ObjectIdentifier
}

// ParamsFor returns the GOST R 34.10-2012 parameters for a curve parameter
// set; the key size follows from the curve.
func ParamsFor(paramSetOID asn1.ObjectIdentifier) (Params, error) {
	ps, err := lookupParamSet(paramSetOID)
	if err != nil {
		return Params{}, err
	}
	if ps.size == 64 {
		return Params{Algorithm: OIDPublicKey2012512, ParamSet: ps.oid, Digest: OIDDigest2012512}, nil
	}
	return Params{Algorithm: OIDPublicKey2012256, ParamSet: ps.oid, Digest: OIDDigest2012256}, nil
}

// IsGOSTKeyAlgorithm reports whether oid identifies a GOST R 34.10 public key.
func IsGOSTKeyAlgorithm(oid asn1.ObjectIdentifier) bool {
	return oid.Equal(OIDPublicKey2001) ||
		oid.Equal(OIDPublicKey2012256) ||
		oid.Equal(OIDPublicKey2012512)
}

// PrivateKey is a GOST R 34.10 private key together with its parameters.
type PrivateKey struct {
	Params
	key *gost3410.PrivateKey
}

// PublicKey is a GOST R 34.10 public key together with its parameters.
type PublicKey struct {
	Params
	key *gost3410.PublicKey
}

// GenerateKey creates a GOST R 34.10-2012 key on the curve named by
// paramSetOID.
func GenerateKey(paramSetOID asn1.ObjectIdentifier, rand io.Reader) (*PrivateKey, error) {
	params, err := ParamsFor(paramSetOID)
	if err != nil {
		return nil, err
	}
	ps, _ := lookupParamSet(paramSetOID)
	raw := make([]byte, ps.size)
	if _, err := io.ReadFull(rand, raw); err != nil {
		return nil, fmt.Errorf("gost: reading key material: %w", err)
	}
	// keep the scalar below the subgroup order of every supported curve
	raw[len(raw)-1] &= 0x1f
	return NewPrivateKey(params, raw)
}

// NewPrivateKey builds a private key from its little-endian raw encoding.
func NewPrivateKey(params Params, raw []byte) (*PrivateKey, error) {
	ps, err := lookupParamSet(params.ParamSet)
	if err != nil {
		return nil, err
	}
	if len(raw) != ps.size {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrMalformedKey, ps.size, len(raw))
	}
	key, err := gost3410.NewPrivateKey(ps.curve(), raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return &PrivateKey{Params: params, key: key}, nil
}

// NewPublicKey builds a public key from its raw little-endian X||Y encoding,
// the CKA_VALUE of a PKCS#11 GOST public key object.
func NewPublicKey(params Params, raw []byte) (*PublicKey, error) {
	ps, err := lookupParamSet(params.ParamSet)
	if err != nil {
		return nil, err
	}
	if len(raw) != 2*ps.size {
		return nil, fmt.Errorf("%w: public key must be %d bytes, got %d", ErrMalformedKey, 2*ps.size, len(raw))
	}
	key, err := gost3410.NewPublicKey(ps.curve(), raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return &PublicKey{Params: params, key: key}, nil
}

// Raw returns the little-endian private scalar.
func (k *PrivateKey) Raw() []byte {
	return k.key.Raw()
}

// Public derives the public key.
func (k *PrivateKey) Public() (*PublicKey, error) {
	pub, err := k.key.PublicKey()
	if err != nil {
		return nil, err
	}
	return &PublicKey{Params: k.Params, key: pub}, nil
}

// Sign signs a GOST R 34.11 digest.
func (k *PrivateKey) Sign(rand io.Reader, digest []byte) ([]byte, error) {
	return k.key.SignDigest(toBigEndian(digest), rand)
}

// Raw returns the little-endian X||Y point encoding.
func (k *PublicKey) Raw() []byte {
	return k.key.Raw()
}

// Verify reports whether signature is valid for digest.
func (k *PublicKey) Verify(digest, signature []byte) (bool, error) {
	return k.key.VerifyDigest(toBigEndian(digest), signature)
}

// Hash digests are little-endian integers; gogost reads them big-endian.
func toBigEndian(digest []byte) []byte {
	out := make([]byte, len(digest))
	for i := range digest {
		out[i] = digest[len(digest)-1-i]
	}
	return out
}
