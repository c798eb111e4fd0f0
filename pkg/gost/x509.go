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

package gost

import (
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// MarshalPKIXPublicKey encodes pub as a DER SubjectPublicKeyInfo.
func MarshalPKIXPublicKey(pub *PublicKey) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(spki *cryptobyte.Builder) {
		addAlgorithmIdentifier(spki, pub.Params)
		var value cryptobyte.Builder
		value.AddASN1OctetString(pub.Raw())
		inner, err := value.Bytes()
		if err != nil {
			spki.SetError(err)
			return
		}
		spki.AddASN1BitString(inner)
	})
	return b.Bytes()
}

// ParsePKIXPublicKey decodes a DER SubjectPublicKeyInfo holding a GOST key.
func ParsePKIXPublicKey(der []byte) (*PublicKey, error) {
	params, raw, err := parseSubjectPublicKeyInfo(der)
	if err != nil {
		return nil, err
	}
	return NewPublicKey(params, raw)
}

// ParseCertificatePublicKey returns the GOST public key of cert.
func ParseCertificatePublicKey(cert *x509.Certificate) (*PublicKey, error) {
	return ParsePKIXPublicKey(cert.RawSubjectPublicKeyInfo)
}

// PublicKeyValue extracts the raw key octets wrapped inside the
// SubjectPublicKeyInfo bit string. Tokens store this value as the CKA_VALUE
// of the public key object.
func PublicKeyValue(der []byte) ([]byte, error) {
	_, raw, err := parseSubjectPublicKeyInfo(der)
	return raw, err
}

func parseSubjectPublicKeyInfo(der []byte) (Params, []byte, error) {
	input := cryptobyte.String(der)
	var spki cryptobyte.String
	var bits asn1.BitString
	if !input.ReadASN1(&spki, cryptobyte_asn1.SEQUENCE) {
		return Params{}, nil, fmt.Errorf("%w: subject public key info", ErrMalformedKey)
	}
	params, err := readAlgorithmIdentifier(&spki)
	if err != nil {
		return Params{}, nil, err
	}
	if !spki.ReadASN1BitString(&bits) || bits.BitLength%8 != 0 {
		return Params{}, nil, fmt.Errorf("%w: public key bit string", ErrMalformedKey)
	}
	value := cryptobyte.String(bits.Bytes)
	var raw cryptobyte.String
	if !value.ReadASN1(&raw, cryptobyte_asn1.OCTET_STRING) {
		return Params{}, nil, fmt.Errorf("%w: public key octet string", ErrMalformedKey)
	}
	return params, []byte(raw), nil
}

// MarshalPKCS8PrivateKey encodes key as an unencrypted PKCS#8
// PrivateKeyInfo with the scalar as a little-endian octet string.
func MarshalPKCS8PrivateKey(key *PrivateKey) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(info *cryptobyte.Builder) {
		info.AddASN1Int64(0)
		addAlgorithmIdentifier(info, key.Params)
		info.AddASN1(cryptobyte_asn1.OCTET_STRING, func(wrapped *cryptobyte.Builder) {
			wrapped.AddASN1OctetString(key.Raw())
		})
	})
	return b.Bytes()
}

// ParsePKCS8PrivateKey decodes a PKCS#8 PrivateKeyInfo holding a GOST key.
// The scalar may be a little-endian octet string or a big-endian integer.
func ParsePKCS8PrivateKey(der []byte) (*PrivateKey, error) {
	input := cryptobyte.String(der)
	var info, wrapped cryptobyte.String
	var version int64
	if !input.ReadASN1(&info, cryptobyte_asn1.SEQUENCE) ||
		!info.ReadASN1Integer(&version) {
		return nil, fmt.Errorf("%w: private key info", ErrMalformedKey)
	}
	params, err := readAlgorithmIdentifier(&info)
	if err != nil {
		return nil, err
	}
	if !info.ReadASN1(&wrapped, cryptobyte_asn1.OCTET_STRING) {
		return nil, fmt.Errorf("%w: private key octet string", ErrMalformedKey)
	}
	ps, err := lookupParamSet(params.ParamSet)
	if err != nil {
		return nil, err
	}

	var raw []byte
	switch {
	case wrapped.PeekASN1Tag(cryptobyte_asn1.OCTET_STRING):
		var octets cryptobyte.String
		if !wrapped.ReadASN1(&octets, cryptobyte_asn1.OCTET_STRING) {
			return nil, fmt.Errorf("%w: private key value", ErrMalformedKey)
		}
		raw = []byte(octets)
	case wrapped.PeekASN1Tag(cryptobyte_asn1.INTEGER):
		k := new(big.Int)
		if !wrapped.ReadASN1Integer(k) || k.Sign() <= 0 || k.BitLen() > 8*ps.size {
			return nil, fmt.Errorf("%w: private key value", ErrMalformedKey)
		}
		raw = littleEndian(k, ps.size)
	default:
		// bare little-endian scalar
		raw = []byte(wrapped)
	}
	return NewPrivateKey(params, raw)
}

func addAlgorithmIdentifier(b *cryptobyte.Builder, params Params) {
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(alg *cryptobyte.Builder) {
		alg.AddASN1ObjectIdentifier(params.Algorithm)
		alg.AddASN1(cryptobyte_asn1.SEQUENCE, func(p *cryptobyte.Builder) {
			p.AddASN1ObjectIdentifier(params.ParamSet)
			if len(params.Digest) > 0 {
				p.AddASN1ObjectIdentifier(params.Digest)
			}
		})
	})
}

func readAlgorithmIdentifier(s *cryptobyte.String) (Params, error) {
	var alg, p cryptobyte.String
	var params Params
	if !s.ReadASN1(&alg, cryptobyte_asn1.SEQUENCE) ||
		!alg.ReadASN1ObjectIdentifier(&params.Algorithm) {
		return Params{}, fmt.Errorf("%w: algorithm identifier", ErrMalformedKey)
	}
	if !IsGOSTKeyAlgorithm(params.Algorithm) {
		return Params{}, fmt.Errorf("%w: %s", ErrNotGOSTKey, params.Algorithm)
	}
	if !alg.ReadASN1(&p, cryptobyte_asn1.SEQUENCE) ||
		!p.ReadASN1ObjectIdentifier(&params.ParamSet) {
		return Params{}, fmt.Errorf("%w: key parameters", ErrMalformedKey)
	}
	if p.PeekASN1Tag(cryptobyte_asn1.OBJECT_IDENTIFIER) {
		if !p.ReadASN1ObjectIdentifier(&params.Digest) {
			return Params{}, fmt.Errorf("%w: digest parameter", ErrMalformedKey)
		}
	}
	return params, nil
}

func littleEndian(k *big.Int, size int) []byte {
	be := k.FillBytes(make([]byte, size))
	out := make([]byte, size)
	for i := range be {
		out[i] = be[size-1-i]
	}
	return out
}
