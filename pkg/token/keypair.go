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

package token

import (
	"bytes"
	"crypto/x509"
	"fmt"

	"github.com/miekg/pkcs11"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/jeremyhahn/go-signer/pkg/algorithm"
	"github.com/jeremyhahn/go-signer/pkg/gost"
)

// KeyPair references the public and private key objects matching a
// certificate. Handles are valid only for the session that found them.
type KeyPair struct {
	Public  pkcs11.ObjectHandle
	Private pkcs11.ObjectHandle
	ID      []byte
}

// FindKeyPair locates the public key object matching cert's public key,
// then the private key object sharing its CKA_ID.
func (s *Session) FindKeyPair(cert *x509.Certificate) (*KeyPair, error) {
	template, err := PublicKeyTemplate(cert)
	if err != nil {
		return nil, err
	}
	pub, err := s.FindObject(template)
	if err != nil {
		return nil, fmt.Errorf("public key for %q: %w", cert.Subject.CommonName, err)
	}
	id, err := s.Attribute(pub, pkcs11.CKA_ID)
	if err != nil {
		return nil, fmt.Errorf("public key id for %q: %w", cert.Subject.CommonName, err)
	}
	priv, err := s.FindObject([]*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_ID, id),
	})
	if err != nil {
		return nil, fmt.Errorf("private key for %q: %w", cert.Subject.CommonName, err)
	}
	s.logger.Debugf("key pair for %q: public=%d private=%d id=%x", cert.Subject.CommonName, pub, priv, id)
	return &KeyPair{Public: pub, Private: priv, ID: id}, nil
}

// PublicKeyTemplate builds the search template for the public key object
// matching cert. RSA keys match on modulus and exponent, GOST keys on the
// raw key value.
func PublicKeyTemplate(cert *x509.Certificate) ([]*pkcs11.Attribute, error) {
	keyOID, err := algorithm.PublicKeyOID(cert)
	if err != nil {
		return nil, err
	}
	switch {
	case keyOID.Equal(algorithm.OIDRSAEncryption):
		modulus, exponent, err := rsaPublicKeyComponents(cert.RawSubjectPublicKeyInfo)
		if err != nil {
			return nil, err
		}
		return RSAPublicKeyTemplate(modulus, exponent), nil
	case gost.IsGOSTKeyAlgorithm(keyOID):
		value, err := gost.PublicKeyValue(cert.RawSubjectPublicKeyInfo)
		if err != nil {
			return nil, err
		}
		return []*pkcs11.Attribute{
			pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
			pkcs11.NewAttribute(pkcs11.CKA_VALUE, value),
		}, nil
	}
	return nil, fmt.Errorf("%w: public key %s", algorithm.ErrUnsupportedAlgorithm, keyOID)
}

// RSAPublicKeyTemplate builds an RSA public key template. Leading zero
// bytes of both integers are dropped since tokens store them unsigned.
func RSAPublicKeyTemplate(modulus, exponent []byte) []*pkcs11.Attribute {
	return []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS, StripLeadingZeros(modulus)),
		pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, StripLeadingZeros(exponent)),
	}
}

// StripLeadingZeros returns b without its leading zero bytes.
func StripLeadingZeros(b []byte) []byte {
	return bytes.TrimLeft(b, "\x00")
}

// rsaPublicKeyComponents returns the modulus and exponent INTEGER contents
// exactly as encoded, sign byte included.
func rsaPublicKeyComponents(spki []byte) ([]byte, []byte, error) {
	input := cryptobyte.String(spki)
	var info, key cryptobyte.String
	var bits cryptobyte.String
	var modulus, exponent cryptobyte.String
	if !input.ReadASN1(&info, cryptobyte_asn1.SEQUENCE) ||
		!info.SkipASN1(cryptobyte_asn1.SEQUENCE) ||
		!info.ReadASN1(&bits, cryptobyte_asn1.BIT_STRING) ||
		len(bits) == 0 || bits[0] != 0 {
		return nil, nil, fmt.Errorf("%w: RSA subject public key info", algorithm.ErrMalformedCertificate)
	}
	bits = bits[1:]
	if !bits.ReadASN1(&key, cryptobyte_asn1.SEQUENCE) ||
		!key.ReadASN1(&modulus, cryptobyte_asn1.INTEGER) ||
		!key.ReadASN1(&exponent, cryptobyte_asn1.INTEGER) {
		return nil, nil, fmt.Errorf("%w: RSA public key", algorithm.ErrMalformedCertificate)
	}
	return modulus, exponent, nil
}
