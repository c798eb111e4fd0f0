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
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/youmark/pkcs8"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/jeremyhahn/go-signer/pkg/gost"
)

// MarshalPrivateKey encodes key as unencrypted PKCS#8.
//
// Supported key types: *rsa.PrivateKey, *gost.PrivateKey
func MarshalPrivateKey(key any) ([]byte, error) {
	switch k := key.(type) {
	case *gost.PrivateKey:
		return gost.MarshalPKCS8PrivateKey(k)
	case *rsa.PrivateKey:
		der, err := pkcs8.MarshalPrivateKey(k, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal PKCS#8: %w", err)
		}
		return der, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
}

// ParsePrivateKey decodes an unencrypted PKCS#8 RSA or GOST R 34.10 key.
func ParsePrivateKey(der []byte) (any, error) {
	gostKey, err := gost.ParsePKCS8PrivateKey(der)
	if err == nil {
		return gostKey, nil
	}
	if !errors.Is(err, gost.ErrNotGOSTKey) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	key, err := pkcs8.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
	return rsaKey, nil
}

// KeyAlgorithm names the algorithm of key for display.
func KeyAlgorithm(key any) string {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return fmt.Sprintf("RSA-%d", k.N.BitLen())
	case *gost.PrivateKey:
		switch {
		case k.Algorithm.Equal(gost.OIDPublicKey2012512):
			return "GOSTR3410_2012_512"
		case k.Algorithm.Equal(gost.OIDPublicKey2001):
			return "GOSTR3410_2001"
		default:
			return "GOSTR3410_2012_256"
		}
	}
	return fmt.Sprintf("%T", key)
}

// MatchCertificate verifies that cert holds the public half of key.
func MatchCertificate(key any, cert *x509.Certificate) error {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok || !k.PublicKey.Equal(pub) {
			return fmt.Errorf("%w: %s", ErrKeyMismatch, cert.Subject.CommonName)
		}
		return nil
	case *gost.PrivateKey:
		pub, err := gost.ParseCertificatePublicKey(cert)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrKeyMismatch, cert.Subject.CommonName, err)
		}
		derived, err := k.Public()
		if err != nil {
			return err
		}
		if !pub.ParamSet.Equal(k.ParamSet) || !bytes.Equal(pub.Raw(), derived.Raw()) {
			return fmt.Errorf("%w: %s", ErrKeyMismatch, cert.Subject.CommonName)
		}
		return nil
	}
	return fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
}

// ParsePEMPrivateKey decodes the first private key block in data. PKCS#8
// ("PRIVATE KEY"), encrypted PKCS#8 ("ENCRYPTED PRIVATE KEY") and PKCS#1
// ("RSA PRIVATE KEY") blocks are accepted. Encrypted blocks hold RSA keys
// only.
func ParsePEMPrivateKey(data, password []byte) (any, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("%w: no private key block", ErrInvalidFormat)
		}
		switch block.Type {
		case "PRIVATE KEY":
			return ParsePrivateKey(block.Bytes)
		case "ENCRYPTED PRIVATE KEY":
			key, err := pkcs8.ParsePKCS8PrivateKey(block.Bytes, password)
			if err != nil {
				if strings.Contains(err.Error(), "incorrect password") {
					return nil, ErrInvalidPassword
				}
				return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
			}
			if _, ok := key.(*rsa.PrivateKey); !ok {
				return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
			}
			return key, nil
		case "RSA PRIVATE KEY":
			key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
			}
			return key, nil
		}
	}
}

// ParsePEMCertificates decodes every certificate block in data, in order.
func ParsePEMCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: certificate %d: %v", ErrInvalidFormat, len(certs), err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("%w: no certificates", ErrInvalidFormat)
	}
	return certs, nil
}

// EncodePEMCertificates encodes certs as concatenated PEM blocks.
func EncodePEMCertificates(certs []*x509.Certificate) []byte {
	var buf bytes.Buffer
	for _, cert := range certs {
		_ = pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	}
	return buf.Bytes()
}

// ImportPKCS12 decodes a PKCS#12 file into a key and its chain, leaf
// first.
func ImportPKCS12(data []byte, password string) (any, []*x509.Certificate, error) {
	key, cert, caCerts, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return nil, nil, ErrInvalidPassword
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if _, ok := key.(*rsa.PrivateKey); !ok {
		return nil, nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
	return key, append([]*x509.Certificate{cert}, caCerts...), nil
}
