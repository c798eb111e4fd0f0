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

package algorithm

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// ErrMalformedCertificate indicates a certificate whose outer structure
// could not be decoded
var ErrMalformedCertificate = errors.New("algorithm: malformed certificate")

// PublicKeyOID returns the algorithm identifier of the certificate's
// subject public key.
func PublicKeyOID(cert *x509.Certificate) (asn1.ObjectIdentifier, error) {
	input := cryptobyte.String(cert.RawSubjectPublicKeyInfo)
	var spki, algID cryptobyte.String
	var oid asn1.ObjectIdentifier
	if !input.ReadASN1(&spki, cryptobyte_asn1.SEQUENCE) ||
		!spki.ReadASN1(&algID, cryptobyte_asn1.SEQUENCE) ||
		!algID.ReadASN1ObjectIdentifier(&oid) {
		return nil, fmt.Errorf("%w: subject public key info", ErrMalformedCertificate)
	}
	return oid, nil
}

// CertificateSignatureOID returns the signatureAlgorithm identifier stored
// in the certificate, i.e. the algorithm the issuer signed it with.
func CertificateSignatureOID(cert *x509.Certificate) (asn1.ObjectIdentifier, error) {
	input := cryptobyte.String(cert.Raw)
	var certificate, algID cryptobyte.String
	var oid asn1.ObjectIdentifier
	if !input.ReadASN1(&certificate, cryptobyte_asn1.SEQUENCE) ||
		!certificate.SkipASN1(cryptobyte_asn1.SEQUENCE) ||
		!certificate.ReadASN1(&algID, cryptobyte_asn1.SEQUENCE) ||
		!algID.ReadASN1ObjectIdentifier(&oid) {
		return nil, fmt.Errorf("%w: signature algorithm", ErrMalformedCertificate)
	}
	return oid, nil
}

// ForCertificate resolves the signature algorithm used to sign with the
// private key matching cert.
//
// GOST keys map through DefaultSignatureOID. An RSA key carries no digest
// choice of its own, so the certificate's stored signature algorithm is used
// when it is an RSA entry and SHA-256 otherwise.
func ForCertificate(cert *x509.Certificate) (*SignatureAlgorithm, error) {
	keyOID, err := PublicKeyOID(cert)
	if err != nil {
		return nil, err
	}
	if !keyOID.Equal(OIDRSAEncryption) {
		return SignatureFor(DefaultSignatureOID(keyOID))
	}
	sigOID, err := CertificateSignatureOID(cert)
	if err != nil {
		return nil, err
	}
	if s, err := SignatureFor(sigOID); err == nil && !s.National {
		return s, nil
	}
	return RSASHA256, nil
}

// Identifier returns the AlgorithmIdentifier of the digest as it appears
// inside a DigestInfo. RSA-family digests carry an explicit NULL parameter.
func (d *DigestAlgorithm) Identifier() pkix.AlgorithmIdentifier {
	id := pkix.AlgorithmIdentifier{Algorithm: d.OID}
	if !d.National {
		id.Parameters = asn1.NullRawValue
	}
	return id
}

type digestInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	Digest    []byte
}

// DigestInfo returns the DER encoding of the PKCS#1 DigestInfo structure
// pairing the digest algorithm identifier with sum.
func DigestInfo(d *DigestAlgorithm, sum []byte) ([]byte, error) {
	if len(sum) != d.Size {
		return nil, fmt.Errorf("algorithm: %s digest must be %d bytes, got %d", d.Name, d.Size, len(sum))
	}
	return asn1.Marshal(digestInfo{Algorithm: d.Identifier(), Digest: sum})
}
