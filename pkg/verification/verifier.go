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

// Package verification checks raw RSA and GOST R 34.10 signatures against
// a signer certificate.
package verification

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"github.com/jeremyhahn/go-signer/pkg/algorithm"
	"github.com/jeremyhahn/go-signer/pkg/digest"
	"github.com/jeremyhahn/go-signer/pkg/gost"
)

// ChecksumProvider defines the interface for retrieving stored checksums
// for integrity verification. Implementations should return the checksum
// associated with the blob name specified in VerifyOpts.
type ChecksumProvider interface {
	// Checksum retrieves the stored checksum for the given verification options.
	// Returns ErrChecksumNotFound if no checksum exists for the blob.
	Checksum(opts *VerifyOpts) ([]byte, error)
}

// Verifier defines the interface for signature verification operations.
type Verifier interface {
	// Verify validates a signature over a precomputed digest.
	Verify(cert *x509.Certificate, hashed, signature []byte, opts *VerifyOpts) error

	// VerifyData digests data with the signature algorithm's hash and
	// validates the signature over it.
	VerifyData(cert *x509.Certificate, data, signature []byte, opts *VerifyOpts) error
}

type verify struct {
	checksumProvider ChecksumProvider
}

// NewVerifier creates a new Verifier instance with the provided checksum provider.
// The checksumProvider is optional and only required if integrity checking will be used.
func NewVerifier(checksumProvider ChecksumProvider) Verifier {
	return &verify{
		checksumProvider: checksumProvider,
	}
}

// signatureAlgorithm returns the override from opts or the algorithm the
// certificate's key signs with.
func signatureAlgorithm(cert *x509.Certificate, opts *VerifyOpts) (*algorithm.SignatureAlgorithm, error) {
	if opts != nil && opts.Algorithm != nil {
		return opts.Algorithm, nil
	}
	return algorithm.ForCertificate(cert)
}

func (v *verify) VerifyData(cert *x509.Certificate, data, signature []byte, opts *VerifyOpts) error {
	alg, err := signatureAlgorithm(cert, opts)
	if err != nil {
		return err
	}
	hashed, err := digest.Sum(alg.Digest, data)
	if err != nil {
		return err
	}
	if opts == nil {
		opts = &VerifyOpts{}
	}
	resolved := *opts
	resolved.Algorithm = alg
	return v.Verify(cert, hashed, signature, &resolved)
}

// Verify validates a signature against the certificate's public key.
//
// GOST keys verify s||r over the raw digest. RSA keys verify PKCS#1 v1.5
// over the DigestInfo for the digest.
func (v *verify) Verify(cert *x509.Certificate, hashed, signature []byte, opts *VerifyOpts) error {
	alg, err := signatureAlgorithm(cert, opts)
	if err != nil {
		return err
	}
	if len(hashed) != alg.Digest.Size {
		return fmt.Errorf("%w: %s digest must be %d bytes, got %d",
			ErrInvalidSignatureAlgorithm, alg.Digest, alg.Digest.Size, len(hashed))
	}

	keyOID, err := algorithm.PublicKeyOID(cert)
	if err != nil {
		return err
	}
	switch {
	case gost.IsGOSTKeyAlgorithm(keyOID):
		err = v.verifyGOST(cert, alg, hashed, signature)
	case keyOID.Equal(algorithm.OIDRSAEncryption):
		err = v.verifyRSA(cert, alg, hashed, signature)
	default:
		return fmt.Errorf("%w: public key %s", ErrInvalidSignatureAlgorithm, keyOID)
	}
	if err != nil {
		return err
	}

	if opts != nil && opts.IntegrityCheck {
		return v.verifyIntegrity(hashed, opts)
	}
	return nil
}

func (v *verify) verifyGOST(cert *x509.Certificate, alg *algorithm.SignatureAlgorithm, hashed, signature []byte) error {
	if !alg.National {
		return fmt.Errorf("%w: %s with a GOST key", ErrInvalidSignatureAlgorithm, alg)
	}
	pub, err := gost.ParseCertificatePublicKey(cert)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPublicKeyGOST, err)
	}
	if len(signature) != 2*alg.Digest.Size {
		return fmt.Errorf("%w: signature must be %d bytes, got %d",
			ErrSignatureVerification, 2*alg.Digest.Size, len(signature))
	}
	ok, err := pub.Verify(hashed, signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureVerification, err)
	}
	if !ok {
		return ErrSignatureVerification
	}
	return nil
}

func (v *verify) verifyRSA(cert *x509.Certificate, alg *algorithm.SignatureAlgorithm, hashed, signature []byte) error {
	if alg.National {
		return fmt.Errorf("%w: %s with an RSA key", ErrInvalidSignatureAlgorithm, alg)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return ErrInvalidPublicKeyRSA
	}
	info, err := algorithm.DigestInfo(alg.Digest, hashed)
	if err != nil {
		return err
	}
	if err := rsa.VerifyPKCS1v15(pub, crypto.Hash(0), info, signature); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureVerification, err)
	}
	return nil
}

// verifyIntegrity checks the digest against a stored checksum
func (v *verify) verifyIntegrity(hashed []byte, opts *VerifyOpts) error {
	if opts.BlobCN == nil {
		return ErrInvalidBlobName
	}

	if v.checksumProvider == nil {
		return ErrChecksumNotFound
	}

	checksum, err := v.checksumProvider.Checksum(opts)
	if err != nil {
		return err
	}

	newSum := HexDigest(hashed)

	if !bytes.Equal(checksum, []byte(newSum)) {
		return ErrFileIntegrityCheckFailed
	}

	return nil
}
