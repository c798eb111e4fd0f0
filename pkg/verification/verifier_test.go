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

package verification_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-signer/internal/testutil"
	"github.com/jeremyhahn/go-signer/pkg/algorithm"
	"github.com/jeremyhahn/go-signer/pkg/digest"
	"github.com/jeremyhahn/go-signer/pkg/signing"
	"github.com/jeremyhahn/go-signer/pkg/verification"
)

func sign(t *testing.T, id *testutil.Identity, data []byte) ([]byte, *algorithm.SignatureAlgorithm) {
	t.Helper()
	alg, err := algorithm.ForCertificate(id.Cert)
	require.NoError(t, err)
	signer, err := signing.NewSigner(id.PrivateKey(), alg)
	require.NoError(t, err)
	sig, err := signer.Sign(rand.Reader, nil, signing.NewSignerOpts(data))
	require.NoError(t, err)
	return sig, alg
}

func TestVerifyData(t *testing.T) {
	tests := []struct {
		name    string
		keyType testutil.KeyType
	}{
		{name: "rsa", keyType: testutil.KeyRSA},
		{name: "gost 2012-256", keyType: testutil.KeyGOST256},
		{name: "gost 2012-512", keyType: testutil.KeyGOST512},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := testutil.NewIdentity(t, testutil.CertOptions{CommonName: "signer", KeyType: tt.keyType})
			other := testutil.NewIdentity(t, testutil.CertOptions{CommonName: "other", KeyType: tt.keyType})
			sig, _ := sign(t, id, []byte("hello"))

			v := verification.NewVerifier(nil)
			require.NoError(t, v.VerifyData(id.Cert, []byte("hello"), sig, nil))

			err := v.VerifyData(other.Cert, []byte("hello"), sig, nil)
			assert.ErrorIs(t, err, verification.ErrSignatureVerification)

			err = v.VerifyData(id.Cert, []byte("hello!"), sig, nil)
			assert.ErrorIs(t, err, verification.ErrSignatureVerification)

			tampered := append([]byte{}, sig...)
			tampered[len(tampered)/2] ^= 0x01
			err = v.VerifyData(id.Cert, []byte("hello"), tampered, nil)
			assert.ErrorIs(t, err, verification.ErrSignatureVerification)
		})
	}
}

func TestVerify_AlgorithmMismatch(t *testing.T) {
	gostID := testutil.NewIdentity(t, testutil.CertOptions{CommonName: "gost", KeyType: testutil.KeyGOST256})
	rsaID := testutil.NewIdentity(t, testutil.CertOptions{CommonName: "rsa", KeyType: testutil.KeyRSA})
	v := verification.NewVerifier(nil)

	err := v.VerifyData(gostID.Cert, []byte("x"), make([]byte, 64), &verification.VerifyOpts{Algorithm: algorithm.RSASHA256})
	assert.ErrorIs(t, err, verification.ErrInvalidSignatureAlgorithm)

	err = v.VerifyData(rsaID.Cert, []byte("x"), make([]byte, 256), &verification.VerifyOpts{Algorithm: algorithm.GOSTR34102012256})
	assert.ErrorIs(t, err, verification.ErrInvalidSignatureAlgorithm)

	err = v.Verify(gostID.Cert, make([]byte, 20), make([]byte, 64), nil)
	assert.ErrorIs(t, err, verification.ErrInvalidSignatureAlgorithm)

	err = v.VerifyData(gostID.Cert, []byte("x"), make([]byte, 10), nil)
	assert.ErrorIs(t, err, verification.ErrSignatureVerification)
}

func TestVerify_RSADigestOverride(t *testing.T) {
	id := testutil.NewIdentity(t, testutil.CertOptions{CommonName: "rsa", KeyType: testutil.KeyRSA})
	signer, err := signing.NewSigner(id.RSAKey, algorithm.RSASHA512)
	require.NoError(t, err)
	sig, err := signer.Sign(rand.Reader, nil, signing.NewSignerOpts([]byte("data")))
	require.NoError(t, err)

	v := verification.NewVerifier(nil)
	require.NoError(t, v.VerifyData(id.Cert, []byte("data"), sig, &verification.VerifyOpts{Algorithm: algorithm.RSASHA512}))

	// the certificate itself is signed with SHA-256
	assert.Error(t, v.VerifyData(id.Cert, []byte("data"), sig, nil))
}

func TestVerify_IntegrityCheck(t *testing.T) {
	id := testutil.NewIdentity(t, testutil.CertOptions{CommonName: "signer", KeyType: testutil.KeyGOST256})
	sig, alg := sign(t, id, []byte("hello"))
	hashed, err := digest.Sum(alg.Digest, []byte("hello"))
	require.NoError(t, err)

	checksums := verification.Checksums{"hello.txt": verification.HexDigest(hashed)}
	v := verification.NewVerifier(checksums)

	opts := &verification.VerifyOpts{BlobCN: []byte("hello.txt"), IntegrityCheck: true}
	require.NoError(t, v.VerifyData(id.Cert, []byte("hello"), sig, opts))

	checksums["hello.txt"] = verification.HexDigest(make([]byte, 32))
	err = v.VerifyData(id.Cert, []byte("hello"), sig, opts)
	assert.ErrorIs(t, err, verification.ErrFileIntegrityCheckFailed)

	err = v.VerifyData(id.Cert, []byte("hello"), sig, &verification.VerifyOpts{BlobCN: []byte("other"), IntegrityCheck: true})
	assert.ErrorIs(t, err, verification.ErrChecksumNotFound)

	err = v.VerifyData(id.Cert, []byte("hello"), sig, &verification.VerifyOpts{IntegrityCheck: true})
	assert.ErrorIs(t, err, verification.ErrInvalidBlobName)

	err = verification.NewVerifier(nil).VerifyData(id.Cert, []byte("hello"), sig, opts)
	assert.ErrorIs(t, err, verification.ErrChecksumNotFound)
}
