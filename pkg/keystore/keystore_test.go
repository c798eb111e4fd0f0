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

package keystore_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youmark/pkcs8"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/jeremyhahn/go-signer/internal/testutil"
	"github.com/jeremyhahn/go-signer/pkg/gost"
	"github.com/jeremyhahn/go-signer/pkg/keystore"
)

var password = []byte("test1234")

func newKeyStore() *keystore.KeyStore {
	ks := keystore.New()
	ks.KDF.Memory = 8 * 1024
	return ks
}

func chainOf(h *testutil.Hierarchy) []*x509.Certificate {
	return []*x509.Certificate{h.Leaf.Cert, h.Intermediate.Cert, h.Root.Cert}
}

func TestAddGet(t *testing.T) {
	tests := []struct {
		name    string
		keyType testutil.KeyType
		algo    string
	}{
		{name: "rsa", keyType: testutil.KeyRSA, algo: "RSA-2048"},
		{name: "gost 256", keyType: testutil.KeyGOST256, algo: "GOSTR3410_2012_256"},
		{name: "gost 512", keyType: testutil.KeyGOST512, algo: "GOSTR3410_2012_512"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testutil.NewHierarchy(t, tt.keyType)
			ks := newKeyStore()
			require.NoError(t, ks.Add("signer", h.Leaf.PrivateKey(), chainOf(h), password))
			assert.Equal(t, tt.algo, ks.Entries[0].Algorithm)

			key, chain, err := ks.Get("signer", password)
			require.NoError(t, err)
			require.Len(t, chain, 3)
			assert.Equal(t, h.Leaf.Cert.Raw, chain[0].Raw)
			assert.Equal(t, h.Root.Cert.Raw, chain[2].Raw)
			assert.NoError(t, keystore.MatchCertificate(key, chain[0]))

			switch k := key.(type) {
			case *rsa.PrivateKey:
				assert.True(t, h.Leaf.RSAKey.Equal(k))
			case *gost.PrivateKey:
				assert.Equal(t, h.Leaf.GOSTKey.Raw(), k.Raw())
				assert.True(t, h.Leaf.GOSTKey.ParamSet.Equal(k.ParamSet))
			default:
				t.Fatalf("unexpected key type %T", key)
			}

			_, _, err = ks.Get("signer", []byte("wrong"))
			assert.ErrorIs(t, err, keystore.ErrInvalidPassword)
		})
	}
}

func TestAdd_Errors(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyGOST256)
	other := testutil.NewIdentity(t, testutil.CertOptions{CommonName: "other", KeyType: testutil.KeyGOST256})
	ks := newKeyStore()
	require.NoError(t, ks.Add("signer", h.Leaf.GOSTKey, chainOf(h), password))

	err := ks.Add("signer", h.Leaf.GOSTKey, chainOf(h), password)
	assert.ErrorIs(t, err, keystore.ErrAliasExists)

	err = ks.Add("other", h.Leaf.GOSTKey, []*x509.Certificate{other.Cert}, password)
	assert.ErrorIs(t, err, keystore.ErrKeyMismatch)

	err = ks.Add("empty", h.Leaf.GOSTKey, nil, password)
	assert.ErrorIs(t, err, keystore.ErrInvalidFormat)

	err = ks.Add("", h.Leaf.GOSTKey, chainOf(h), password)
	assert.ErrorIs(t, err, keystore.ErrInvalidFormat)

	_, _, err = ks.Get("missing", password)
	assert.ErrorIs(t, err, keystore.ErrAliasNotFound)
}

func TestSaveLoad(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyGOST256)
	rsaID := testutil.NewIdentity(t, testutil.CertOptions{CommonName: "rsa", KeyType: testutil.KeyRSA})
	ks := newKeyStore()
	require.NoError(t, ks.Add("signer", h.Leaf.GOSTKey, chainOf(h), password))
	require.NoError(t, ks.Add("legacy", rsaID.RSAKey, []*x509.Certificate{rsaID.Cert}, []byte("other")))

	path := filepath.Join(t.TempDir(), "nested", "keystore.yaml")
	require.NoError(t, ks.Save(path))

	loaded, err := keystore.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"legacy", "signer"}, loaded.Aliases())

	key, chain, err := loaded.Get("signer", password)
	require.NoError(t, err)
	assert.Len(t, chain, 3)
	assert.NoError(t, keystore.MatchCertificate(key, h.Leaf.Cert))

	_, _, err = loaded.Get("legacy", []byte("other"))
	require.NoError(t, err)

	chain, err = loaded.Chain("legacy")
	require.NoError(t, err)
	assert.Equal(t, rsaID.Cert.Raw, chain[0].Raw)

	require.NoError(t, loaded.Delete("legacy"))
	assert.Equal(t, []string{"signer"}, loaded.Aliases())
	assert.ErrorIs(t, loaded.Delete("legacy"), keystore.ErrAliasNotFound)
}

func TestAliasBinding(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyGOST256)
	ks := newKeyStore()
	require.NoError(t, ks.Add("signer", h.Leaf.GOSTKey, chainOf(h), password))

	// an entry moved under another alias no longer opens
	ks.Entries[0].Alias = "renamed"
	_, _, err := ks.Get("renamed", password)
	assert.ErrorIs(t, err, keystore.ErrInvalidPassword)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not yaml", data: "{{{"},
		{name: "wrong version", data: "version: 7\nentries: []\n"},
		{name: "bad base64", data: "version: 1\nentries:\n  - alias: a\n    nonce: '!!!'\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := keystore.Parse([]byte(tt.data))
			assert.ErrorIs(t, err, keystore.ErrInvalidFormat)
		})
	}
}

func TestParsePEMPrivateKey(t *testing.T) {
	gostID := testutil.NewIdentity(t, testutil.CertOptions{CommonName: "gost", KeyType: testutil.KeyGOST256})
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	gostDER, err := keystore.MarshalPrivateKey(gostID.GOSTKey)
	require.NoError(t, err)
	encrypted, err := pkcs8.MarshalPrivateKey(rsaKey, []byte("secret"), nil)
	require.NoError(t, err)

	t.Run("gost pkcs8", func(t *testing.T) {
		data := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: gostDER})
		key, err := keystore.ParsePEMPrivateKey(data, nil)
		require.NoError(t, err)
		assert.Equal(t, gostID.GOSTKey.Raw(), key.(*gost.PrivateKey).Raw())
	})

	t.Run("rsa pkcs1 after certificate", func(t *testing.T) {
		data := append(gostID.CertPEM(), pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(rsaKey),
		})...)
		key, err := keystore.ParsePEMPrivateKey(data, nil)
		require.NoError(t, err)
		assert.True(t, rsaKey.Equal(key))
	})

	t.Run("encrypted rsa", func(t *testing.T) {
		data := pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: encrypted})
		key, err := keystore.ParsePEMPrivateKey(data, []byte("secret"))
		require.NoError(t, err)
		assert.True(t, rsaKey.Equal(key))

		_, err = keystore.ParsePEMPrivateKey(data, []byte("wrong"))
		assert.Error(t, err)
	})

	t.Run("no key", func(t *testing.T) {
		_, err := keystore.ParsePEMPrivateKey(gostID.CertPEM(), nil)
		assert.ErrorIs(t, err, keystore.ErrInvalidFormat)
	})
}

func TestParsePEMCertificates(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyRSA)
	data := keystore.EncodePEMCertificates(chainOf(h))

	certs, err := keystore.ParsePEMCertificates(data)
	require.NoError(t, err)
	require.Len(t, certs, 3)
	assert.Equal(t, h.Intermediate.Cert.Raw, certs[1].Raw)

	_, err = keystore.ParsePEMCertificates([]byte("nothing here"))
	assert.ErrorIs(t, err, keystore.ErrInvalidFormat)
}

func TestImportPKCS12(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyRSA)
	pfx, err := pkcs12.Modern.Encode(h.Leaf.RSAKey, h.Leaf.Cert, []*x509.Certificate{h.Intermediate.Cert, h.Root.Cert}, "test1234")
	require.NoError(t, err)

	key, chain, err := keystore.ImportPKCS12(pfx, "test1234")
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, h.Leaf.Cert.Raw, chain[0].Raw)
	assert.True(t, h.Leaf.RSAKey.Equal(key))

	ks := newKeyStore()
	require.NoError(t, ks.Add("signer", key, chain, password))

	_, _, err = keystore.ImportPKCS12(pfx, "wrong")
	assert.ErrorIs(t, err, keystore.ErrInvalidPassword)
}
