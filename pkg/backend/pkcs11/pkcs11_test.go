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

package pkcs11_test

import (
	"os"
	"path/filepath"
	"testing"

	p11 "github.com/miekg/pkcs11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-signer/internal/testutil"
	"github.com/jeremyhahn/go-signer/pkg/algorithm"
	"github.com/jeremyhahn/go-signer/pkg/backend"
	"github.com/jeremyhahn/go-signer/pkg/backend/pkcs11"
	"github.com/jeremyhahn/go-signer/pkg/digest"
	"github.com/jeremyhahn/go-signer/pkg/token"
	"github.com/jeremyhahn/go-signer/pkg/token/mocks"
	"github.com/jeremyhahn/go-signer/pkg/verification"
)

const (
	testPIN    = "12345678"
	testCertID = "a1"
)

var testData = []byte("hello")

// newToken stores the hierarchy leaf with its key pair under testCertID and
// the CA certificates without keys, in shuffled order.
func newToken(t *testing.T, h *testutil.Hierarchy) *mocks.Module {
	t.Helper()
	m := mocks.New(testPIN)
	m.AddCertificate([]byte{0xc1}, "root", h.Root.Cert.Raw)
	m.AddIdentity([]byte{0xa1}, "signer", h.Leaf.Cert, h.Leaf.PrivateKey())
	m.AddCertificate([]byte{0xc2}, "issuing ca", h.Intermediate.Cert.Raw)
	return m
}

func loaderFor(m *mocks.Module) token.Loader {
	return func(string) (token.Module, error) {
		return m, nil
	}
}

func newConfig(m *mocks.Module) *pkcs11.Config {
	return &pkcs11.Config{
		Library: "/usr/lib/librtpkcs11ecp.so",
		PIN:     testPIN,
		CertID:  testCertID,
		Loader:  loaderFor(m),
	}
}

func openBackend(t *testing.T, config *pkcs11.Config) *pkcs11.Backend {
	t.Helper()
	b, err := pkcs11.NewBackend(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSignRaw(t *testing.T) {
	tests := []struct {
		name    string
		keyType testutil.KeyType
		alg     string
	}{
		{"gost 2012-256", testutil.KeyGOST256, "GOSTR3410_2012_256"},
		{"gost 2012-512", testutil.KeyGOST512, "GOSTR3410_2012_512"},
		{"rsa", testutil.KeyRSA, "RSA_SHA256"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testutil.NewHierarchy(t, tt.keyType)
			m := newToken(t, h)
			b := openBackend(t, newConfig(m))

			assert.Equal(t, backend.TypePKCS11, b.Type())
			alg := b.SignatureAlgorithm()
			require.Equal(t, tt.alg, alg.Name)

			sig, err := b.SignRaw(testData)
			require.NoError(t, err)

			// digested on the token with the paired mechanism
			require.NotEmpty(t, m.DigestInits)
			assert.Equal(t, alg.Digest.Mechanism, m.DigestInits[len(m.DigestInits)-1].Mechanism)

			// the token signed the raw digest for GOST and the DigestInfo for RSA
			sum, err := digest.Sum(alg.Digest, testData)
			require.NoError(t, err)
			want := sum
			if !alg.National {
				want, err = algorithm.DigestInfo(alg.Digest, sum)
				require.NoError(t, err)
			}
			require.Len(t, m.Signed, 1)
			assert.Equal(t, want, m.Signed[0])

			verifier := verification.NewVerifier(nil)
			assert.NoError(t, verifier.VerifyData(h.Leaf.Cert, testData, sig, nil))
			assert.Error(t, verifier.VerifyData(h.Intermediate.Cert, testData, sig, nil))
		})
	}
}

func TestSignRaw_Repeated(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyGOST256)
	m := newToken(t, h)
	b := openBackend(t, newConfig(m))

	for i := 0; i < 3; i++ {
		sig, err := b.SignRaw(testData)
		require.NoError(t, err)
		assert.NoError(t, verification.NewVerifier(nil).VerifyData(h.Leaf.Cert, testData, sig, nil))
	}
	assert.Len(t, m.Signed, 3)
}

func TestSignRaw_DeviceError(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyGOST256)
	m := newToken(t, h)
	b := openBackend(t, newConfig(m))

	m.Fail["Sign"] = p11.Error(p11.CKR_DEVICE_ERROR)
	_, err := b.SignRaw(testData)
	require.ErrorIs(t, err, backend.ErrDeviceProtocol)
	assert.True(t, backend.IsFatal(err))
	rv, ok := token.ReturnValue(err)
	require.True(t, ok)
	assert.Equal(t, uint(p11.CKR_DEVICE_ERROR), rv)

	// the session is torn down rather than reused
	assert.True(t, m.Called("Logout"))
	assert.True(t, m.Called("CloseSession"))
	assert.True(t, m.Called("Finalize"))
	assert.Equal(t, 0, m.OpenSessions())

	delete(m.Fail, "Sign")
	_, err = b.SignRaw(testData)
	assert.ErrorIs(t, err, backend.ErrBackendClosed)
	assert.Len(t, m.Signed, 0)
	assert.NoError(t, b.Close())
}

func TestCertificateChain_ObjectNotFoundKeepsSession(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyGOST256)
	m := newToken(t, h)
	b := openBackend(t, newConfig(m))

	m.Fail["GetAttributeValue"] = p11.Error(p11.CKR_ATTRIBUTE_TYPE_INVALID)
	_, err := b.CertificateChain()
	require.ErrorIs(t, err, backend.ErrObjectNotFound)
	assert.False(t, backend.IsFatal(err))
	assert.False(t, m.Called("Logout"))

	delete(m.Fail, "GetAttributeValue")
	chain, err := b.CertificateChain()
	require.NoError(t, err)
	assert.Len(t, chain, 3)
	_, err = b.SignRaw(testData)
	assert.NoError(t, err)
}

func TestCertificateChain_DeviceError(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyGOST256)
	m := newToken(t, h)
	b := openBackend(t, newConfig(m))

	m.Fail["FindObjectsInit"] = p11.Error(p11.CKR_DEVICE_REMOVED)
	_, err := b.CertificateChain()
	require.ErrorIs(t, err, backend.ErrDeviceProtocol)
	assert.True(t, m.Called("CloseSession"))
	assert.True(t, m.Called("Finalize"))

	delete(m.Fail, "FindObjectsInit")
	_, err = b.CertificateChain()
	assert.ErrorIs(t, err, backend.ErrBackendClosed)
	_, err = b.SignRaw(testData)
	assert.ErrorIs(t, err, backend.ErrBackendClosed)
}

func TestNewBackend_ByCertificate(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyGOST256)
	dir := t.TempDir()
	pemFile := filepath.Join(dir, "signer.pem")
	require.NoError(t, os.WriteFile(pemFile, h.Leaf.CertPEM(), 0600))
	derFile := filepath.Join(dir, "signer.cer")
	require.NoError(t, os.WriteFile(derFile, h.Leaf.Cert.Raw, 0600))

	tests := []struct {
		name   string
		modify func(*pkcs11.Config)
	}{
		{"certificate", func(c *pkcs11.Config) { c.Certificate = h.Leaf.Cert }},
		{"pem file", func(c *pkcs11.Config) { c.CertificateFile = pemFile }},
		{"der file", func(c *pkcs11.Config) { c.CertificateFile = derFile }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newToken(t, h)
			config := newConfig(m)
			config.CertID = ""
			tt.modify(config)

			b := openBackend(t, config)
			cert, err := b.Certificate()
			require.NoError(t, err)
			assert.Equal(t, h.Leaf.Cert.Raw, cert.Raw)

			sig, err := b.SignRaw(testData)
			require.NoError(t, err)
			assert.NoError(t, verification.NewVerifier(nil).VerifyData(cert, testData, sig, nil))
		})
	}
}

func TestNewBackend_Failures(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyGOST256)
	other := testutil.NewIdentity(t, testutil.CertOptions{CommonName: "other", KeyType: testutil.KeyGOST256})

	tests := []struct {
		name    string
		setup   func(*mocks.Module, *pkcs11.Config)
		want    error
		unwinds bool
	}{
		{
			name:  "wrong pin",
			setup: func(_ *mocks.Module, c *pkcs11.Config) { c.PIN = "87654321" },
			want:  backend.ErrSessionEstablishment,
		},
		{
			name:    "unknown certificate id",
			setup:   func(_ *mocks.Module, c *pkcs11.Config) { c.CertID = "ff" },
			want:    backend.ErrCertificateNotFound,
			unwinds: true,
		},
		{
			name: "certificate not on token",
			setup: func(_ *mocks.Module, c *pkcs11.Config) {
				c.CertID = ""
				c.Certificate = other.Cert
			},
			want:    backend.ErrCertificateNotFound,
			unwinds: true,
		},
		{
			name: "no key pair",
			setup: func(m *mocks.Module, c *pkcs11.Config) {
				m.AddCertificate([]byte{0xb1}, "orphan", other.Cert.Raw)
				c.CertID = "b1"
			},
			want:    backend.ErrObjectNotFound,
			unwinds: true,
		},
		{
			name: "object search fails",
			setup: func(m *mocks.Module, _ *pkcs11.Config) {
				m.Fail["FindObjectsInit"] = p11.Error(p11.CKR_DEVICE_REMOVED)
			},
			want:    backend.ErrDeviceProtocol,
			unwinds: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newToken(t, h)
			config := newConfig(m)
			tt.setup(m, config)

			b, err := pkcs11.NewBackend(config)
			assert.Nil(t, b)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, m.OpenSessions())
			assert.False(t, m.Initialized())
			if tt.unwinds {
				assert.True(t, m.Called("Logout"))
			}
		})
	}
}

func TestNewBackend_LoaderError(t *testing.T) {
	config := &pkcs11.Config{
		Library: "/usr/lib/missing.so",
		PIN:     testPIN,
		CertID:  testCertID,
		Loader: func(library string) (token.Module, error) {
			return token.LoadModule("")
		},
	}
	_, err := pkcs11.NewBackend(config)
	assert.ErrorIs(t, err, pkcs11.ErrLibraryNotFound)
}

func TestCertificateChain(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyGOST256)

	t.Run("full", func(t *testing.T) {
		m := newToken(t, h)
		m.AddCertificate([]byte{0xee}, "garbage", []byte("not a certificate"))
		b := openBackend(t, newConfig(m))

		chain, err := b.CertificateChain()
		require.NoError(t, err)
		require.Len(t, chain, 3)
		assert.Equal(t, h.Leaf.Cert.Raw, chain[0].Raw)
		assert.Equal(t, h.Intermediate.Cert.Raw, chain[1].Raw)
		assert.Equal(t, h.Root.Cert.Raw, chain[2].Raw)
	})

	t.Run("missing intermediate", func(t *testing.T) {
		m := mocks.New(testPIN)
		m.AddCertificate([]byte{0xc1}, "root", h.Root.Cert.Raw)
		m.AddIdentity([]byte{0xa1}, "signer", h.Leaf.Cert, h.Leaf.PrivateKey())
		b := openBackend(t, newConfig(m))

		chain, err := b.CertificateChain()
		require.NoError(t, err)
		require.Len(t, chain, 1)
		assert.Equal(t, h.Leaf.Cert.Raw, chain[0].Raw)
	})
}

func TestDigestEngine(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyRSA)
	m := newToken(t, h)
	b := openBackend(t, newConfig(m))

	for _, d := range []*algorithm.DigestAlgorithm{
		algorithm.GOSTR34112012256,
		algorithm.GOSTR34112012512,
		algorithm.SHA256,
	} {
		t.Run(d.Name, func(t *testing.T) {
			before := len(m.DigestInits)
			engine, err := b.DigestEngine(d.Identifier())
			require.NoError(t, err)

			_, err = engine.Write(testData)
			require.NoError(t, err)
			sum, err := engine.Sum()
			require.NoError(t, err)

			want, err := digest.Sum(d, testData)
			require.NoError(t, err)
			assert.Equal(t, want, sum)
			assert.Len(t, m.DigestInits, before+1)
		})
	}

	// no token mechanism and no in-process implementation
	_, err := b.DigestEngine(algorithm.RIPEMD256.Identifier())
	assert.ErrorIs(t, err, digest.ErrNoSoftwareHash)

	unknown := algorithm.SHA256.Identifier()
	unknown.Algorithm = []int{1, 2, 3}
	_, err = b.DigestEngine(unknown)
	assert.ErrorIs(t, err, backend.ErrUnsupportedAlgorithm)
}

func TestClose(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyGOST256)
	m := newToken(t, h)
	b, err := pkcs11.NewBackend(newConfig(m))
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, 0, m.OpenSessions())
	assert.True(t, m.Destroyed)

	_, err = b.SignRaw(testData)
	assert.ErrorIs(t, err, backend.ErrBackendClosed)
	_, err = b.Certificate()
	assert.ErrorIs(t, err, backend.ErrBackendClosed)
	_, err = b.CertificateChain()
	assert.ErrorIs(t, err, backend.ErrBackendClosed)
}

func TestConfig_Validate(t *testing.T) {
	m := mocks.New(testPIN)
	negative := -1

	tests := []struct {
		name   string
		modify func(*pkcs11.Config)
		want   error
	}{
		{"valid", func(*pkcs11.Config) {}, nil},
		{"no library", func(c *pkcs11.Config) { c.Library = "" }, backend.ErrInvalidConfig},
		{"library missing on disk", func(c *pkcs11.Config) {
			c.Loader = nil
			c.Library = filepath.Join(t.TempDir(), "missing.so")
		}, pkcs11.ErrLibraryNotFound},
		{"no pin", func(c *pkcs11.Config) { c.PIN = "" }, pkcs11.ErrInvalidUserPIN},
		{"short pin", func(c *pkcs11.Config) { c.PIN = "123" }, pkcs11.ErrInvalidPINLength},
		{"bad cert id", func(c *pkcs11.Config) { c.CertID = "xyz" }, pkcs11.ErrInvalidCertID},
		{"no certificate selector", func(c *pkcs11.Config) { c.CertID = "" }, backend.ErrInvalidConfig},
		{"two certificate selectors", func(c *pkcs11.Config) { c.CertificateFile = "signer.pem" }, backend.ErrInvalidConfig},
		{"negative slot", func(c *pkcs11.Config) { c.SlotIndex = &negative }, backend.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := newConfig(m)
			tt.modify(config)
			err := config.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}

	var nilConfig *pkcs11.Config
	assert.ErrorIs(t, nilConfig.Validate(), backend.ErrInvalidConfig)
}

func TestConfig_String(t *testing.T) {
	config := newConfig(mocks.New(testPIN))
	config.TokenLabel = "Rutoken ECP"
	s := config.String()
	assert.NotContains(t, s, testPIN)
	assert.Contains(t, s, "PIN: ****")
	assert.Contains(t, s, "Rutoken ECP")

	config.PIN = ""
	assert.Contains(t, config.String(), "PIN: <not set>")
}
