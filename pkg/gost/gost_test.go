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
	"crypto/rand"
	"encoding/asn1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.cypherpunks.ru/gogost/v5/gost34112012256"
	"go.cypherpunks.ru/gogost/v5/gost34112012512"
)

func streebog256(data []byte) []byte {
	h := gost34112012256.New()
	h.Write(data)
	return h.Sum(nil)
}

func TestSignVerify(t *testing.T) {
	tests := []struct {
		name     string
		paramSet asn1.ObjectIdentifier
		digest   func([]byte) []byte
	}{
		{"tc26-256-A", OIDTC26256A, streebog256},
		{"cryptopro-A", OIDCryptoProA, streebog256},
		{"tc26-512-A", OIDTC26512A, func(data []byte) []byte {
			h := gost34112012512.New()
			h.Write(data)
			return h.Sum(nil)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := GenerateKey(tt.paramSet, rand.Reader)
			require.NoError(t, err)
			pub, err := key.Public()
			require.NoError(t, err)

			digest := tt.digest([]byte("hello"))
			sig, err := key.Sign(rand.Reader, digest)
			require.NoError(t, err)
			assert.Len(t, sig, 2*len(key.Raw()))

			ok, err := pub.Verify(digest, sig)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = pub.Verify(tt.digest([]byte("hellO")), sig)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestParamsFor(t *testing.T) {
	p, err := ParamsFor(OIDTC26256B)
	require.NoError(t, err)
	assert.Equal(t, OIDPublicKey2012256, p.Algorithm)
	assert.Equal(t, OIDDigest2012256, p.Digest)

	p, err = ParamsFor(OIDTC26512C)
	require.NoError(t, err)
	assert.Equal(t, OIDPublicKey2012512, p.Algorithm)

	_, err = ParamsFor(asn1.ObjectIdentifier{1, 2, 3})
	assert.ErrorIs(t, err, ErrUnsupportedParamSet)
}

func TestPKIXPublicKey(t *testing.T) {
	key, err := GenerateKey(OIDTC26256A, rand.Reader)
	require.NoError(t, err)
	pub, err := key.Public()
	require.NoError(t, err)

	der, err := MarshalPKIXPublicKey(pub)
	require.NoError(t, err)

	parsed, err := ParsePKIXPublicKey(der)
	require.NoError(t, err)
	assert.Equal(t, pub.Raw(), parsed.Raw())
	assert.Equal(t, pub.Params, parsed.Params)

	value, err := PublicKeyValue(der)
	require.NoError(t, err)
	assert.Equal(t, pub.Raw(), value)
	assert.Len(t, value, 64)
}

func TestParsePKIXPublicKey_RSA(t *testing.T) {
	// SEQUENCE { SEQUENCE { rsaEncryption, NULL }, BIT STRING {} }
	der := []byte{
		0x30, 0x12,
		0x30, 0x0d, 0x06, 0x09, 0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x01, 0x01, 0x05, 0x00,
		0x03, 0x01, 0x00,
	}
	_, err := ParsePKIXPublicKey(der)
	assert.ErrorIs(t, err, ErrNotGOSTKey)
}

func TestPKCS8PrivateKey(t *testing.T) {
	key, err := GenerateKey(OIDTC26512A, rand.Reader)
	require.NoError(t, err)

	der, err := MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	parsed, err := ParsePKCS8PrivateKey(der)
	require.NoError(t, err)
	assert.Equal(t, key.Raw(), parsed.Raw())
	assert.Equal(t, key.Params, parsed.Params)
}

func TestParsePKCS8PrivateKey_Malformed(t *testing.T) {
	_, err := ParsePKCS8PrivateKey([]byte{0x30, 0x03, 0x02, 0x01})
	assert.ErrorIs(t, err, ErrMalformedKey)
}

func TestNewPublicKey_WrongLength(t *testing.T) {
	params, err := ParamsFor(OIDTC26256A)
	require.NoError(t, err)
	_, err = NewPublicKey(params, make([]byte, 10))
	assert.ErrorIs(t, err, ErrMalformedKey)
}
