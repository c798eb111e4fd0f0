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

package cli

import (
	"testing"

	p11 "github.com/miekg/pkcs11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-signer/internal/testutil"
	"github.com/jeremyhahn/go-signer/pkg/token"
)

func TestTokenCerts(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyGOST256)
	m := newToken(h)
	m.AddCertificate([]byte{0xde, 0xad}, "broken", []byte("not a certificate"))

	out, _, err := runCLI(t, withModule(m), "token", "certs", "--library", "lib.so",
		"--pin", testPIN, "-o", "json")
	require.NoError(t, err)

	listing := decodeJSON[struct {
		Certificates []TokenCertificate `json:"certificates"`
	}](t, out)
	require.Len(t, listing.Certificates, 4)

	byID := map[string]TokenCertificate{}
	for _, c := range listing.Certificates {
		byID[c.ID] = c
	}
	assert.Equal(t, "CN=signer", byID["a1"].Subject)
	assert.Equal(t, "signer", byID["a1"].Label)
	assert.Equal(t, h.Intermediate.Cert.Subject.String(), byID["c2"].Subject)
	assert.NotEmpty(t, byID["dead"].Error)

	assert.Equal(t, 0, m.OpenSessions())
	assert.True(t, m.Called("Logout"))
}

func TestTokenCerts_Text(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyRSA)
	out, _, err := runCLI(t, withModule(newToken(h)), "token", "certs", "--library", "lib.so", "--pin", testPIN)
	require.NoError(t, err)
	assert.Contains(t, out, "ID: a1 (signer)")
	assert.Contains(t, out, "Subject: CN=signer")
}

func TestTokenCerts_Errors(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyGOST256)

	_, _, err := runCLI(t, withModule(newToken(h)), "token", "certs", "--pin", testPIN)
	assert.Error(t, err, "library is required")

	_, _, err = runCLI(t, withModule(newToken(h)), "token", "certs", "--library", "lib.so", "--pin", "00000000")
	assert.ErrorIs(t, err, token.ErrSessionEstablishment)

	_, _, err = runCLI(t, withModule(newToken(h)), "token", "certs", "--library", "lib.so",
		"--pin", testPIN, "--token-label", "missing")
	assert.ErrorIs(t, err, token.ErrSessionEstablishment)
}

func TestTokenInfo(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyGOST256)
	m := newToken(h)
	m.Slots = []uint{1, 4}
	m.Tokens[4] = p11.TokenInfo{
		Label:          "Rutoken ECP                     ",
		ManufacturerID: "Aktiv Co.",
		Model:          "Rutoken ECP",
		SerialNumber:   "3a2b1c0d",
	}

	out, _, err := runCLI(t, withModule(m), "token", "info", "--library", "lib.so", "-o", "json")
	require.NoError(t, err)

	listing := decodeJSON[struct {
		Tokens []TokenInfo `json:"tokens"`
	}](t, out)
	require.Len(t, listing.Tokens, 2)
	assert.Equal(t, uint(4), listing.Tokens[1].Slot)
	assert.Equal(t, "Rutoken ECP", listing.Tokens[1].Label)
	assert.Equal(t, "3a2b1c0d", listing.Tokens[1].SerialNumber)

	// no login is needed and the library is released
	assert.False(t, m.Called("Login"))
	assert.False(t, m.Initialized())

	m.Fail["GetSlotList"] = p11.Error(p11.CKR_DEVICE_ERROR)
	_, _, err = runCLI(t, withModule(m), "token", "info", "--library", "lib.so")
	var opErr *token.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "C_GetSlotList", opErr.Op)
	assert.False(t, m.Initialized())
}
