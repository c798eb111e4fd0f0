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
	"fmt"

	"github.com/miekg/pkcs11"
)

// Module is the subset of the Cryptoki API driven by Session.
// *pkcs11.Ctx satisfies it; tests substitute an in-memory token.
type Module interface {
	Initialize() error
	Finalize() error
	Destroy()
	GetSlotList(tokenPresent bool) ([]uint, error)
	GetTokenInfo(slotID uint) (pkcs11.TokenInfo, error)
	OpenSession(slotID uint, flags uint) (pkcs11.SessionHandle, error)
	CloseSession(sh pkcs11.SessionHandle) error
	Login(sh pkcs11.SessionHandle, userType uint, pin string) error
	Logout(sh pkcs11.SessionHandle) error
	FindObjectsInit(sh pkcs11.SessionHandle, temp []*pkcs11.Attribute) error
	FindObjects(sh pkcs11.SessionHandle, max int) ([]pkcs11.ObjectHandle, bool, error)
	FindObjectsFinal(sh pkcs11.SessionHandle) error
	GetAttributeValue(sh pkcs11.SessionHandle, o pkcs11.ObjectHandle, a []*pkcs11.Attribute) ([]*pkcs11.Attribute, error)
	DigestInit(sh pkcs11.SessionHandle, m []*pkcs11.Mechanism) error
	DigestUpdate(sh pkcs11.SessionHandle, message []byte) error
	DigestFinal(sh pkcs11.SessionHandle) ([]byte, error)
	SignInit(sh pkcs11.SessionHandle, m []*pkcs11.Mechanism, o pkcs11.ObjectHandle) error
	Sign(sh pkcs11.SessionHandle, message []byte) ([]byte, error)
}

var _ Module = (*pkcs11.Ctx)(nil)

// Loader opens a PKCS#11 library.
type Loader func(library string) (Module, error)

// LoadModule loads the PKCS#11 shared library at path.
func LoadModule(library string) (Module, error) {
	if library == "" {
		return nil, fmt.Errorf("%w: empty library path", ErrLibraryNotFound)
	}
	ctx := pkcs11.New(library)
	if ctx == nil {
		return nil, fmt.Errorf("%w: %s", ErrLibraryNotFound, library)
	}
	return ctx, nil
}
