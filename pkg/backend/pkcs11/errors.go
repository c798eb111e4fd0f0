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

package pkcs11

import (
	"errors"

	"github.com/jeremyhahn/go-signer/pkg/token"
)

var (
	// ErrInvalidUserPIN is returned when the user PIN is missing.
	ErrInvalidUserPIN = errors.New("pkcs11: invalid user pin")

	// ErrInvalidPINLength is returned when the user PIN is too short.
	// PINs must be at least 4 characters long.
	ErrInvalidPINLength = errors.New("pkcs11: invalid pin length, must be at least 4 characters")

	// ErrInvalidCertID is returned when the certificate id is not hex.
	ErrInvalidCertID = errors.New("pkcs11: certificate id must be hex encoded")

	// ErrLibraryNotFound is returned when the PKCS#11 library cannot be found.
	ErrLibraryNotFound = token.ErrLibraryNotFound
)
