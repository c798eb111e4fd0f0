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

import "errors"

var (
	// ErrAliasNotFound is returned when the container has no entry under
	// the requested alias.
	ErrAliasNotFound = errors.New("keystore: alias not found")

	// ErrAliasExists is returned when adding an entry under a taken alias.
	ErrAliasExists = errors.New("keystore: alias already exists")

	// ErrInvalidPassword is returned when an entry cannot be unsealed.
	ErrInvalidPassword = errors.New("keystore: invalid password")

	// ErrUnsupportedKey is returned for private key types the container
	// cannot hold.
	ErrUnsupportedKey = errors.New("keystore: unsupported private key type")

	// ErrInvalidFormat is returned when a container or an imported file
	// cannot be decoded.
	ErrInvalidFormat = errors.New("keystore: invalid format")

	// ErrKeyMismatch is returned when a private key does not belong to the
	// first certificate of its chain.
	ErrKeyMismatch = errors.New("keystore: private key does not match certificate")
)
