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

package backend

import (
	"errors"

	"github.com/jeremyhahn/go-signer/pkg/algorithm"
	"github.com/jeremyhahn/go-signer/pkg/token"
)

var (
	// ErrInvalidBackendType is returned for an unknown backend type name.
	ErrInvalidBackendType = errors.New("backend: invalid backend type")

	// ErrInvalidConfig is returned when a backend configuration is incomplete.
	ErrInvalidConfig = errors.New("backend: invalid configuration")

	// ErrBackendClosed is returned when a backend is used after Close.
	ErrBackendClosed = errors.New("backend: backend is closed")

	// ErrCertificateNotFound is returned when the signer certificate cannot
	// be located.
	ErrCertificateNotFound = errors.New("backend: certificate not found")

	// ErrUnsupportedAlgorithm is returned when an algorithm identifier has
	// no registry entry.
	ErrUnsupportedAlgorithm = algorithm.ErrUnsupportedAlgorithm

	// ErrSessionEstablishment is returned when the token session could not
	// be opened or authenticated.
	ErrSessionEstablishment = token.ErrSessionEstablishment

	// ErrObjectNotFound is returned when a token object or attribute is
	// missing.
	ErrObjectNotFound = token.ErrObjectNotFound

	// ErrDeviceProtocol is returned for a non-OK status from the device.
	ErrDeviceProtocol = token.ErrDeviceProtocol
)

// IsFatal reports whether err leaves the backend unusable. Device protocol
// failures and a failed session establishment cannot be retried on the same
// backend; a new one must be created.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDeviceProtocol) ||
		errors.Is(err, ErrSessionEstablishment) ||
		errors.Is(err, ErrBackendClosed)
}
