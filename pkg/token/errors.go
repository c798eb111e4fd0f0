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
	"errors"
	"fmt"

	"github.com/miekg/pkcs11"
)

var (
	// ErrSessionEstablishment indicates the token session could not be
	// opened or authenticated
	ErrSessionEstablishment = errors.New("token: session establishment failed")

	// ErrObjectNotFound indicates no object matched a search template, or a
	// requested attribute is absent from the object
	ErrObjectNotFound = errors.New("token: object not found")

	// ErrDeviceProtocol indicates a non-OK status from the device
	ErrDeviceProtocol = errors.New("token: device protocol error")

	// ErrOperationActive indicates a digest or sign sequence is already in
	// flight on the session
	ErrOperationActive = errors.New("token: another operation is active on the session")

	// ErrOperationDone indicates use of a digest operation after Final
	ErrOperationDone = errors.New("token: operation already finished")

	// ErrSessionClosed indicates use of a session after Close
	ErrSessionClosed = errors.New("token: session closed")

	// ErrLibraryNotFound indicates the PKCS#11 library could not be loaded
	ErrLibraryNotFound = errors.New("token: PKCS#11 library not found")

	// ErrNoToken indicates no slot holds a token matching the configuration
	ErrNoToken = errors.New("token: no token present")

	// ErrInvalidConfig indicates an unusable session configuration
	ErrInvalidConfig = errors.New("token: invalid configuration")
)

// OperationError wraps an error with the name of the device call that
// produced it
type OperationError struct {
	Op  string // Cryptoki call, e.g. "C_DigestUpdate"
	Err error  // Underlying error
}

func (e *OperationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("operation failed: %s", e.Op)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// NewOperationError creates a new operation error
func NewOperationError(op string, err error) error {
	return &OperationError{Op: op, Err: err}
}

// deviceError classifies a Cryptoki failure as a protocol error while
// keeping the pkcs11.Error reachable through errors.As.
func deviceError(op string, err error) error {
	return NewOperationError(op, fmt.Errorf("%w: %w", ErrDeviceProtocol, err))
}

// IsDeviceError returns true if err came from a device round trip. The
// session should be torn down rather than reused.
func IsDeviceError(err error) bool {
	return errors.Is(err, ErrDeviceProtocol)
}

// ReturnValue extracts the CKR_* code from err, if any.
func ReturnValue(err error) (uint, bool) {
	var rv pkcs11.Error
	if errors.As(err, &rv) {
		return uint(rv), true
	}
	return 0, false
}
