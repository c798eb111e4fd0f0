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

import "fmt"

// Type identifies the kind of signing backend.
type Type string

const (
	TypeSoftware Type = "software" // Password-protected key container
	TypePKCS11   Type = "pkcs11"   // PKCS#11 hardware token
)

// String returns the type name.
func (t Type) String() string {
	return string(t)
}

// ParseType converts a configuration value to a Type.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeSoftware, TypePKCS11:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBackendType, s)
}
