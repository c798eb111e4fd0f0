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

// Package validation checks user supplied identifiers before they reach a
// container or a token, and strips device and file supplied strings for
// logging.
package validation

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

const (
	// MaxAliasLength bounds keystore aliases
	MaxAliasLength = 255

	// MaxCertIDLength bounds CKA_ID values, in bytes
	MaxCertIDLength = 255
)

// aliasPattern matches keystore aliases: letters, digits, spaces and - _ . @
var aliasPattern = regexp.MustCompile(`^[\p{L}\p{N}_\-\.@ ]+$`)

// ValidateAlias validates a keystore entry alias.
// Rejects empty strings, null bytes, control characters, surrounding
// whitespace and anything outside the alias alphabet.
func ValidateAlias(alias string) error {
	if alias == "" {
		return fmt.Errorf("alias cannot be empty")
	}

	// Check for null bytes
	if strings.Contains(alias, "\x00") {
		return fmt.Errorf("alias contains null byte")
	}

	// Check length before the pattern (prevent ReDoS)
	if len(alias) > MaxAliasLength {
		return fmt.Errorf("alias too long (max %d characters)", MaxAliasLength)
	}

	for _, r := range alias {
		if r < 32 || r == 127 {
			return fmt.Errorf("alias contains control characters")
		}
	}

	if strings.TrimSpace(alias) != alias {
		return fmt.Errorf("alias has leading or trailing whitespace")
	}

	if !aliasPattern.MatchString(alias) {
		return fmt.Errorf("alias contains invalid characters (allowed: letters, digits, space, -, _, ., @)")
	}

	return nil
}

// ValidateCertID validates a hex encoded CKA_ID and returns its bytes.
func ValidateCertID(id string) ([]byte, error) {
	if id == "" {
		return nil, fmt.Errorf("certificate id cannot be empty")
	}
	if len(id) > 2*MaxCertIDLength {
		return nil, fmt.Errorf("certificate id too long (max %d bytes)", MaxCertIDLength)
	}
	raw, err := hex.DecodeString(id)
	if err != nil {
		return nil, fmt.Errorf("certificate id is not hex: %w", err)
	}
	return raw, nil
}

// SanitizeForLog sanitizes a string for safe logging (prevents log injection).
func SanitizeForLog(s string) string {
	// Remove control characters and null bytes
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)

	// Limit length to prevent log flooding
	if len(s) > 1000 {
		s = s[:1000] + "...[truncated]"
	}

	return s
}
