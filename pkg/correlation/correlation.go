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

// Package correlation tags one signer run with an operation id that is
// carried in the command context, attached to every log line and reported
// with the signature.
package correlation

import (
	"context"
	"os"
	"strings"

	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// OperationIDKey is the context key for storing operation IDs
	OperationIDKey contextKey = "operation-id"

	// EnvOperationID lets the caller supply the id, e.g. a CI job id, so
	// that its own logs and the signer's can be joined
	EnvOperationID = "SIGNER_OPERATION_ID"
)

// WithOperationID adds an operation ID to the context.
func WithOperationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, OperationIDKey, id)
}

// OperationID retrieves the operation ID from context.
// Returns an empty string if no operation ID is found.
func OperationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(OperationIDKey).(string); ok {
		return id
	}
	return ""
}

// NewID generates a new UUID v4 operation ID.
func NewID() string {
	return uuid.New().String()
}

// FromEnvironment returns ctx carrying the id from EnvOperationID, or ctx
// unchanged when the variable is unset or blank.
func FromEnvironment(ctx context.Context) context.Context {
	id := strings.TrimSpace(os.Getenv(EnvOperationID))
	if id == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return WithOperationID(ctx, id)
}

// GetOrGenerate retrieves an existing operation ID from context or
// generates a new one if none exists.
func GetOrGenerate(ctx context.Context) string {
	if id := OperationID(ctx); id != "" {
		return id
	}
	return NewID()
}
