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

package verification

import (
	"encoding/hex"
	"strings"

	"github.com/jeremyhahn/go-signer/pkg/algorithm"
)

// VerifyOpts contains optional parameters for signature verification operations.
type VerifyOpts struct {
	// Algorithm overrides the signature algorithm derived from the certificate
	Algorithm *algorithm.SignatureAlgorithm

	// BlobCN is the common name identifier for the blob being verified
	BlobCN []byte

	// IntegrityCheck enables verification of the digest against a stored checksum
	IntegrityCheck bool
}

// Checksums is a ChecksumProvider backed by a map of blob name to
// hex-encoded digest.
type Checksums map[string]string

// Checksum implements ChecksumProvider.
func (c Checksums) Checksum(opts *VerifyOpts) ([]byte, error) {
	sum, ok := c[string(opts.BlobCN)]
	if !ok {
		return nil, ErrChecksumNotFound
	}
	return []byte(strings.ToLower(sum)), nil
}

// HexDigest formats a digest the way checksums are stored.
func HexDigest(digest []byte) string {
	return hex.EncodeToString(digest)
}
