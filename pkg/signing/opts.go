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

package signing

import (
	"github.com/jeremyhahn/go-signer/pkg/algorithm"
	"github.com/jeremyhahn/go-signer/pkg/digest"
)

// SignerOpts carries optional inputs for a signing operation.
type SignerOpts struct {
	// BlobData is the raw data to sign. If set, the signer computes the
	// digest with the signature algorithm's hash.
	BlobData []byte
}

// NewSignerOpts creates options that sign data.
func NewSignerOpts(data []byte) *SignerOpts {
	return &SignerOpts{BlobData: data}
}

// GetDigest returns the digest to sign. If BlobData is set, it is digested
// with alg. Otherwise, the provided pre-computed digest is returned.
func (opts *SignerOpts) GetDigest(alg *algorithm.DigestAlgorithm, precomputed []byte) ([]byte, error) {
	if opts == nil || opts.BlobData == nil {
		return precomputed, nil
	}
	return digest.Sum(alg, opts.BlobData)
}
