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

import "errors"

var (
	// ErrInvalidPublicKeyRSA indicates the RSA public key is invalid or has wrong type.
	ErrInvalidPublicKeyRSA = errors.New("verification: invalid RSA public key")

	// ErrInvalidPublicKeyGOST indicates the GOST R 34.10 public key could not be decoded.
	ErrInvalidPublicKeyGOST = errors.New("verification: invalid GOST R 34.10 public key")

	// ErrSignatureVerification indicates the signature verification failed.
	ErrSignatureVerification = errors.New("verification: signature verification failed")

	// ErrInvalidSignatureAlgorithm indicates a signature algorithm that does not fit the key.
	ErrInvalidSignatureAlgorithm = errors.New("verification: invalid signature algorithm")

	// ErrFileIntegrityCheckFailed indicates the file integrity check failed.
	ErrFileIntegrityCheckFailed = errors.New("verification: file integrity check failed")

	// ErrInvalidBlobName indicates the blob name is invalid or missing.
	ErrInvalidBlobName = errors.New("verification: invalid blob name")

	// ErrChecksumNotFound indicates the checksum was not found in the store.
	ErrChecksumNotFound = errors.New("verification: checksum not found")
)
