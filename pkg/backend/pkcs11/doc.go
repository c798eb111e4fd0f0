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

// Package pkcs11 implements the signing backend for PKCS#11 tokens.
//
// The private key never leaves the token. Each SignRaw call digests the
// input on the token with the digest mechanism paired with the certificate's
// signature algorithm, then signs:
//
//   - GOST R 34.10 keys sign the raw GOST R 34.11 digest with the
//     CKM_GOSTR3410 family of mechanisms. The signature is s||r.
//   - RSA keys sign the DER DigestInfo with CKM_RSA_PKCS.
//
// The signer certificate is selected either by its CKA_ID or by supplying a
// copy of it, in which case the token certificate with identical DER is
// used. The key pair is found through the certificate's public key.
//
// Example usage:
//
//	config := &pkcs11.Config{
//	    Library: "/usr/lib/librtpkcs11ecp.so",
//	    PIN:     "12345678",
//	    CertID:  "a1b2c3",
//	}
//	b, err := pkcs11.NewBackend(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
//
//	sig, err := b.SignRaw(data)
package pkcs11
