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

package algorithm

import (
	"encoding/asn1"

	"github.com/miekg/pkcs11"
)

// Rutoken vendor-defined mechanisms for GOST R 34.10-2012 and 34.11-2012.
// The GOST R 34.10-2001 and 34.11-94 mechanisms are standard and come
// from the pkcs11 package.
const (
	VendorRuTeam = pkcs11.CKM_VENDOR_DEFINED | 0x54321000

	CKM_GOSTR3410_512    = VendorRuTeam | 0x006
	CKM_GOSTR3411_12_256 = VendorRuTeam | 0x012
	CKM_GOSTR3411_12_512 = VendorRuTeam | 0x013
)

var (
	OIDRSAEncryption = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}

	OIDGOST2001PublicKey    = asn1.ObjectIdentifier{1, 2, 643, 2, 2, 19}
	OIDGOST2012PublicKey256 = asn1.ObjectIdentifier{1, 2, 643, 7, 1, 1, 1, 1}
	OIDGOST2012PublicKey512 = asn1.ObjectIdentifier{1, 2, 643, 7, 1, 1, 1, 2}

	OIDGOST2001Signature    = asn1.ObjectIdentifier{1, 2, 643, 2, 2, 3}
	OIDGOST2012Signature256 = asn1.ObjectIdentifier{1, 2, 643, 7, 1, 1, 3, 2}
	OIDGOST2012Signature512 = asn1.ObjectIdentifier{1, 2, 643, 7, 1, 1, 3, 3}

	OIDGOSTR341194          = asn1.ObjectIdentifier{1, 2, 643, 2, 2, 9}
	OIDGOSTR341194ParamSet  = asn1.ObjectIdentifier{1, 2, 643, 2, 2, 30, 1}
	OIDGOSTR34112012256     = asn1.ObjectIdentifier{1, 2, 643, 7, 1, 1, 2, 2}
	OIDGOSTR34112012512     = asn1.ObjectIdentifier{1, 2, 643, 7, 1, 1, 2, 3}
	OIDSHA1                 = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	OIDSHA224               = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 4}
	OIDSHA256               = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	OIDSHA384               = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	OIDSHA512               = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}
	OIDMD5                  = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 5}
	OIDRIPEMD128            = asn1.ObjectIdentifier{1, 3, 36, 3, 2, 2}
	OIDRIPEMD160            = asn1.ObjectIdentifier{1, 3, 36, 3, 2, 1}
	OIDRIPEMD256            = asn1.ObjectIdentifier{1, 3, 36, 3, 2, 3}
	OIDMD5WithRSA           = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 4}
	OIDSHA1WithRSA          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 5}
	OIDSHA256WithRSA        = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	OIDSHA384WithRSA        = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}
	OIDSHA512WithRSA        = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}
	OIDSHA224WithRSA        = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 14}
	OIDRIPEMD160WithRSA     = asn1.ObjectIdentifier{1, 3, 36, 3, 3, 1, 2}
	OIDRIPEMD128WithRSA     = asn1.ObjectIdentifier{1, 3, 36, 3, 3, 1, 3}
	OIDRIPEMD256WithRSA     = asn1.ObjectIdentifier{1, 3, 36, 3, 3, 1, 4}
)

// Digest entries.
var (
	GOSTR341194 = &DigestAlgorithm{
		Name:      "GOSTR3411_1994",
		Mechanism: pkcs11.CKM_GOSTR3411,
		OID:       OIDGOSTR341194,
		Params:    mustMarshalOID(OIDGOSTR341194ParamSet),
		Size:      32,
		National:  true,
	}
	GOSTR34112012256 = &DigestAlgorithm{
		Name:      "GOSTR3411_2012_256",
		Mechanism: CKM_GOSTR3411_12_256,
		OID:       OIDGOSTR34112012256,
		Params:    mustMarshalOID(OIDGOSTR34112012256),
		Size:      32,
		National:  true,
	}
	GOSTR34112012512 = &DigestAlgorithm{
		Name:      "GOSTR3411_2012_512",
		Mechanism: CKM_GOSTR3411_12_512,
		OID:       OIDGOSTR34112012512,
		Params:    mustMarshalOID(OIDGOSTR34112012512),
		Size:      64,
		National:  true,
	}
	SHA1      = &DigestAlgorithm{Name: "SHA1", Mechanism: pkcs11.CKM_SHA_1, OID: OIDSHA1, Size: 20}
	SHA224    = &DigestAlgorithm{Name: "SHA224", Mechanism: pkcs11.CKM_SHA224, OID: OIDSHA224, Size: 28}
	SHA256    = &DigestAlgorithm{Name: "SHA256", Mechanism: pkcs11.CKM_SHA256, OID: OIDSHA256, Size: 32}
	SHA384    = &DigestAlgorithm{Name: "SHA384", Mechanism: pkcs11.CKM_SHA384, OID: OIDSHA384, Size: 48}
	SHA512    = &DigestAlgorithm{Name: "SHA512", Mechanism: pkcs11.CKM_SHA512, OID: OIDSHA512, Size: 64}
	MD5       = &DigestAlgorithm{Name: "MD5", Mechanism: pkcs11.CKM_MD5, OID: OIDMD5, Size: 16}
	RIPEMD128 = &DigestAlgorithm{Name: "RIPEMD128", Mechanism: pkcs11.CKM_RIPEMD128, OID: OIDRIPEMD128, Size: 16}
	RIPEMD160 = &DigestAlgorithm{Name: "RIPEMD160", Mechanism: pkcs11.CKM_RIPEMD160, OID: OIDRIPEMD160, Size: 20}
	// No PKCS#11 mechanism is assigned to RIPEMD-256.
	RIPEMD256 = &DigestAlgorithm{Name: "RIPEMD256", OID: OIDRIPEMD256, Size: 32}
)

// Signature entries.
var (
	GOSTR34102001 = &SignatureAlgorithm{
		Name:      "GOSTR3410_2001",
		Mechanism: pkcs11.CKM_GOSTR3410,
		OID:       OIDGOST2001Signature,
		Digest:    GOSTR341194,
		National:  true,
	}
	GOSTR34102012256 = &SignatureAlgorithm{
		Name:      "GOSTR3410_2012_256",
		Mechanism: pkcs11.CKM_GOSTR3410,
		OID:       OIDGOST2012Signature256,
		Digest:    GOSTR34112012256,
		National:  true,
	}
	GOSTR34102012512 = &SignatureAlgorithm{
		Name:      "GOSTR3410_2012_512",
		Mechanism: CKM_GOSTR3410_512,
		OID:       OIDGOST2012Signature512,
		Digest:    GOSTR34112012512,
		National:  true,
	}
	RSASHA1      = rsaSignature("RSA_SHA1", OIDSHA1WithRSA, SHA1)
	RSASHA224    = rsaSignature("RSA_SHA224", OIDSHA224WithRSA, SHA224)
	RSASHA256    = rsaSignature("RSA_SHA256", OIDSHA256WithRSA, SHA256)
	RSASHA384    = rsaSignature("RSA_SHA384", OIDSHA384WithRSA, SHA384)
	RSASHA512    = rsaSignature("RSA_SHA512", OIDSHA512WithRSA, SHA512)
	RSAMD5       = rsaSignature("RSA_MD5", OIDMD5WithRSA, MD5)
	RSARIPEMD128 = rsaSignature("RSA_RIPEMD128", OIDRIPEMD128WithRSA, RIPEMD128)
	RSARIPEMD160 = rsaSignature("RSA_RIPEMD160", OIDRIPEMD160WithRSA, RIPEMD160)
	RSARIPEMD256 = rsaSignature("RSA_RIPEMD256", OIDRIPEMD256WithRSA, RIPEMD256)
)

var digests = []*DigestAlgorithm{
	GOSTR341194,
	GOSTR34112012256,
	GOSTR34112012512,
	SHA1,
	SHA224,
	SHA256,
	SHA384,
	SHA512,
	MD5,
	RIPEMD128,
	RIPEMD160,
	RIPEMD256,
}

var signatures = []*SignatureAlgorithm{
	GOSTR34102001,
	GOSTR34102012256,
	GOSTR34102012512,
	RSASHA1,
	RSASHA224,
	RSASHA256,
	RSASHA384,
	RSASHA512,
	RSAMD5,
	RSARIPEMD128,
	RSARIPEMD160,
	RSARIPEMD256,
}

func rsaSignature(name string, oid asn1.ObjectIdentifier, digest *DigestAlgorithm) *SignatureAlgorithm {
	return &SignatureAlgorithm{
		Name:      name,
		Mechanism: pkcs11.CKM_RSA_PKCS,
		OID:       oid,
		Digest:    digest,
	}
}

func mustMarshalOID(oid asn1.ObjectIdentifier) []byte {
	der, err := asn1.Marshal(oid)
	if err != nil {
		panic(err)
	}
	return der
}
