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

// Package testutil builds RSA and GOST R 34.10-2012 certificate hierarchies
// for tests. Certificates carry the OGRN organizational identifier in the
// subject and issuer names so chains can be linked the way Russian
// qualified certificates are.
package testutil

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.cypherpunks.ru/gogost/v5/gost34112012256"
	"go.cypherpunks.ru/gogost/v5/gost34112012512"

	"github.com/jeremyhahn/go-signer/pkg/algorithm"
	"github.com/jeremyhahn/go-signer/pkg/gost"
)

// OIDOGRN is the OGRN organizational identifier attribute type.
var OIDOGRN = asn1.ObjectIdentifier{1, 2, 643, 100, 1}

// KeyType selects the key algorithm of a generated identity.
type KeyType int

const (
	KeyRSA KeyType = iota
	KeyGOST256
	KeyGOST512
)

// Identity is a certificate together with its private key.
type Identity struct {
	Cert    *x509.Certificate
	RSAKey  *rsa.PrivateKey
	GOSTKey *gost.PrivateKey
}

// PrivateKey returns the key as *rsa.PrivateKey or *gost.PrivateKey.
func (id *Identity) PrivateKey() any {
	if id.RSAKey != nil {
		return id.RSAKey
	}
	return id.GOSTKey
}

// CertPEM returns the PEM encoded certificate.
func (id *Identity) CertPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: id.Cert.Raw})
}

// CertOptions controls NewIdentity.
type CertOptions struct {
	CommonName string

	// OGRN is the subject organizational identifier; empty omits it
	OGRN string

	// Issuer signs the certificate; nil makes it self-signed
	Issuer *Identity

	KeyType KeyType

	// RSAKey reuses an existing RSA key instead of generating one
	RSAKey *rsa.PrivateKey

	// SignatureOID overrides the signature algorithm used by an RSA issuer
	SignatureOID asn1.ObjectIdentifier
}

var serial atomic.Int64

// NewIdentity generates a key and a certificate described by opts.
func NewIdentity(t testing.TB, opts CertOptions) *Identity {
	t.Helper()

	id := &Identity{}
	var spki []byte
	var err error
	switch opts.KeyType {
	case KeyRSA:
		id.RSAKey = opts.RSAKey
		if id.RSAKey == nil {
			id.RSAKey, err = rsa.GenerateKey(rand.Reader, 2048)
			require.NoError(t, err)
		}
		spki, err = x509.MarshalPKIXPublicKey(&id.RSAKey.PublicKey)
	case KeyGOST256:
		id.GOSTKey, spki = newGOSTKey(t, gost.OIDTC26256A)
	case KeyGOST512:
		id.GOSTKey, spki = newGOSTKey(t, gost.OIDTC26512A)
	}
	require.NoError(t, err)

	subject := pkix.Name{CommonName: opts.CommonName}
	if opts.OGRN != "" {
		subject.ExtraNames = []pkix.AttributeTypeAndValue{{Type: OIDOGRN, Value: opts.OGRN}}
	}
	rawSubject, err := asn1.Marshal(subject.ToRDNSequence())
	require.NoError(t, err)

	signer, rawIssuer := id, rawSubject
	if opts.Issuer != nil {
		signer, rawIssuer = opts.Issuer, opts.Issuer.Cert.RawSubject
	}

	sigAlg, sign := signatureFor(t, signer, opts.SignatureOID)
	now := time.Now().UTC().Truncate(time.Second)
	tbs, err := asn1.Marshal(tbsCertificate{
		Version:            2,
		SerialNumber:       big.NewInt(serial.Add(1)),
		SignatureAlgorithm: sigAlg,
		Issuer:             asn1.RawValue{FullBytes: rawIssuer},
		Validity:           validity{NotBefore: now.Add(-time.Hour), NotAfter: now.Add(365 * 24 * time.Hour)},
		Subject:            asn1.RawValue{FullBytes: rawSubject},
		PublicKey:          asn1.RawValue{FullBytes: spki},
	})
	require.NoError(t, err)

	signature := sign(tbs)
	der, err := asn1.Marshal(certificate{
		TBSCertificate:     asn1.RawValue{FullBytes: tbs},
		SignatureAlgorithm: sigAlg,
		SignatureValue:     asn1.BitString{Bytes: signature, BitLength: 8 * len(signature)},
	})
	require.NoError(t, err)

	id.Cert, err = x509.ParseCertificate(der)
	require.NoError(t, err)
	return id
}

// Hierarchy is a three level chain whose links are OGRN values.
type Hierarchy struct {
	Root         *Identity
	Intermediate *Identity
	Leaf         *Identity
}

// NewHierarchy creates root, intermediate and leaf identities of keyType.
// The leaf carries no OGRN of its own, like a personal certificate.
func NewHierarchy(t testing.TB, keyType KeyType) *Hierarchy {
	t.Helper()
	root := NewIdentity(t, CertOptions{CommonName: "Test Root CA", OGRN: "1027700000001", KeyType: keyType})
	intermediate := NewIdentity(t, CertOptions{
		CommonName: "Test Issuing CA",
		OGRN:       "1027700000002",
		Issuer:     root,
		KeyType:    keyType,
	})
	leaf := NewIdentity(t, CertOptions{CommonName: "signer", Issuer: intermediate, KeyType: keyType})
	return &Hierarchy{Root: root, Intermediate: intermediate, Leaf: leaf}
}

func newGOSTKey(t testing.TB, paramSet asn1.ObjectIdentifier) (*gost.PrivateKey, []byte) {
	key, err := gost.GenerateKey(paramSet, rand.Reader)
	require.NoError(t, err)
	pub, err := key.Public()
	require.NoError(t, err)
	spki, err := gost.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return key, spki
}

func signatureFor(t testing.TB, signer *Identity, override asn1.ObjectIdentifier) (pkix.AlgorithmIdentifier, func([]byte) []byte) {
	if signer.RSAKey != nil {
		oid, hash := algorithm.OIDSHA256WithRSA, crypto.SHA256
		if override != nil {
			oid = override
			hash = rsaHashes[override.String()]
		}
		return pkix.AlgorithmIdentifier{Algorithm: oid, Parameters: asn1.NullRawValue}, func(tbs []byte) []byte {
			h := hash.New()
			h.Write(tbs)
			sig, err := rsa.SignPKCS1v15(rand.Reader, signer.RSAKey, hash, h.Sum(nil))
			require.NoError(t, err)
			return sig
		}
	}

	is512 := signer.GOSTKey.Algorithm.Equal(gost.OIDPublicKey2012512)
	oid := algorithm.OIDGOST2012Signature256
	if is512 {
		oid = algorithm.OIDGOST2012Signature512
	}
	return pkix.AlgorithmIdentifier{Algorithm: oid}, func(tbs []byte) []byte {
		var sum []byte
		if is512 {
			h := gost34112012512.New()
			h.Write(tbs)
			sum = h.Sum(nil)
		} else {
			h := gost34112012256.New()
			h.Write(tbs)
			sum = h.Sum(nil)
		}
		sig, err := signer.GOSTKey.Sign(rand.Reader, sum)
		require.NoError(t, err)
		return sig
	}
}

var rsaHashes = map[string]crypto.Hash{
	algorithm.OIDSHA1WithRSA.String():   crypto.SHA1,
	algorithm.OIDSHA256WithRSA.String(): crypto.SHA256,
	algorithm.OIDSHA384WithRSA.String(): crypto.SHA384,
	algorithm.OIDSHA512WithRSA.String(): crypto.SHA512,
}

type tbsCertificate struct {
	Version            int `asn1:"optional,explicit,default:0,tag:0"`
	SerialNumber       *big.Int
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Issuer             asn1.RawValue
	Validity           validity
	Subject            asn1.RawValue
	PublicKey          asn1.RawValue
}

type validity struct {
	NotBefore, NotAfter time.Time
}

type certificate struct {
	TBSCertificate     asn1.RawValue
	SignatureAlgorithm pkix.AlgorithmIdentifier
	SignatureValue     asn1.BitString
}
