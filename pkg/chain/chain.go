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

// Package chain orders a certificate chain by walking organizational
// identifiers. Each certificate names its issuer through an identifier
// attribute (by default the Russian OGRN) in the issuer DN, and the walk
// follows the certificate whose subject DN carries the same value.
package chain

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
)

// OIDOGRN is the OGRN attribute type, the primary state registration
// number of a Russian legal entity.
var OIDOGRN = asn1.ObjectIdentifier{1, 2, 643, 100, 1}

// Resolver builds chains over a certificate pool.
type Resolver struct {
	// OID is the attribute type linking a certificate to its issuer; nil
	// selects OIDOGRN
	OID asn1.ObjectIdentifier
}

// Resolve returns signer followed by its issuers as found in pool. The
// first pool certificate whose subject identifier equals the current
// issuer identifier is taken. The walk stops at a self-issued certificate,
// at a certificate without an issuer identifier, when no issuer is found,
// or on a cycle. A partial chain is not an error.
func (r Resolver) Resolve(signer *x509.Certificate, pool []*x509.Certificate) []*x509.Certificate {
	oid := r.OID
	if oid == nil {
		oid = OIDOGRN
	}

	chain := []*x509.Certificate{signer}
	visited := map[string]bool{string(signer.Raw): true}
	current := signer
	for {
		issuerID, ok := OrgID(current.Issuer, oid)
		if !ok {
			return chain
		}
		if subjectID, ok := OrgID(current.Subject, oid); ok && subjectID == issuerID {
			return chain
		}
		next := findSubject(pool, oid, issuerID)
		if next == nil || visited[string(next.Raw)] {
			return chain
		}
		visited[string(next.Raw)] = true
		chain = append(chain, next)
		current = next
	}
}

func findSubject(pool []*x509.Certificate, oid asn1.ObjectIdentifier, id string) *x509.Certificate {
	for _, cert := range pool {
		if subjectID, ok := OrgID(cert.Subject, oid); ok && subjectID == id {
			return cert
		}
	}
	return nil
}

// OrgID returns the value of the oid attribute in name.
func OrgID(name pkix.Name, oid asn1.ObjectIdentifier) (string, bool) {
	for _, atv := range name.Names {
		if !atv.Type.Equal(oid) {
			continue
		}
		switch v := atv.Value.(type) {
		case string:
			return v, true
		case fmt.Stringer:
			return v.String(), true
		default:
			return fmt.Sprint(v), true
		}
	}
	return "", false
}
