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

package chain_test

import (
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-signer/internal/testutil"
	"github.com/jeremyhahn/go-signer/pkg/chain"
)

func subjects(certs []*x509.Certificate) []string {
	names := make([]string, len(certs))
	for i, c := range certs {
		names[i] = c.Subject.CommonName
	}
	return names
}

func TestResolve(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyGOST256)
	other := testutil.NewIdentity(t, testutil.CertOptions{CommonName: "Unrelated CA", OGRN: "1027700000099", KeyType: testutil.KeyGOST256})
	unlinked := testutil.NewIdentity(t, testutil.CertOptions{CommonName: "No OGRN", KeyType: testutil.KeyGOST256})

	tests := []struct {
		name   string
		signer *x509.Certificate
		pool   []*x509.Certificate
		want   []string
	}{
		{
			name:   "self issued",
			signer: h.Root.Cert,
			pool:   []*x509.Certificate{h.Root.Cert, h.Intermediate.Cert, h.Leaf.Cert},
			want:   []string{"Test Root CA"},
		},
		{
			name:   "shuffled pool",
			signer: h.Leaf.Cert,
			pool:   []*x509.Certificate{unlinked.Cert, h.Root.Cert, other.Cert, h.Leaf.Cert, h.Intermediate.Cert},
			want:   []string{"signer", "Test Issuing CA", "Test Root CA"},
		},
		{
			name:   "missing intermediate",
			signer: h.Leaf.Cert,
			pool:   []*x509.Certificate{h.Root.Cert, h.Leaf.Cert},
			want:   []string{"signer"},
		},
		{
			name:   "missing root",
			signer: h.Leaf.Cert,
			pool:   []*x509.Certificate{h.Intermediate.Cert},
			want:   []string{"signer", "Test Issuing CA"},
		},
		{
			name:   "empty pool",
			signer: h.Leaf.Cert,
			want:   []string{"signer"},
		},
		{
			name:   "issuer without identifier",
			signer: unlinked.Cert,
			pool:   []*x509.Certificate{h.Root.Cert},
			want:   []string{"No OGRN"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chain.Resolver{}.Resolve(tt.signer, tt.pool)
			assert.Equal(t, tt.want, subjects(got))
			assert.Same(t, tt.signer, got[0])
		})
	}
}

func TestResolve_FirstMatchWins(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyRSA)
	duplicate := testutil.NewIdentity(t, testutil.CertOptions{CommonName: "Duplicate CA", OGRN: "1027700000002", KeyType: testutil.KeyRSA})

	got := chain.Resolver{}.Resolve(h.Leaf.Cert, []*x509.Certificate{duplicate.Cert, h.Intermediate.Cert, h.Root.Cert})
	require.Len(t, got, 2)
	// the duplicate is self-issued, which ends the walk
	assert.Equal(t, "Duplicate CA", got[1].Subject.CommonName)
}

func TestResolve_Cycle(t *testing.T) {
	a := testutil.NewIdentity(t, testutil.CertOptions{CommonName: "A", OGRN: "1", KeyType: testutil.KeyGOST256})
	b := testutil.NewIdentity(t, testutil.CertOptions{CommonName: "B", OGRN: "2", Issuer: a, KeyType: testutil.KeyGOST256})
	// A re-issued by B, closing the loop A -> B -> A
	a2 := testutil.NewIdentity(t, testutil.CertOptions{CommonName: "A", OGRN: "1", Issuer: b, KeyType: testutil.KeyGOST256})

	got := chain.Resolver{}.Resolve(b.Cert, []*x509.Certificate{a2.Cert, b.Cert})
	assert.Equal(t, []string{"B", "A"}, subjects(got))

	got = chain.Resolver{}.Resolve(a2.Cert, []*x509.Certificate{a2.Cert, b.Cert})
	assert.Equal(t, []string{"A", "B"}, subjects(got))
}

func TestOrgID(t *testing.T) {
	h := testutil.NewHierarchy(t, testutil.KeyGOST256)

	id, ok := chain.OrgID(h.Intermediate.Cert.Subject, chain.OIDOGRN)
	require.True(t, ok)
	assert.Equal(t, "1027700000002", id)

	id, ok = chain.OrgID(h.Intermediate.Cert.Issuer, chain.OIDOGRN)
	require.True(t, ok)
	assert.Equal(t, "1027700000001", id)

	_, ok = chain.OrgID(h.Leaf.Cert.Subject, chain.OIDOGRN)
	assert.False(t, ok)
}
