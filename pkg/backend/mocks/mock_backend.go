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

package mocks

import (
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"sync"

	"github.com/jeremyhahn/go-signer/pkg/algorithm"
	"github.com/jeremyhahn/go-signer/pkg/backend"
	"github.com/jeremyhahn/go-signer/pkg/digest"
	"github.com/jeremyhahn/go-signer/pkg/signing"
)

// MockBackend is a mock implementation of backend.Backend for testing.
// By default it signs in process with the key it was created with.
type MockBackend struct {
	mu sync.RWMutex

	signer *signing.Signer
	chain  []*x509.Certificate

	// Configurable behavior
	TypeFunc             func() backend.Type
	SignRawFunc          func([]byte) ([]byte, error)
	CertificateChainFunc func() ([]*x509.Certificate, error)
	CloseFunc            func() error

	// Call tracking
	SignRawCalls          [][]byte
	CertificateChainCalls int
	CloseCalls            int

	// State
	closed bool
}

// NewMockBackend creates a MockBackend signing with key under the
// algorithm derived from chain[0].
func NewMockBackend(key any, chain []*x509.Certificate) (*MockBackend, error) {
	if len(chain) == 0 {
		return nil, backend.ErrCertificateNotFound
	}
	alg, err := algorithm.ForCertificate(chain[0])
	if err != nil {
		return nil, err
	}
	signer, err := signing.NewSigner(key, alg)
	if err != nil {
		return nil, err
	}
	return &MockBackend{signer: signer, chain: chain}, nil
}

// Type returns the backend type.
func (m *MockBackend) Type() backend.Type {
	if m.TypeFunc != nil {
		return m.TypeFunc()
	}
	return backend.TypeSoftware
}

// SignRaw digests and signs data.
func (m *MockBackend) SignRaw(data []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SignRawCalls = append(m.SignRawCalls, append([]byte{}, data...))

	if m.SignRawFunc != nil {
		return m.SignRawFunc(data)
	}
	if m.closed {
		return nil, backend.ErrBackendClosed
	}

	alg := m.signer.Algorithm()
	sum, err := digest.Sum(alg.Digest, data)
	if err != nil {
		return nil, err
	}
	return m.signer.Sign(rand.Reader, sum, nil)
}

// Certificate returns the first certificate of the chain.
func (m *MockBackend) Certificate() (*x509.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, backend.ErrBackendClosed
	}
	return m.chain[0], nil
}

// CertificateChain returns the chain the mock was created with.
func (m *MockBackend) CertificateChain() ([]*x509.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CertificateChainCalls++

	if m.CertificateChainFunc != nil {
		return m.CertificateChainFunc()
	}
	if m.closed {
		return nil, backend.ErrBackendClosed
	}
	return append([]*x509.Certificate(nil), m.chain...), nil
}

// DigestEngine returns a software engine.
func (m *MockBackend) DigestEngine(alg pkix.AlgorithmIdentifier) (digest.Engine, error) {
	d, err := algorithm.DigestByOID(alg.Algorithm)
	if err != nil {
		return nil, err
	}
	return digest.NewSoftware(d)
}

// SignatureAlgorithm returns the signer's algorithm.
func (m *MockBackend) SignatureAlgorithm() *algorithm.SignatureAlgorithm {
	return m.signer.Algorithm()
}

// Close closes the backend.
func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CloseCalls++

	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	m.closed = true
	return nil
}

// IsClosed reports whether Close succeeded.
func (m *MockBackend) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

var _ backend.Backend = (*MockBackend)(nil)
