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

// Package software implements the signing backend over a password
// protected key container on disk: a go-signer keystore file or a PKCS#12
// file. Digests and signatures are computed in process.
package software

import (
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jeremyhahn/go-signer/pkg/algorithm"
	"github.com/jeremyhahn/go-signer/pkg/backend"
	"github.com/jeremyhahn/go-signer/pkg/digest"
	"github.com/jeremyhahn/go-signer/pkg/keystore"
	"github.com/jeremyhahn/go-signer/pkg/logging"
	"github.com/jeremyhahn/go-signer/pkg/metrics"
	"github.com/jeremyhahn/go-signer/pkg/signing"
)

var errorTypes = metrics.ErrorClassifier{
	keystore.ErrInvalidPassword:       "invalid_password",
	keystore.ErrAliasNotFound:         "alias_not_found",
	keystore.ErrInvalidFormat:         "invalid_format",
	algorithm.ErrUnsupportedAlgorithm: "unsupported_algorithm",
	signing.ErrSigningFailed:          "signing_failed",
	backend.ErrBackendClosed:          "backend_closed",
}

var _ backend.Backend = (*SoftwareBackend)(nil)

// SoftwareBackend signs with a private key decrypted from a container.
//
// Thread-safe: Yes, uses a read-write mutex for concurrent access.
type SoftwareBackend struct {
	signer *signing.Signer
	alg    *algorithm.SignatureAlgorithm
	chain  []*x509.Certificate
	logger *logging.Logger
	closed bool
	mu     sync.RWMutex
}

// NewBackend opens the container named by config and decrypts the entry.
// config.Password is cleared before NewBackend returns, whether or not the
// container could be opened.
func NewBackend(config *Config) (b *SoftwareBackend, err error) {
	start := time.Now()
	defer func() {
		metrics.Observe(metrics.OpOpen, backend.TypeSoftware.String(), start, err, errorTypes)
	}()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	defer clear(config.Password)

	logger := config.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	key, chain, err := loadKey(config)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: container holds no certificate", backend.ErrCertificateNotFound)
	}
	if err := keystore.MatchCertificate(key, chain[0]); err != nil {
		return nil, err
	}

	alg, err := algorithm.ForCertificate(chain[0])
	if err != nil {
		return nil, err
	}
	signer, err := signing.NewSigner(key, alg)
	if err != nil {
		return nil, err
	}

	logger.Infof("opened %s container %s: subject=%q algorithm=%s chain=%d",
		config.ContainerFormat(), config.Path, chain[0].Subject.CommonName, alg, len(chain))
	metrics.SetCertificatesTotal(backend.TypeSoftware.String(), len(chain))

	return &SoftwareBackend{
		signer: signer,
		alg:    alg,
		chain:  chain,
		logger: logger,
	}, nil
}

func loadKey(config *Config) (any, []*x509.Certificate, error) {
	if config.ContainerFormat() == FormatPKCS12 {
		data, err := os.ReadFile(config.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", backend.ErrInvalidConfig, err)
		}
		return keystore.ImportPKCS12(data, string(config.Password))
	}
	ks, err := keystore.Load(config.Path)
	if err != nil {
		return nil, nil, err
	}
	return ks.Get(config.Alias, config.Password)
}

// Type returns backend.TypeSoftware.
func (b *SoftwareBackend) Type() backend.Type {
	return backend.TypeSoftware
}

// SignRaw digests data and signs the digest.
func (b *SoftwareBackend) SignRaw(data []byte) (sig []byte, err error) {
	start := time.Now()
	defer func() {
		metrics.Observe(metrics.OpSign, backend.TypeSoftware.String(), start, err, errorTypes)
	}()

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, backend.ErrBackendClosed
	}

	alg := b.alg
	sig, err = b.signer.Sign(rand.Reader, nil, signing.NewSignerOpts(data))
	if err != nil {
		return nil, err
	}
	metrics.RecordDigestBytes(alg.Digest.Name, backend.TypeSoftware.String(), len(data))
	b.logger.Debugf("signed %d bytes with %s", len(data), alg)
	return sig, nil
}

// Certificate returns the first certificate of the stored chain.
func (b *SoftwareBackend) Certificate() (*x509.Certificate, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, backend.ErrBackendClosed
	}
	return b.chain[0], nil
}

// CertificateChain returns the chain in the order the container stores it.
func (b *SoftwareBackend) CertificateChain() ([]*x509.Certificate, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, backend.ErrBackendClosed
	}
	return append([]*x509.Certificate(nil), b.chain...), nil
}

// DigestEngine returns a software engine for the digest identified by alg.
func (b *SoftwareBackend) DigestEngine(alg pkix.AlgorithmIdentifier) (digest.Engine, error) {
	d, err := algorithm.DigestByOID(alg.Algorithm)
	if err != nil {
		return nil, err
	}
	return digest.NewSoftware(d)
}

// SignatureAlgorithm returns the algorithm derived from the certificate.
func (b *SoftwareBackend) SignatureAlgorithm() *algorithm.SignatureAlgorithm {
	return b.alg
}

// Close drops the decrypted key. It is safe to call more than once.
func (b *SoftwareBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.signer = nil
	b.logger.Debug("software backend closed")
	return nil
}
