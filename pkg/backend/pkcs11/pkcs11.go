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

package pkcs11

import (
	"bytes"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jeremyhahn/go-signer/pkg/algorithm"
	"github.com/jeremyhahn/go-signer/pkg/backend"
	"github.com/jeremyhahn/go-signer/pkg/chain"
	"github.com/jeremyhahn/go-signer/pkg/digest"
	"github.com/jeremyhahn/go-signer/pkg/logging"
	"github.com/jeremyhahn/go-signer/pkg/metrics"
	"github.com/jeremyhahn/go-signer/pkg/token"
	"github.com/jeremyhahn/go-signer/pkg/validation"
)

var errorTypes = metrics.ErrorClassifier{
	token.ErrSessionEstablishment:     "session_establishment",
	token.ErrObjectNotFound:           "object_not_found",
	token.ErrDeviceProtocol:           "device_protocol",
	token.ErrOperationActive:          "operation_active",
	algorithm.ErrUnsupportedAlgorithm: "unsupported_algorithm",
	backend.ErrCertificateNotFound:    "certificate_not_found",
	backend.ErrBackendClosed:          "backend_closed",
}

var _ backend.Backend = (*Backend)(nil)

// Backend signs with a private key held on a PKCS#11 token. The session,
// the signer certificate and its key pair are resolved once by NewBackend
// and kept until Close.
//
// Thread-safe: Yes. A mutex makes each SignRaw sequence of digest, wrap
// and sign atomic with respect to other callers.
type Backend struct {
	session *token.Session
	cert    *x509.Certificate
	keyPair *token.KeyPair
	alg     *algorithm.SignatureAlgorithm
	logger  *logging.Logger
	closed  bool
	mu      sync.Mutex
}

// NewBackend loads the library, opens an authenticated session, locates
// the signer certificate and the key pair matching it, and resolves the
// signature algorithm. The session is closed again if any step fails.
func NewBackend(config *Config) (b *Backend, err error) {
	start := time.Now()
	defer func() {
		metrics.Observe(metrics.OpOpen, backend.TypePKCS11.String(), start, err, errorTypes)
	}()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	// Read the external certificate before touching the token
	external, err := config.signerCertificate()
	if err != nil {
		return nil, err
	}

	loader := config.Loader
	if loader == nil {
		loader = token.LoadModule
	}
	module, err := loader(config.Library)
	if err != nil {
		return nil, err
	}

	tokenConfig := config.Config
	tokenConfig.Logger = logger
	session, err := token.Open(module, &tokenConfig, config.PIN)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			logger.MaybeError(session.Close())
		}
	}()

	cert, err := findCertificate(session, config.CertID, external)
	if err != nil {
		return nil, err
	}
	keyPair, err := session.FindKeyPair(cert)
	if err != nil {
		return nil, err
	}
	alg, err := algorithm.ForCertificate(cert)
	if err != nil {
		return nil, err
	}

	logger.Infof("signer certificate: subject=%q serial=%s algorithm=%s key=%x",
		cert.Subject.CommonName, cert.SerialNumber, alg, keyPair.ID)

	return &Backend{
		session: session,
		cert:    cert,
		keyPair: keyPair,
		alg:     alg,
		logger:  logger,
	}, nil
}

// findCertificate returns the token certificate with CKA_ID certID, or the
// one whose DER equals external.
func findCertificate(session *token.Session, certID string, external *x509.Certificate) (*x509.Certificate, error) {
	if external == nil {
		id, err := validation.ValidateCertID(certID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCertID, err)
		}
		obj, err := session.FindCertificate(id)
		if errors.Is(err, token.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: no certificate with id %s", backend.ErrCertificateNotFound, certID)
		}
		if err != nil {
			return nil, err
		}
		return x509.ParseCertificate(obj.Value)
	}

	objs, err := session.Certificates()
	if err != nil {
		return nil, err
	}
	for _, obj := range objs {
		if bytes.Equal(obj.Value, external.Raw) {
			return x509.ParseCertificate(obj.Value)
		}
	}
	return nil, fmt.Errorf("%w: %q is not on the token", backend.ErrCertificateNotFound, external.Subject.CommonName)
}

// Type returns backend.TypePKCS11.
func (b *Backend) Type() backend.Type {
	return backend.TypePKCS11
}

// SignRaw digests data on the token and signs the digest with the private
// key. RSA keys sign the DigestInfo; GOST keys sign the digest itself.
// A device protocol error closes the session.
func (b *Backend) SignRaw(data []byte) (sig []byte, err error) {
	start := time.Now()
	defer func() {
		metrics.Observe(metrics.OpSign, backend.TypePKCS11.String(), start, err, errorTypes)
	}()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, backend.ErrBackendClosed
	}
	defer func() { b.teardownOnFatal(err) }()

	engine, err := b.newEngine(b.alg.Digest)
	if err != nil {
		return nil, err
	}
	if _, err := engine.Write(data); err != nil {
		return nil, err
	}
	sum, err := engine.Sum()
	if err != nil {
		return nil, err
	}
	metrics.RecordDigestBytes(b.alg.Digest.Name, backend.TypePKCS11.String(), len(data))

	buf := sum
	if !b.alg.National {
		if buf, err = algorithm.DigestInfo(b.alg.Digest, sum); err != nil {
			return nil, err
		}
	}
	sig, err = b.session.Sign(b.alg.Mechanism, b.keyPair.Private, buf)
	if err != nil {
		return nil, err
	}
	b.logger.Debugf("signed %d bytes with %s", len(data), b.alg)
	return sig, nil
}

// teardownOnFatal closes the session after an error that leaves it in an
// undefined state. Later calls return backend.ErrBackendClosed. Callers
// hold b.mu.
func (b *Backend) teardownOnFatal(err error) {
	if b.closed || !backend.IsFatal(err) {
		return
	}
	b.logger.Warnf("closing token session after fatal error: %v", err)
	b.closed = true
	b.logger.MaybeError(b.session.Close())
}

// newEngine digests on the token when it has a mechanism for alg and in
// process otherwise.
func (b *Backend) newEngine(alg *algorithm.DigestAlgorithm) (digest.Engine, error) {
	if !alg.HasMechanism() {
		b.logger.Debugf("no token mechanism for %s, digesting in software", alg)
		return digest.NewSoftware(alg)
	}
	return digest.NewHardware(b.session, alg)
}

// Certificate returns the signer certificate.
func (b *Backend) Certificate() (*x509.Certificate, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, backend.ErrBackendClosed
	}
	return b.cert, nil
}

// CertificateChain orders the certificates stored on the token into a
// chain starting at the signer certificate. Certificates that fail to parse
// are skipped.
func (b *Backend) CertificateChain() (certs []*x509.Certificate, err error) {
	start := time.Now()
	defer func() {
		metrics.Observe(metrics.OpChain, backend.TypePKCS11.String(), start, err, errorTypes)
	}()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, backend.ErrBackendClosed
	}
	defer func() { b.teardownOnFatal(err) }()

	objs, err := b.session.Certificates()
	if err != nil {
		return nil, err
	}
	metrics.SetCertificatesTotal(backend.TypePKCS11.String(), len(objs))

	pool := make([]*x509.Certificate, 0, len(objs))
	for _, obj := range objs {
		cert, err := x509.ParseCertificate(obj.Value)
		if err != nil {
			b.logger.Warnf("skipping certificate %q (id %x): %v", obj.Label, obj.ID, err)
			continue
		}
		pool = append(pool, cert)
	}
	return chain.Resolver{}.Resolve(b.cert, pool), nil
}

// DigestEngine returns an engine for the digest identified by alg,
// computed on the token when it supports the algorithm.
func (b *Backend) DigestEngine(alg pkix.AlgorithmIdentifier) (digest.Engine, error) {
	d, err := algorithm.DigestByOID(alg.Algorithm)
	if err != nil {
		return nil, err
	}
	return b.newEngine(d)
}

// SignatureAlgorithm returns the algorithm resolved from the certificate.
func (b *Backend) SignatureAlgorithm() *algorithm.SignatureAlgorithm {
	return b.alg
}

// Session returns the token session.
func (b *Backend) Session() *token.Session {
	return b.session
}

// Close logs out and releases the token session. It is safe to call more
// than once.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.session.Close()
}
