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

package token

import (
	"github.com/miekg/pkcs11"
)

// DigestOperation is the guard for a digest sequence opened by
// BeginDigest. It holds the session's operation slot until Final or Abort.
type DigestOperation struct {
	session *Session
	done    bool
}

// BeginDigest starts a digest sequence. params, when non-nil, is the
// DER-encoded hash parameter set handed to C_DigestInit; nil selects the
// token's native implementation of mech.
func (s *Session) BeginDigest(mech uint, params []byte) (*DigestOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.active {
		return nil, ErrOperationActive
	}

	mechanism := pkcs11.NewMechanism(mech, nil)
	if params != nil {
		mechanism = pkcs11.NewMechanism(mech, params)
	}
	if err := s.module.DigestInit(s.handle, []*pkcs11.Mechanism{mechanism}); err != nil {
		return nil, deviceError("C_DigestInit", err)
	}
	s.active = true
	return &DigestOperation{session: s}, nil
}

// Update feeds p to the digest. An error ends the operation on the device.
func (op *DigestOperation) Update(p []byte) error {
	s := op.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if op.done {
		return ErrOperationDone
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.module.DigestUpdate(s.handle, p); err != nil {
		op.release()
		return deviceError("C_DigestUpdate", err)
	}
	return nil
}

// Final returns the digest and releases the session.
func (op *DigestOperation) Final() ([]byte, error) {
	s := op.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if op.done {
		return nil, ErrOperationDone
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	sum, err := s.module.DigestFinal(s.handle)
	op.release()
	if err != nil {
		return nil, deviceError("C_DigestFinal", err)
	}
	return sum, nil
}

// Abort finishes the digest on the device, discarding the result. Cryptoki
// has no cancel call for digests, so the operation is run to completion.
func (op *DigestOperation) Abort() error {
	if op.done {
		return nil
	}
	_, err := op.Final()
	return err
}

// release must be called with the session lock held.
func (op *DigestOperation) release() {
	op.done = true
	op.session.active = false
}

// Sign signs data with the private key object key using mech. No mechanism
// parameter is passed; the caller prepares data for the mechanism, e.g. a
// DigestInfo for CKM_RSA_PKCS.
func (s *Session) Sign(mech uint, key pkcs11.ObjectHandle, data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.active {
		return nil, ErrOperationActive
	}

	if err := s.module.SignInit(s.handle, []*pkcs11.Mechanism{pkcs11.NewMechanism(mech, nil)}, key); err != nil {
		return nil, deviceError("C_SignInit", err)
	}
	sig, err := s.module.Sign(s.handle, data)
	if err != nil {
		return nil, deviceError("C_Sign", err)
	}
	return sig, nil
}
