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

package digest

import (
	"fmt"

	"github.com/jeremyhahn/go-signer/pkg/algorithm"
	"github.com/jeremyhahn/go-signer/pkg/token"
)

// Session starts digest operations on a token.
type Session interface {
	BeginDigest(mech uint, params []byte) (*token.DigestOperation, error)
}

type hardwareEngine struct {
	session Session
	alg     *algorithm.DigestAlgorithm
	op      *token.DigestOperation
	state   state
}

// NewHardware returns an engine that digests on the token. The device
// operation starts on the first Write, or on Sum when nothing was written,
// and holds the session until Sum or Reset.
func NewHardware(session Session, alg *algorithm.DigestAlgorithm) (Engine, error) {
	if !alg.HasMechanism() {
		return nil, fmt.Errorf("%w: %s", algorithm.ErrNoMechanism, alg)
	}
	return &hardwareEngine{session: session, alg: alg}, nil
}

func (e *hardwareEngine) begin() error {
	op, err := e.session.BeginDigest(e.alg.Mechanism, e.alg.Params)
	if err != nil {
		return err
	}
	e.op = op
	e.state = accumulating
	return nil
}

func (e *hardwareEngine) Write(p []byte) (int, error) {
	if e.state == finalized {
		return 0, ErrFinalized
	}
	if e.op == nil {
		if err := e.begin(); err != nil {
			return 0, err
		}
	}
	if err := e.op.Update(p); err != nil {
		// the device has ended the operation
		e.op = nil
		e.state = finalized
		return 0, err
	}
	return len(p), nil
}

func (e *hardwareEngine) Sum() ([]byte, error) {
	if e.state == finalized {
		return nil, ErrFinalized
	}
	if e.op == nil {
		if err := e.begin(); err != nil {
			return nil, err
		}
	}
	sum, err := e.op.Final()
	e.op = nil
	e.state = finalized
	if err != nil {
		return nil, err
	}
	return sum, nil
}

func (e *hardwareEngine) Reset() error {
	var err error
	if e.op != nil {
		err = e.op.Abort()
		e.op = nil
	}
	e.state = uninitialized
	return err
}

func (e *hardwareEngine) Algorithm() *algorithm.DigestAlgorithm {
	return e.alg
}

func (e *hardwareEngine) Size() int {
	return e.alg.Size
}
