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

package cli

import (
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-signer/internal/config"
	"github.com/jeremyhahn/go-signer/internal/password"
	"github.com/jeremyhahn/go-signer/pkg/backend"
	"github.com/jeremyhahn/go-signer/pkg/backend/pkcs11"
	"github.com/jeremyhahn/go-signer/pkg/backend/software"
	"github.com/jeremyhahn/go-signer/pkg/token"
)

// openBackend builds the configured backend. The container password or
// token PIN is obtained from the flag, the environment or the terminal and
// cleared once the backend is open.
func openBackend(a *app) (backend.Backend, error) {
	t, err := backend.ParseType(a.cfg.Backend)
	if err != nil {
		return nil, err
	}

	switch t {
	case backend.TypeSoftware:
		cfg := a.cfg.Software
		cfg.Logger = a.log()
		pwd, err := password.NewSupplier(a.flags.Password, config.EnvPassword).Password("Container password")
		if err != nil {
			return nil, err
		}
		defer pwd.Clear()
		cfg.Password = pwd.Bytes()
		b, err := software.NewBackend(&cfg)
		if err != nil {
			return nil, err
		}
		return b, nil

	case backend.TypePKCS11:
		cfg := a.cfg.PKCS11
		cfg.Logger = a.log()
		cfg.Loader = a.loadModule
		pin, err := a.pin()
		if err != nil {
			return nil, err
		}
		defer pin.Clear()
		if cfg.PIN, err = pin.String(); err != nil {
			return nil, err
		}
		b, err := pkcs11.NewBackend(&cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: backend %q", backend.ErrInvalidConfig, t)
}

func (a *app) pin() (password.Password, error) {
	return password.NewSupplier(a.flags.PIN, config.EnvPIN).Password("Token PIN")
}

// openSession logs in to the configured token without selecting a key
func (a *app) openSession() (*token.Session, error) {
	module, err := a.module()
	if err != nil {
		return nil, err
	}
	pin, err := a.pin()
	if err != nil {
		return nil, err
	}
	defer pin.Clear()
	s, err := pin.String()
	if err != nil {
		return nil, err
	}
	cfg := a.cfg.PKCS11.Config
	cfg.Logger = a.log()
	return token.Open(module, &cfg, s)
}

// module loads the configured PKCS#11 library
func (a *app) module() (token.Module, error) {
	library := a.cfg.PKCS11.Library
	if library == "" {
		return nil, errors.New("a PKCS#11 library is required (--library)")
	}
	load := a.loadModule
	if load == nil {
		load = token.LoadModule
	}
	return load(library)
}
