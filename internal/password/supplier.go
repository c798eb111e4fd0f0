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

package password

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ErrNoPassword is returned by a Supplier that has nothing to offer, so
// that a Chain can move on to the next one.
var ErrNoPassword = errors.New("no password supplied")

// Supplier obtains a secret. prompt describes the secret for interactive
// suppliers.
type Supplier interface {
	Password(prompt string) (Password, error)
}

// Static supplies a fixed value, typically from a command line flag.
type Static []byte

// Password returns a copy of the value.
func (s Static) Password(string) (Password, error) {
	if len(s) == 0 {
		return nil, ErrNoPassword
	}
	return NewClearPassword(s)
}

// Env supplies the value of an environment variable.
type Env string

// Password reads the variable named by e.
func (e Env) Password(string) (Password, error) {
	value, ok := os.LookupEnv(string(e))
	if !ok || value == "" {
		return nil, ErrNoPassword
	}
	return NewClearPasswordFromString(value)
}

// Terminal reads a secret from a terminal with echo disabled.
type Terminal struct {
	// In is the terminal to read from; nil uses os.Stdin
	In *os.File

	// Out receives the prompt; nil uses os.Stderr
	Out io.Writer
}

// Password prompts for and reads the secret. It returns ErrNoPassword when
// In is not a terminal.
func (t Terminal) Password(prompt string) (Password, error) {
	in, out := t.In, t.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNoPassword
	}
	fmt.Fprintf(out, "%s: ", prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	defer clear(secret)
	if len(secret) == 0 {
		return nil, ErrEmptyPassword
	}
	return NewClearPassword(secret)
}

// Chain tries each supplier in order and returns the first secret found.
type Chain []Supplier

// Password returns the first secret supplied, or ErrNoPassword when no
// supplier has one.
func (c Chain) Password(prompt string) (Password, error) {
	for _, s := range c {
		p, err := s.Password(prompt)
		if errors.Is(err, ErrNoPassword) {
			continue
		}
		return p, err
	}
	return nil, fmt.Errorf("%w: %s", ErrNoPassword, prompt)
}

// NewSupplier returns the usual lookup order for a secret: the flag value,
// then the environment variable, then the terminal.
func NewSupplier(flagValue string, envVar string) Supplier {
	chain := Chain{}
	if flagValue != "" {
		chain = append(chain, Static(flagValue))
	}
	if envVar != "" {
		chain = append(chain, Env(envVar))
	}
	return append(chain, Terminal{})
}
