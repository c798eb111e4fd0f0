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

package software

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jeremyhahn/go-signer/pkg/backend"
	"github.com/jeremyhahn/go-signer/pkg/logging"
	"github.com/jeremyhahn/go-signer/pkg/validation"
)

// Container formats.
const (
	FormatKeyStore = "keystore"
	FormatPKCS12   = "pkcs12"
)

// Config locates the key container and the entry to sign with.
type Config struct {
	// Path is the container file
	Path string `yaml:"path" json:"path" mapstructure:"path"`

	// Format is FormatKeyStore or FormatPKCS12. Empty selects PKCS#12 for
	// .p12 and .pfx files and the keystore format otherwise.
	Format string `yaml:"format,omitempty" json:"format,omitempty" mapstructure:"format"`

	// Alias names the keystore entry. PKCS#12 files hold a single key and
	// ignore it.
	Alias string `yaml:"alias" json:"alias" mapstructure:"alias"`

	// Password unlocks the entry. New clears it once the key is decrypted.
	Password []byte `yaml:"-" json:"-" mapstructure:"-"`

	// Logger receives backend events; nil uses the default logger
	Logger *logging.Logger `yaml:"-" json:"-" mapstructure:"-"`
}

// ContainerFormat returns the explicit format or the one implied by the
// file extension.
func (c *Config) ContainerFormat() string {
	if c.Format != "" {
		return c.Format
	}
	switch strings.ToLower(filepath.Ext(c.Path)) {
	case ".p12", ".pfx":
		return FormatPKCS12
	}
	return FormatKeyStore
}

// Validate checks that the container can be located.
func (c *Config) Validate() error {
	if c == nil {
		return backend.ErrInvalidConfig
	}
	if c.Path == "" {
		return fmt.Errorf("%w: container path is required", backend.ErrInvalidConfig)
	}
	switch c.ContainerFormat() {
	case FormatKeyStore:
		if err := validation.ValidateAlias(c.Alias); err != nil {
			return fmt.Errorf("%w: %v", backend.ErrInvalidConfig, err)
		}
	case FormatPKCS12:
	default:
		return fmt.Errorf("%w: unknown container format %q", backend.ErrInvalidConfig, c.Format)
	}
	return nil
}

// String returns a string representation of the config with the password
// masked.
func (c *Config) String() string {
	passwordMask := "****"
	if len(c.Password) == 0 {
		passwordMask = "<not set>"
	}
	return fmt.Sprintf("Software Config{Path: %s, Format: %s, Alias: %s, Password: %s}",
		c.Path, c.ContainerFormat(), c.Alias, passwordMask)
}
