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
	"crypto/x509"
	"fmt"
	"os"

	"github.com/jeremyhahn/go-signer/pkg/backend"
	"github.com/jeremyhahn/go-signer/pkg/keystore"
	"github.com/jeremyhahn/go-signer/pkg/token"
	"github.com/jeremyhahn/go-signer/pkg/validation"
)

// Config contains configuration for the PKCS#11 signing backend.
// It specifies the library to load, the token to open, the PIN and the
// signer certificate.
type Config struct {
	// Library is the path to the PKCS#11 library file.
	// Examples:
	//   - /usr/lib/librtpkcs11ecp.so (Rutoken ECP)
	//   - /usr/lib/softhsm/libsofthsm2.so (SoftHSM)
	Library string `yaml:"library" json:"library" mapstructure:"library"`

	// PIN is the user PIN for the token.
	PIN string `yaml:"pin,omitempty" json:"pin,omitempty" mapstructure:"pin"`

	// CertID is the hex encoded CKA_ID of the signer certificate on the
	// token.
	CertID string `yaml:"cert_id,omitempty" json:"cert_id,omitempty" mapstructure:"cert_id"`

	// CertificateFile is a PEM or DER file holding a copy of the signer
	// certificate. The token certificate with identical DER is used.
	CertificateFile string `yaml:"certificate,omitempty" json:"certificate,omitempty" mapstructure:"certificate"`

	// Certificate is the signer certificate itself; it takes precedence
	// over CertificateFile.
	Certificate *x509.Certificate `yaml:"-" json:"-" mapstructure:"-"`

	// Config selects the slot and carries the logger
	token.Config `yaml:",inline" json:",inline" mapstructure:",squash"`

	// Loader opens the library; nil uses token.LoadModule
	Loader token.Loader `yaml:"-" json:"-" mapstructure:"-"`
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c == nil {
		return backend.ErrInvalidConfig
	}

	// Library path is required
	if c.Library == "" {
		return fmt.Errorf("%w: library path is required", backend.ErrInvalidConfig)
	}

	// Only check the file when the real loader will open it
	if c.Loader == nil {
		if _, err := os.Stat(c.Library); os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrLibraryNotFound, c.Library)
		}
	}

	if c.PIN == "" {
		return ErrInvalidUserPIN
	}
	if len(c.PIN) < 4 {
		return ErrInvalidPINLength
	}

	selectors := 0
	if c.CertID != "" {
		if _, err := validation.ValidateCertID(c.CertID); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCertID, err)
		}
		selectors++
	}
	if c.Certificate != nil || c.CertificateFile != "" {
		selectors++
	}
	if selectors != 1 {
		return fmt.Errorf("%w: exactly one of certificate id and certificate is required", backend.ErrInvalidConfig)
	}

	if c.SlotIndex != nil && *c.SlotIndex < 0 {
		return fmt.Errorf("%w: negative slot index", backend.ErrInvalidConfig)
	}
	return nil
}

// signerCertificate returns the configured external certificate, reading
// CertificateFile when needed. It returns nil when the certificate is
// selected by id.
func (c *Config) signerCertificate() (*x509.Certificate, error) {
	if c.Certificate != nil || c.CertificateFile == "" {
		return c.Certificate, nil
	}
	data, err := os.ReadFile(c.CertificateFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrInvalidConfig, err)
	}
	if certs, err := keystore.ParsePEMCertificates(data); err == nil {
		return certs[0], nil
	}
	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: not a PEM or DER certificate", backend.ErrInvalidConfig, c.CertificateFile)
	}
	return cert, nil
}

// String returns a string representation of the config with sensitive data masked.
func (c *Config) String() string {
	pinMask := "****"
	if c.PIN == "" {
		pinMask = "<not set>"
	}

	slot := "<not set>"
	if c.SlotIndex != nil {
		slot = fmt.Sprintf("%d", *c.SlotIndex)
	}

	return fmt.Sprintf("PKCS#11 Config{Library: %s, TokenLabel: %s, TokenSerial: %s, Slot: %s, CertID: %s, Certificate: %s, PIN: %s}",
		c.Library, c.TokenLabel, c.TokenSerial, slot, c.CertID, c.CertificateFile, pinMask)
}
