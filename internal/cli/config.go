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
	"github.com/spf13/pflag"

	"github.com/jeremyhahn/go-signer/internal/config"
)

// Flags holds the global command line flags. Flags left unset on the
// command line fall back to SIGNER_* environment variables and then to
// the configuration file.
type Flags struct {
	ConfigFile   string
	Backend      string
	OutputFormat string
	LogLevel     string
	LogFormat    string
	MetricsFile  string
	Verbose      bool

	// Software container
	KeyStore string
	Alias    string
	Password string

	// PKCS#11 token
	Library     string
	PIN         string
	CertID      string
	CertFile    string
	TokenLabel  string
	TokenSerial string
	Slot        int
}

// NewFlags returns the flag defaults
func NewFlags() *Flags {
	return &Flags{
		Backend:      "software",
		OutputFormat: "text",
		LogLevel:     "info",
		LogFormat:    "text",
		Alias:        "signer",
		Slot:         -1,
	}
}

func (f *Flags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.ConfigFile, "config", "",
		"config file (YAML)")
	fs.StringVar(&f.Backend, "backend", f.Backend,
		"backend to sign with (software, pkcs11)")
	fs.StringVarP(&f.OutputFormat, "output", "o", f.OutputFormat,
		"output format (text, json)")
	fs.StringVar(&f.LogLevel, "log-level", f.LogLevel,
		"log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFormat, "log-format", f.LogFormat,
		"log format (text, json)")
	fs.StringVar(&f.MetricsFile, "metrics-file", "",
		"write Prometheus metrics to this file after the run")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false,
		"verbose output (same as --log-level debug)")

	fs.StringVar(&f.KeyStore, "keystore", "",
		"software container path (.yaml keystore, .p12 or .pfx)")
	fs.StringVar(&f.Alias, "alias", f.Alias,
		"entry alias in the keystore")
	fs.StringVar(&f.Password, "password", "",
		"container password (prompted when omitted)")

	fs.StringVar(&f.Library, "library", "",
		"PKCS#11 library path")
	fs.StringVar(&f.PIN, "pin", "",
		"token user PIN (prompted when omitted)")
	fs.StringVar(&f.CertID, "cert-id", "",
		"CKA_ID of the signer certificate on the token, in hex")
	fs.StringVar(&f.CertFile, "cert", "",
		"signer certificate file (PEM or DER) to look up on the token")
	fs.StringVar(&f.TokenLabel, "token-label", "",
		"select the token by label")
	fs.StringVar(&f.TokenSerial, "token-serial", "",
		"select the token by serial number")
	fs.IntVar(&f.Slot, "slot", f.Slot,
		"select the token by slot index")
}

// apply overlays the flags given on the command line, or bound from the
// environment, onto cfg.
func (f *Flags) apply(cfg *config.Config, fs *pflag.FlagSet) error {
	if fs.Changed("backend") {
		cfg.Backend = f.Backend
	}
	if fs.Changed("output") {
		cfg.Output = f.OutputFormat
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level = f.LogLevel
	}
	if fs.Changed("log-format") {
		cfg.Logging.Format = f.LogFormat
	}
	if fs.Changed("metrics-file") {
		cfg.Metrics.File = f.MetricsFile
	}
	if f.Verbose {
		cfg.Logging.Level = "debug"
	}

	if fs.Changed("keystore") {
		cfg.Software.Path = f.KeyStore
	}
	if fs.Changed("alias") {
		cfg.Software.Alias = f.Alias
	}

	if fs.Changed("library") {
		cfg.PKCS11.Library = f.Library
	}
	// the two certificate selectors replace each other
	if fs.Changed("cert-id") {
		cfg.PKCS11.CertID = f.CertID
		cfg.PKCS11.CertificateFile = ""
	}
	if fs.Changed("cert") {
		cfg.PKCS11.CertificateFile = f.CertFile
		cfg.PKCS11.CertID = ""
	}
	if fs.Changed("token-label") {
		cfg.PKCS11.TokenLabel = f.TokenLabel
	}
	if fs.Changed("token-serial") {
		cfg.PKCS11.TokenSerial = f.TokenSerial
	}
	if fs.Changed("slot") {
		slot := f.Slot
		cfg.PKCS11.SlotIndex = &slot
	}
	return cfg.Validate()
}
