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

// Package config loads the signer profile: which backend to sign with, how
// to reach its key, and how to log and report.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-signer/pkg/backend"
	"github.com/jeremyhahn/go-signer/pkg/backend/pkcs11"
	"github.com/jeremyhahn/go-signer/pkg/backend/software"
)

// Environment variables holding secrets. They are read by the password
// supplier and never stored in the configuration.
const (
	EnvPassword = "SIGNER_PASSWORD"
	EnvPIN      = "SIGNER_PIN"
)

// Config represents the complete signer configuration
type Config struct {
	Backend  string          `yaml:"backend" json:"backend" mapstructure:"backend"`
	Output   string          `yaml:"output" json:"output" mapstructure:"output"`
	Logging  LoggingConfig   `yaml:"logging" json:"logging" mapstructure:"logging"`
	Metrics  MetricsConfig   `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
	Software software.Config `yaml:"software" json:"software" mapstructure:"software"`
	PKCS11   pkcs11.Config   `yaml:"pkcs11" json:"pkcs11" mapstructure:"pkcs11"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" mapstructure:"level"`
	Format string `yaml:"format" json:"format" mapstructure:"format"`
}

// MetricsConfig controls the Prometheus textfile written after each run
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	File    string `yaml:"file" json:"file" mapstructure:"file"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Backend: backend.TypeSoftware.String(),
		Output:  "text",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Software: software.Config{
			Alias: "signer",
		},
	}
}

// Load reads configuration from a YAML file over the defaults and applies
// environment variable overrides. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - Config file path is provided by the user
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SIGNER_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("SIGNER_OUTPUT"); v != "" {
		cfg.Output = v
	}

	// Logging
	if level := os.Getenv("SIGNER_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("SIGNER_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	// Metrics
	if file := os.Getenv("SIGNER_METRICS_FILE"); file != "" {
		cfg.Metrics.File = file
	}
	if enabled := os.Getenv("SIGNER_METRICS_ENABLED"); enabled != "" {
		b, err := strconv.ParseBool(enabled)
		if err != nil {
			log.Printf("Warning: invalid SIGNER_METRICS_ENABLED value %q, using %t: %v",
				enabled, cfg.Metrics.Enabled, err)
		} else {
			cfg.Metrics.Enabled = b
		}
	}

	// Software container
	if path := os.Getenv("SIGNER_KEYSTORE"); path != "" {
		cfg.Software.Path = path
	}
	if alias := os.Getenv("SIGNER_ALIAS"); alias != "" {
		cfg.Software.Alias = alias
	}

	// PKCS#11 token
	if lib := os.Getenv("SIGNER_PKCS11_LIBRARY"); lib != "" {
		cfg.PKCS11.Library = lib
	}
	if id := os.Getenv("SIGNER_PKCS11_CERT_ID"); id != "" {
		cfg.PKCS11.CertID = id
	}
	if label := os.Getenv("SIGNER_PKCS11_TOKEN_LABEL"); label != "" {
		cfg.PKCS11.TokenLabel = label
	}
	if serial := os.Getenv("SIGNER_PKCS11_TOKEN_SERIAL"); serial != "" {
		cfg.PKCS11.TokenSerial = serial
	}
	if slot := os.Getenv("SIGNER_PKCS11_SLOT"); slot != "" {
		index, err := strconv.Atoi(slot)
		if err != nil || index < 0 {
			log.Printf("Warning: invalid SIGNER_PKCS11_SLOT value %q, ignoring", slot)
		} else {
			cfg.PKCS11.SlotIndex = &index
		}
	}
}

// Validate checks if the configuration is valid. Backend settings that
// depend on secrets are checked when the backend is opened.
func (c *Config) Validate() error {
	t, err := backend.ParseType(c.Backend)
	if err != nil {
		return err
	}

	// Validate logging level
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}
	if !validFormats[strings.ToLower(c.Output)] {
		return fmt.Errorf("invalid output format: %s (must be json or text)", c.Output)
	}

	if c.PKCS11.SlotIndex != nil && *c.PKCS11.SlotIndex < 0 {
		return fmt.Errorf("invalid pkcs11 slot index: %d", *c.PKCS11.SlotIndex)
	}
	if t == backend.TypeSoftware && c.Software.Format != "" &&
		c.Software.Format != software.FormatKeyStore && c.Software.Format != software.FormatPKCS12 {
		return fmt.Errorf("invalid software container format: %s", c.Software.Format)
	}

	return nil
}

// Debug reports whether debug logging is configured
func (c *Config) Debug() bool {
	return strings.EqualFold(c.Logging.Level, "debug")
}
