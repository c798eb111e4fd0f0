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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-signer/pkg/backend"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// TestLoad_Success tests successful loading of a valid config file
func TestLoad_Success(t *testing.T) {
	path := writeConfig(t, `
backend: pkcs11
output: json

logging:
  level: debug
  format: json

metrics:
  enabled: true
  file: /var/lib/node_exporter/signer.prom

software:
  path: /etc/signer/signer.yaml
  alias: gost

pkcs11:
  library: /usr/lib/librtpkcs11ecp.so
  cert_id: a1b2
  token_label: Rutoken ECP
  slot_index: 1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pkcs11", cfg.Backend)
	assert.Equal(t, "json", cfg.Output)
	assert.True(t, cfg.Debug())
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/var/lib/node_exporter/signer.prom", cfg.Metrics.File)
	assert.Equal(t, "/etc/signer/signer.yaml", cfg.Software.Path)
	assert.Equal(t, "gost", cfg.Software.Alias)
	assert.Equal(t, "/usr/lib/librtpkcs11ecp.so", cfg.PKCS11.Library)
	assert.Equal(t, "a1b2", cfg.PKCS11.CertID)
	assert.Equal(t, "Rutoken ECP", cfg.PKCS11.TokenLabel)
	require.NotNil(t, cfg.PKCS11.SlotIndex)
	assert.Equal(t, 1, *cfg.PKCS11.SlotIndex)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, backend.TypeSoftware.String(), cfg.Backend)
	assert.Equal(t, "signer", cfg.Software.Alias)
	assert.Equal(t, "text", cfg.Output)
	assert.False(t, cfg.Debug())

	// keys missing from the file keep their defaults
	cfg, err = Load(writeConfig(t, "software:\n  path: signer.yaml\n"))
	require.NoError(t, err)
	assert.Equal(t, "signer.yaml", cfg.Software.Path)
	assert.Equal(t, "signer", cfg.Software.Alias)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid yaml", "backend: [software"},
		{"unknown backend", "backend: tpm2"},
		{"invalid log level", "logging:\n  level: verbose"},
		{"invalid log format", "logging:\n  format: console"},
		{"invalid output", "output: table"},
		{"negative slot", "pkcs11:\n  slot_index: -1"},
		{"invalid container format", "software:\n  format: jks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SIGNER_BACKEND", "pkcs11")
	t.Setenv("SIGNER_OUTPUT", "json")
	t.Setenv("SIGNER_LOG_LEVEL", "debug")
	t.Setenv("SIGNER_METRICS_FILE", "/tmp/signer.prom")
	t.Setenv("SIGNER_METRICS_ENABLED", "false")
	t.Setenv("SIGNER_KEYSTORE", "/tmp/keystore.yaml")
	t.Setenv("SIGNER_ALIAS", "other")
	t.Setenv("SIGNER_PKCS11_LIBRARY", "/usr/lib/libsofthsm2.so")
	t.Setenv("SIGNER_PKCS11_CERT_ID", "ff")
	t.Setenv("SIGNER_PKCS11_TOKEN_SERIAL", "3a2b1c")
	t.Setenv("SIGNER_PKCS11_SLOT", "2")

	cfg, err := Load(writeConfig(t, "backend: software\n"))
	require.NoError(t, err)

	assert.Equal(t, "pkcs11", cfg.Backend)
	assert.Equal(t, "json", cfg.Output)
	assert.True(t, cfg.Debug())
	assert.Equal(t, "/tmp/signer.prom", cfg.Metrics.File)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/tmp/keystore.yaml", cfg.Software.Path)
	assert.Equal(t, "other", cfg.Software.Alias)
	assert.Equal(t, "/usr/lib/libsofthsm2.so", cfg.PKCS11.Library)
	assert.Equal(t, "ff", cfg.PKCS11.CertID)
	assert.Equal(t, "3a2b1c", cfg.PKCS11.TokenSerial)
	require.NotNil(t, cfg.PKCS11.SlotIndex)
	assert.Equal(t, 2, *cfg.PKCS11.SlotIndex)
}

func TestApplyEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("SIGNER_METRICS_ENABLED", "maybe")
	t.Setenv("SIGNER_PKCS11_SLOT", "first")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Nil(t, cfg.PKCS11.SlotIndex)
}
