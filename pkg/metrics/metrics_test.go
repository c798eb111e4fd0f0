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

package metrics

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsEnabled(t *testing.T) {
	// Metrics should be enabled by default
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled by default")
	}

	Disable()
	if IsEnabled() {
		t.Error("Expected metrics to be disabled after Disable()")
	}

	Enable()
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled after Enable()")
	}
}

func TestRecordOperation(t *testing.T) {
	Enable()
	OperationsTotal.Reset()
	OperationDuration.Reset()

	RecordOperation(OpSign, "pkcs11", StatusSuccess, 0.5)
	if count := testutil.CollectAndCount(OperationsTotal); count != 1 {
		t.Errorf("Expected 1 operation recorded, got %d", count)
	}
	if count := testutil.CollectAndCount(OperationDuration); count != 1 {
		t.Errorf("Expected 1 histogram sample, got %d", count)
	}

	RecordOperation(OpSign, "software", StatusError, 0.1)
	if count := testutil.CollectAndCount(OperationsTotal); count != 2 {
		t.Errorf("Expected 2 operations recorded, got %d", count)
	}
}

func TestRecordOperationWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()
	OperationsTotal.Reset()

	RecordOperation(OpSign, "pkcs11", StatusSuccess, 0.5)
	RecordDigestBytes("SHA256", "pkcs11", 10)
	if count := testutil.CollectAndCount(OperationsTotal); count != 0 {
		t.Errorf("Expected 0 operations when disabled, got %d", count)
	}
}

func TestRecordDigestBytes(t *testing.T) {
	Enable()
	DigestBytesTotal.Reset()

	RecordDigestBytes("GOSTR3411_2012_256", "pkcs11", 100)
	RecordDigestBytes("GOSTR3411_2012_256", "pkcs11", 28)

	got := testutil.ToFloat64(DigestBytesTotal.WithLabelValues("GOSTR3411_2012_256", "pkcs11"))
	if got != 128 {
		t.Errorf("Expected 128 bytes, got %v", got)
	}
}

func TestObserve(t *testing.T) {
	Enable()
	OperationsTotal.Reset()
	ErrorsTotal.Reset()

	errNotFound := errors.New("not found")
	classify := ErrorClassifier{errNotFound: "object_not_found"}

	Observe(OpOpen, "pkcs11", time.Now(), nil, classify)
	Observe(OpOpen, "pkcs11", time.Now(), fmt.Errorf("wrapped: %w", errNotFound), classify)
	Observe(OpOpen, "pkcs11", time.Now(), errors.New("boom"), classify)

	if got := testutil.ToFloat64(OperationsTotal.WithLabelValues(OpOpen, "pkcs11", StatusError)); got != 2 {
		t.Errorf("Expected 2 failed operations, got %v", got)
	}
	if got := testutil.ToFloat64(ErrorsTotal.WithLabelValues(OpOpen, "pkcs11", "object_not_found")); got != 1 {
		t.Errorf("Expected 1 classified error, got %v", got)
	}
	if got := testutil.ToFloat64(ErrorsTotal.WithLabelValues(OpOpen, "pkcs11", "other")); got != 1 {
		t.Errorf("Expected 1 unclassified error, got %v", got)
	}
}

func TestWriteToTextfile(t *testing.T) {
	Enable()
	SetCertificatesTotal("pkcs11", 3)

	path := filepath.Join(t.TempDir(), "signer.prom")
	if err := WriteToTextfile(path); err != nil {
		t.Fatalf("WriteToTextfile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read textfile: %v", err)
	}
	if !strings.Contains(string(data), `signer_certificates_total{backend="pkcs11"} 3`) {
		t.Errorf("textfile missing certificate gauge:\n%s", data)
	}
}
