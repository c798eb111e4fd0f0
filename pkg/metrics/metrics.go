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

// Package metrics provides Prometheus instrumentation for signing operations.
// It exposes operation counters, latency histograms, error counters and
// digest throughput so a batch of signing runs can be monitored through a
// node exporter textfile or a pushgateway.
package metrics

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all signer metrics
	Namespace = "signer"

	// Label names
	LabelOperation = "operation"
	LabelBackend   = "backend"
	LabelStatus    = "status"
	LabelErrorType = "error_type"
	LabelAlgorithm = "algorithm"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpOpen   = "open"
	OpSign   = "sign"
	OpDigest = "digest"
	OpVerify = "verify"
	OpChain  = "chain"
	OpImport = "import"
)

var (
	// OperationsTotal tracks the total number of signer operations by type, backend, and status.
	// Use RecordOperation to increment this counter with the appropriate labels.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of signer operations by type, backend, and status",
		},
		[]string{LabelOperation, LabelBackend, LabelStatus},
	)

	// OperationDuration tracks the duration of signer operations in seconds.
	// Token round trips dominate, so buckets reach into seconds.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of signer operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{LabelOperation, LabelBackend},
	)

	// ErrorsTotal tracks the total number of errors by operation, backend, and error type.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation, backend, and error type",
		},
		[]string{LabelOperation, LabelBackend, LabelErrorType},
	)

	// DigestBytesTotal tracks the number of bytes digested by algorithm and backend.
	DigestBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "digest_bytes_total",
			Help:      "Total number of bytes digested by algorithm and backend",
		},
		[]string{LabelAlgorithm, LabelBackend},
	)

	// CertificatesTotal tracks the number of certificates visible to each backend.
	CertificatesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "certificates_total",
			Help:      "Number of certificates visible to each backend",
		},
		[]string{LabelBackend},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordOperation records a signer operation with its duration and status.
//
// Example:
//
//	start := time.Now()
//	sig, err := b.SignRaw(data)
//	status := StatusSuccess
//	if err != nil {
//	    status = StatusError
//	}
//	RecordOperation(OpSign, "pkcs11", status, time.Since(start).Seconds())
func RecordOperation(operation, backend, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, backend, status).Inc()
	OperationDuration.WithLabelValues(operation, backend).Observe(duration)
}

// RecordError records an error event with context about where it occurred.
// errorType should be a short identifier such as "object_not_found".
func RecordError(operation, backend, errorType string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(operation, backend, errorType).Inc()
}

// RecordDigestBytes adds n to the bytes digested with algorithm.
func RecordDigestBytes(algorithm, backend string, n int) {
	if !enabled.Load() {
		return
	}
	DigestBytesTotal.WithLabelValues(algorithm, backend).Add(float64(n))
}

// SetCertificatesTotal sets the number of certificates for a backend.
func SetCertificatesTotal(backend string, count int) {
	if !enabled.Load() {
		return
	}
	CertificatesTotal.WithLabelValues(backend).Set(float64(count))
}

// ErrorClassifier maps an error to an error_type label value.
type ErrorClassifier map[error]string

// Classify returns the label of the first sentinel err wraps, or "other".
func (c ErrorClassifier) Classify(err error) string {
	for sentinel, label := range c {
		if errors.Is(err, sentinel) {
			return label
		}
	}
	return "other"
}

// Observe records the outcome of an operation started at start. A non-nil
// err also increments the error counter with the label from classify.
func Observe(operation, backend string, start time.Time, err error, classify ErrorClassifier) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
		RecordError(operation, backend, classify.Classify(err))
	}
	RecordOperation(operation, backend, status, time.Since(start).Seconds())
}

// WriteToTextfile writes every registered metric to path in the text
// exposition format, for collection by the node exporter.
func WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
