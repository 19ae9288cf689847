// Package metrics defines the Prometheus metrics exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Admission outcomes used as the "outcome" label.
const (
	OutcomeAllowed     = "allowed"
	OutcomeDegraded    = "degraded"
	OutcomeBlocked     = "blocked"
	OutcomeRateLimited = "rate_limited"
	OutcomeUnavailable = "unavailable"
)

// Counter metrics (monotonically increasing)
var (
	// AdmissionDecisionsTotal counts gate decisions by endpoint and outcome
	AdmissionDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velvetrope_admission_decisions_total",
			Help: "Total number of admission decisions",
		},
		[]string{"endpoint", "outcome"},
	)

	// AutoBlocksTotal counts automatic blocks by result (success, failure)
	AutoBlocksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velvetrope_auto_blocks_total",
			Help: "Total number of automatic IP blocks written",
		},
		[]string{"result"},
	)

	// AdmissionStorageErrorsTotal counts storage failures seen by the gate
	AdmissionStorageErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velvetrope_admission_storage_errors_total",
			Help: "Total number of admission storage failures by component and applied policy",
		},
		[]string{"component", "policy"},
	)

	// PrunedWindowsTotal counts rate limit windows removed by the pruner
	PrunedWindowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "velvetrope_pruned_windows_total",
			Help: "Total number of expired rate limit windows removed",
		},
	)

	// LoginAttemptsTotal counts login attempts by result (success, failure)
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velvetrope_login_attempts_total",
			Help: "Total number of member and admin login attempts",
		},
		[]string{"realm", "result"},
	)

	// HTTPRequestsTotal counts total HTTP requests by method, path, and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velvetrope_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ErrorsTotal counts application errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velvetrope_errors_total",
			Help: "Total number of application errors",
		},
		[]string{"type"},
	)
)

// Histogram metrics (distributions)
var (
	// HTTPRequestDuration tracks HTTP request latency by method and path
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "velvetrope_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// AdmissionCheckDuration tracks the storage round trips of one gate check
	AdmissionCheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "velvetrope_admission_check_duration_seconds",
			Help:    "Admission gate check latency in seconds",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint"},
	)
)
