// Package metrics defines the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Auth
var (
	// LoginAttempts counts logins by result (success, invalid, inactive, throttled).
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erm_login_attempts_total",
			Help: "Login attempts by result",
		},
		[]string{"result"},
	)

	// LoginThrottleErrors counts Redis failures of the login throttle.
	LoginThrottleErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "erm_login_throttle_errors_total",
			Help: "Login throttle checks that failed open because Redis was unavailable",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erm_rate_limit_hits_total",
			Help: "Requests rejected by a rate limiter",
		},
		[]string{"endpoint"},
	)
)

// Domain
var (
	// ActivityWriteFailures counts timeline rows that could not be written.
	ActivityWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "erm_activity_write_failures_total",
			Help: "Timeline entries that failed to persist",
		},
	)

	ApprovalDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erm_approval_decisions_total",
			Help: "Approval requests closed by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	PoliciesExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "erm_policies_expired_total",
			Help: "Active policies archived by the expiry sweep",
		},
	)

	ResourceItemWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erm_resource_item_writes_total",
			Help: "Resource item writes by operation and result",
		},
		[]string{"operation", "result"},
	)

	// ResourceTypeLookups counts schema lookups by source (redis, postgres).
	ResourceTypeLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erm_resource_type_lookups_total",
			Help: "Resource type lookups by source",
		},
		[]string{"source"},
	)
)

// Jobs
var (
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erm_jobs_processed_total",
			Help: "Background tasks processed by type and status",
		},
		[]string{"task", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "erm_job_duration_seconds",
			Help:    "Background task duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"task"},
	)
)
