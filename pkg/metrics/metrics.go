package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castellan_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// PermissionChecks counts RBAC gate evaluations and their outcome (allowed|denied|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castellan_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"permission", "result"},
	)

	// DataScopeCompilations counts data-scope predicate compilations by outcome
	// (ok|error).
	DataScopeCompilations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castellan_data_scope_compilations_total",
			Help: "Total number of data permission predicate compilations",
		},
		[]string{"result"},
	)

	// IdentityCacheEvents tracks identity cache hits, misses and invalidations.
	IdentityCacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castellan_identity_cache_events_total",
			Help: "Identity cache activity",
		},
		[]string{"event"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "castellan_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
