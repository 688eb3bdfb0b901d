// Package metrics holds the Prometheus collectors of the admission core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decision results.
const (
	ResultAllow = "allow"
	ResultDeny  = "deny"
)

var (
	// Decisions counts admission decisions per component and result.
	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_decisions_total",
			Help: "Total number of admission decisions by component and result",
		},
		[]string{"component", "result"},
	)

	// DenyReasons counts denials per reason code.
	DenyReasons = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_denials_total",
			Help: "Total number of denials by reason",
		},
		[]string{"component", "reason"},
	)

	// RateLimitFallbacks counts requests answered by the local bucket because the shared store failed.
	RateLimitFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "admission_ratelimit_fallback_total",
			Help: "Total number of rate-limit checks served by the local fallback",
		},
	)

	// AuditWriteFailures counts audit events that could not be persisted.
	AuditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "admission_audit_write_failures_total",
			Help: "Total number of audit events lost to write failures",
		},
	)

	// AuditDropped counts audit events dropped because the queue was full or closed.
	AuditDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "admission_audit_dropped_total",
			Help: "Total number of audit events dropped before persistence",
		},
	)

	// CacheErrors counts cache failures that fell through to the database.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_cache_errors_total",
			Help: "Total number of cache failures by cache",
		},
		[]string{"cache"},
	)

	// StoreLatency observes store round trips per operation.
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admission_store_duration_seconds",
			Help:    "Latency of store operations",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		},
		[]string{"operation"},
	)
)

// Observe records one decision.
func Observe(component string, allowed bool, reason string) {
	if allowed {
		Decisions.WithLabelValues(component, ResultAllow).Inc()
		return
	}
	Decisions.WithLabelValues(component, ResultDeny).Inc()
	if reason != "" {
		DenyReasons.WithLabelValues(component, reason).Inc()
	}
}
