// Package metrics defines the Prometheus metrics exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Last.fm API
	LastfmRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lastfm_requests_total",
			Help: "Last.fm API calls by method and outcome (success, error, rejected)",
		},
		[]string{"method", "outcome"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lastfm_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	// Ingestion
	ScrobblesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrobbles_ingested_total",
			Help: "New listens written to the store",
		},
	)

	SyncCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_cycles_total",
			Help: "Ingestion cycles by outcome (updated, unchanged, skipped, error)",
		},
		[]string{"outcome"},
	)

	// Aggregation
	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aggregation_duration_seconds",
			Help:    "Time spent regenerating the dashboard payload",
			Buckets: prometheus.DefBuckets,
		},
	)

	AggregationEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aggregation_events",
			Help: "Number of listens in the last generated payload",
		},
	)

	DashboardCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_cache_total",
			Help: "Dashboard cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)
)

// RecordLastfmRequest counts one call to the Last.fm API.
func RecordLastfmRequest(method, outcome string) {
	LastfmRequests.WithLabelValues(method, outcome).Inc()
}

// RecordAggregation records a completed regeneration.
func RecordAggregation(events int, took time.Duration) {
	AggregationDuration.Observe(took.Seconds())
	AggregationEvents.Set(float64(events))
}
