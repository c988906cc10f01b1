// Package metrics exposes prometheus instrumentation for the daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	validationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slpd_validations_total",
		Help: "Total number of validation verdicts produced",
	}, []string{"result"})

	validationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slpd_validation_duration_seconds",
		Help:    "Duration of full DAG validation runs",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	cacheEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slpd_cache_events_total",
		Help: "Verdict cache hits, misses and evictions",
	}, []string{"event"})

	cacheEntriesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slpd_cache_entries",
		Help: "Current number of cached verdicts",
	})

	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slpd_fetches_total",
		Help: "Transaction source fetches by outcome",
	}, []string{"outcome"})

	fetchRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slpd_fetch_retries_total",
		Help: "Transaction source fetch retries",
	})

	rpcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slpd_rpc_requests_total",
		Help: "JSON-RPC requests by method and status",
	}, []string{"method", "status"})
)

// RecordValidation records a finished validation with its result
// ("valid", "invalid", "unknown" or "error").
func RecordValidation(result string, seconds float64) {
	validationsTotal.WithLabelValues(result).Inc()
	validationDuration.Observe(seconds)
}

// RecordCacheHit records a verdict cache hit.
func RecordCacheHit() { cacheEventsTotal.WithLabelValues("hit").Inc() }

// RecordCacheMiss records a verdict cache miss.
func RecordCacheMiss() { cacheEventsTotal.WithLabelValues("miss").Inc() }

// RecordCacheEviction records an evicted verdict.
func RecordCacheEviction() { cacheEventsTotal.WithLabelValues("eviction").Inc() }

// SetCacheEntries updates the cached-verdict gauge.
func SetCacheEntries(n int) { cacheEntriesGauge.Set(float64(n)) }

// RecordFetch records a transaction source fetch outcome
// ("ok", "not_found" or "error").
func RecordFetch(outcome string) { fetchesTotal.WithLabelValues(outcome).Inc() }

// RecordFetchRetry records a fetch retry attempt.
func RecordFetchRetry() { fetchRetriesTotal.Inc() }

// RecordRPCRequest records a JSON-RPC request ("ok" or "error").
func RecordRPCRequest(method, status string) {
	rpcRequestsTotal.WithLabelValues(method, status).Inc()
}
