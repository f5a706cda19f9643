// Package metrics exposes the Prometheus registry of the offline cache.
// Metrics are defined in their own packages (cache, client, generation,
// strategy, lifecycle, interceptor) via promauto and land in the default
// registry; this package serves them and documents the catalogue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all offline cache metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer Handler reads from.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - offline_cache_hits_total{scope} (Counter): Hits by lookup scope (bucket, all)
//   - offline_cache_misses_total (Counter): Lookups that found nothing
//   - offline_cache_entry_bytes (Histogram): Size of written response bodies
//   - offline_cache_errors_total{operation} (Counter): Store operation errors
//
// Network Metrics (pkg/client):
//   - offline_cache_fetches_total{status} (Counter): Fetches by HTTP status or "error"
//   - offline_cache_fetch_duration_seconds (Histogram): Fetch duration
//   - offline_cache_fetch_errors_total{class} (Counter): Transport failures (network, timeout)
//
// Generation Metrics (pkg/generation):
//   - offline_cache_prepopulated_entries (Gauge): Entries written by the last install
//   - offline_cache_buckets_deleted_total{result} (Counter): Stale bucket deletions (deleted, failed)
//
// Strategy Metrics (pkg/strategy):
//   - offline_cache_strategy_responses_total{strategy, source} (Counter): Answers by
//     strategy and source (cache, network, placeholder, fallback, none)
//   - offline_cache_background_writes_total{result} (Counter): Detached cache writes (ok, failed)
//
// Lifecycle Metrics (pkg/lifecycle):
//   - offline_cache_lifecycle_transitions_total{to} (Counter): Transitions by target state
//   - offline_cache_active_generation{static_bucket} (Gauge): 1 for the active generation
//
// Interceptor Metrics (pkg/interceptor):
//   - offline_cache_requests_total{class} (Counter): Intercepted requests by class
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(offline_cache_hits_total{scope="all"}[5m])) /
//   (sum(rate(offline_cache_hits_total{scope="all"}[5m])) + sum(rate(offline_cache_misses_total[5m])))
//
//   # Share of navigations answered offline
//   rate(offline_cache_strategy_responses_total{strategy="network_first",source="fallback"}[5m]) /
//   sum(rate(offline_cache_strategy_responses_total{strategy="network_first"}[5m]))
//
//   # Placeholder rate for remote assets
//   rate(offline_cache_strategy_responses_total{source="placeholder"}[5m])
//
//   # P95 Fetch Latency
//   histogram_quantile(0.95, rate(offline_cache_fetch_duration_seconds_bucket[5m]))
