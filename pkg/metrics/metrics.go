// Package metrics exposes the Prometheus registry used by the translator.
// Metrics are defined in the packages that record them (provider, dispatch,
// orchestrator, ratelimit, fetch, server) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the translator.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Provider Metrics (pkg/provider):
//   - translator_provider_requests_total{model, status} (Counter): Chat completion calls by HTTP status
//   - translator_provider_request_duration_seconds{model} (Histogram): Call duration
//   - translator_provider_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//   - translator_provider_texts_total{outcome} (Counter): Texts returned translated or unresolved
//   - translator_provider_retries_total{error_class} (Counter): Retry attempts by error class
//   - translator_provider_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - translator_provider_retry_exhausted_total{error_class} (Counter): Batches that exhausted their attempts
//
// Rate Limit Metrics (pkg/ratelimit):
//   - translator_provider_requests_remaining{scope} (Gauge): Request budget left in the current window
//   - translator_rate_limit_blocks_total{scope} (Counter): Calls blocked at the critical threshold
//   - translator_rate_limit_throttles_total{scope} (Counter): Calls delayed at the warning threshold
//
// Dispatch Metrics (pkg/dispatch):
//   - translator_dispatch_batches_in_flight (Gauge): Batches holding a concurrency permit
//   - translator_dispatch_batches_total{outcome} (Counter): Batches by outcome (success, failed, skipped, cancelled)
//   - translator_dispatch_batch_duration_seconds{pair} (Histogram): Batch duration by language pair
//
// Run Metrics (pkg/orchestrator):
//   - translator_runs_total{mode, outcome} (Counter): Runs by mode and outcome
//   - translator_run_duration_seconds{mode} (Histogram): Run duration
//   - translator_cells_translated_total{mode} (Counter): Cells written with a translation
//
// Fetch Metrics (pkg/fetch):
//   - translator_fetch_requests_total{status} (Counter): File downloads by HTTP status, "invalid" or "network_error"
//   - translator_fetch_bytes (Histogram): Downloaded file sizes
//
// HTTP Metrics (pkg/server):
//   - translator_http_requests_total{route, status} (Counter): API requests by route pattern
//   - translator_http_request_duration_seconds{route} (Histogram): API request duration
//
// Example Prometheus Queries:
//
//   # Provider error rate
//   sum(rate(translator_provider_errors_total[5m])) / sum(rate(translator_provider_requests_total[5m]))
//
//   # Unresolved text ratio
//   rate(translator_provider_texts_total{outcome="unresolved"}[5m]) / rate(translator_provider_texts_total[5m])
//
//   # Request budget running low
//   translator_provider_requests_remaining < 20
//
//   # P95 run latency
//   histogram_quantile(0.95, rate(translator_run_duration_seconds_bucket[5m]))
