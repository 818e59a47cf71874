// Package metrics documents the Prometheus metrics of the retrieval
// packages and serves them.
//
// All metrics are defined in their respective packages (client, cache,
// ratelimit, pipeline) to keep them next to the code that updates them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry. All metrics are registered
// via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metric describes one exported metric.
type Metric struct {
	Name    string
	Labels  []string
	Package string
}

// All lists the metrics registered by the retrieval packages.
var All = []Metric{
	{"retrieval_http_requests_total", []string{"service", "status"}, "client"},
	{"retrieval_http_request_duration_seconds", []string{"service"}, "client"},
	{"retrieval_http_errors_total", []string{"service", "class"}, "client"},
	{"retrieval_cache_hits_total", []string{"layer"}, "cache"},
	{"retrieval_cache_misses_total", nil, "cache"},
	{"retrieval_cache_errors_total", []string{"operation"}, "cache"},
	{"retrieval_rate_limit_cooldowns_total", []string{"service"}, "ratelimit"},
	{"retrieval_rate_limit_blocks_total", []string{"service"}, "ratelimit"},
	{"retrieval_retries_total", []string{"error_class"}, "pipeline"},
	{"retrieval_retry_exhausted_total", []string{"error_class"}, "pipeline"},
	{"retrieval_pages_total", nil, "pipeline"},
	{"retrieval_queries_total", []string{"stage", "outcome"}, "pipeline"},
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - retrieval_http_requests_total{service, status} (Counter): Upstream requests by HTTP status,
//     "network_error" or "cooling_down"
//   - retrieval_http_request_duration_seconds{service} (Histogram): Upstream request duration
//   - retrieval_http_errors_total{service, class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Cache Metrics (pkg/cache):
//   - retrieval_cache_hits_total{layer="memory"|"redis"} (Counter): Cache hits by layer
//   - retrieval_cache_misses_total (Counter): Cache misses
//   - retrieval_cache_errors_total{operation} (Counter): Cache operation errors
//
// Cooldown Metrics (pkg/ratelimit):
//   - retrieval_rate_limit_cooldowns_total{service} (Counter): Cooldowns recorded from 429/503 responses
//   - retrieval_rate_limit_blocks_total{service} (Counter): Requests held back during a cooldown
//
// Pipeline Metrics (pkg/pipeline):
//   - retrieval_retries_total{error_class} (Counter): Retry attempts by error class
//   - retrieval_retry_exhausted_total{error_class} (Counter): Searches that exhausted their attempts
//   - retrieval_pages_total (Counter): Result pages fetched
//   - retrieval_queries_total{stage, outcome} (Counter): Queries run by multi-query stages
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(retrieval_cache_hits_total[5m])) /
//   (sum(rate(retrieval_cache_hits_total[5m])) + sum(rate(retrieval_cache_misses_total[5m])))
//
//   # Upstream Error Rate by Service
//   sum by (service) (rate(retrieval_http_errors_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, sum by (le, service) (rate(retrieval_http_request_duration_seconds_bucket[5m])))
//
//   # Pages per Query
//   rate(retrieval_pages_total[5m]) / rate(retrieval_queries_total{outcome="ok"}[5m])
