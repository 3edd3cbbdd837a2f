// Package metrics provides the centralized Prometheus registry reference
// for the proxy. All metrics are defined in their respective packages
// (cache, fetch, session, proxy) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the proxy.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - bws_cache_hits_total{kind} (Counter): Lookups served from cache
//   - bws_cache_misses_total{kind, state} (Counter): Lookups requiring a fetch ("absent"/"stale")
//   - bws_cache_inserts_total{kind} (Counter): Entries written after successful fetches
//   - bws_cache_invalidations_total{scope} (Counter): Explicit invalidations ("key"/"all")
//   - bws_cache_entries (Gauge): Current entry count
//
// Fetch Metrics (pkg/fetch):
//   - bws_fetch_total{kind, result} (Counter): Upstream fetches by outcome
//   - bws_fetch_duration_seconds{kind} (Histogram): Upstream fetch duration
//   - bws_fetch_shared_total{kind} (Counter): Calls served by another caller's in-flight fetch
//   - bws_fetch_abandoned_waits_total (Counter): Waiters that detached on cancellation
//
// Session Metrics (pkg/session):
//   - bws_session_connects_total{result} (Counter): Backend authentication attempts
//   - bws_session_invalidations_total (Counter): Sessions discarded after auth failures
//
// Request Metrics (pkg/proxy):
//   - bws_requests_total{operation, status} (Counter): Proxy requests by operation and status
//   - bws_request_duration_seconds{operation} (Histogram): Request duration
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(bws_cache_hits_total[5m])) /
//   (sum(rate(bws_cache_hits_total[5m])) + sum(rate(bws_cache_misses_total[5m])))
//
//   # Single-Flight Effectiveness (calls saved per fetch)
//   rate(bws_fetch_shared_total[5m]) / rate(bws_fetch_total[5m])
//
//   # Upstream Error Rate by Class
//   sum by (result) (rate(bws_fetch_total{result!="ok"}[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(bws_request_duration_seconds_bucket[5m]))
