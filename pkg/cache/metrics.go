package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks lookups answered from the cache by kind.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bws_cache_hits_total",
			Help: "Total number of secret cache hits",
		},
		[]string{"kind"}, // "secret", "list"
	)

	// CacheMisses tracks lookups that require an upstream fetch.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bws_cache_misses_total",
			Help: "Total number of secret cache misses",
		},
		[]string{"kind", "state"}, // state: "absent", "stale"
	)

	// CacheInserts tracks entries written after successful fetches.
	CacheInserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bws_cache_inserts_total",
			Help: "Total number of cache entries written",
		},
		[]string{"kind"},
	)

	// CacheInvalidations tracks explicit invalidations by scope.
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bws_cache_invalidations_total",
			Help: "Total number of cache invalidations",
		},
		[]string{"scope"}, // "key", "all"
	)

	// CacheEntries tracks the current number of live entries.
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bws_cache_entries",
			Help: "Current number of entries in the secret cache",
		},
	)
)
