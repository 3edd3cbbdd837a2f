// Package cache provides the in-process TTL cache for decrypted secrets.
//
// The store maps cache keys (per-secret and per-organization listing) to
// entries carrying a fetch timestamp and TTL:
//
//   - An entry younger than its TTL is Fresh and may be served.
//   - An entry past its TTL is Stale and must trigger a refetch; it is
//     never returned as current data.
//   - Not-found results are recorded as negative entries under a short
//     negative TTL so repeated misses do not stampede upstream.
//
// The store never calls upstream itself; fetch coordination lives in
// pkg/fetch. The internal lock is held only for map access, never across
// a network call.
//
// # Basic Usage
//
//	store := cache.NewStore(cache.Config{
//		DefaultTTL:  60 * time.Second,
//		NegativeTTL: 5 * time.Second,
//	})
//
//	key := cache.SecretKey(orgID, secretID)
//	if entry, state := store.Lookup(key, 0); state == cache.Fresh {
//		// serve entry.Secret
//	}
//
//	// after a successful upstream fetch
//	store.InsertSecret(key, secret)
//
//	// after a successful mutation
//	store.Invalidate(key)
//	store.Invalidate(cache.ListKey(orgID))
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - bws_cache_hits_total{kind} - lookups served from cache
//   - bws_cache_misses_total{kind,state} - lookups requiring a fetch
//   - bws_cache_inserts_total{kind} - entries written
//   - bws_cache_invalidations_total{scope} - explicit invalidations
//   - bws_cache_entries - current entry count
package cache
