// Package prefetch warms the secret cache at startup by listing an
// organization and fetching each secret through the coordinator with a
// bounded worker pool.
package prefetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/secretsgate/bws-rest-proxy/pkg/cache"
	"github.com/secretsgate/bws-rest-proxy/pkg/fetch"
)

// Config holds warm-up settings.
type Config struct {
	// OrganizationID is the organization whose secrets are warmed.
	OrganizationID string

	// Concurrency is the number of parallel warm-up fetches.
	Concurrency int
}

// Warmer pre-populates the cache. Every fetch goes through the
// coordinator, so a warm-up racing live traffic still issues at most one
// upstream call per key.
type Warmer struct {
	coordinator *fetch.Coordinator
	cfg         Config
	logger      zerolog.Logger
}

// NewWarmer creates a warmer over the given coordinator.
func NewWarmer(coordinator *fetch.Coordinator, cfg Config, logger zerolog.Logger) *Warmer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Warmer{
		coordinator: coordinator,
		cfg:         cfg,
		logger:      logger,
	}
}

// Warm lists the organization and fetches each secret. Individual fetch
// failures are logged and skipped; Warm only fails when the listing
// itself fails. Returns the number of secrets cached.
func (w *Warmer) Warm(ctx context.Context) (int, error) {
	start := time.Now()

	identifiers, err := w.coordinator.ListSecrets(ctx, cache.ListKey(w.cfg.OrganizationID), fetch.Options{})
	if err != nil {
		return 0, fmt.Errorf("list secrets for warm-up: %w", err)
	}

	w.logger.Info().
		Int("secrets", len(identifiers)).
		Int("concurrency", w.cfg.Concurrency).
		Msg("Starting cache warm-up")

	queue := make(chan string)
	go func() {
		defer close(queue)
		for _, id := range identifiers {
			select {
			case queue <- id.ID:
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		warmed int
	)
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for secretID := range queue {
				key := cache.SecretKey(w.cfg.OrganizationID, secretID)
				if _, err := w.coordinator.GetSecret(ctx, key, fetch.Options{}); err != nil {
					w.logger.Warn().Err(err).Str("secret_id", secretID).Msg("Warm-up fetch failed")
					continue
				}
				mu.Lock()
				warmed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	w.logger.Info().
		Int("warmed", warmed).
		Int("total", len(identifiers)).
		Dur("duration", time.Since(start)).
		Msg("Cache warm-up complete")

	return warmed, nil
}
