// Package session owns the single authenticated backend handle shared by
// all request handlers.
//
// The handle is a read-mostly resource: normal requests take a read lock,
// replacement (first connect or re-authentication after an auth failure)
// takes the write lock and fully completes before any dependent request
// proceeds. Handles are tagged with a generation so a stale invalidation
// never clobbers a newer session.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/secretsgate/bws-rest-proxy/pkg/upstream"
)

var (
	sessionConnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bws_session_connects_total",
		Help: "Total backend authentication attempts by result",
	}, []string{"result"}) // "ok", "error"

	sessionInvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bws_session_invalidations_total",
		Help: "Total times the backend session was discarded",
	})
)

// Holder lazily establishes and shares one authenticated upstream client.
type Holder struct {
	connector upstream.Connector
	logger    zerolog.Logger

	mu     sync.RWMutex
	client upstream.Client
	gen    uint64
	closed bool
}

// NewHolder creates a holder. No connection is made until the first Get.
func NewHolder(connector upstream.Connector, logger zerolog.Logger) *Holder {
	return &Holder{
		connector: connector,
		logger:    logger,
	}
}

// Get returns the shared client and its generation, authenticating on
// first use. Safe to call concurrently; at most one authentication runs
// at a time and concurrent callers wait for its outcome. An auth failure
// is fatal for the triggering request only - the next Get retries.
func (h *Holder) Get(ctx context.Context) (upstream.Client, uint64, error) {
	h.mu.RLock()
	if h.client != nil {
		client, gen := h.client, h.gen
		h.mu.RUnlock()
		return client, gen, nil
	}
	closed := h.closed
	h.mu.RUnlock()

	if closed {
		return nil, 0, fmt.Errorf("session holder is closed")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Another caller may have connected while we waited for the lock.
	if h.client != nil {
		return h.client, h.gen, nil
	}
	if h.closed {
		return nil, 0, fmt.Errorf("session holder is closed")
	}

	client, err := h.connector.Connect(ctx)
	if err != nil {
		sessionConnectsTotal.WithLabelValues("error").Inc()
		h.logger.Error().Err(err).Msg("Backend authentication failed")
		return nil, 0, err
	}

	h.client = client
	h.gen++
	sessionConnectsTotal.WithLabelValues("ok").Inc()
	h.logger.Info().Uint64("generation", h.gen).Msg("Backend session established")

	return h.client, h.gen, nil
}

// Invalidate discards the handle of the given generation, forcing the next
// Get to re-authenticate. A generation that is no longer current is
// ignored, so a slow request reporting an old auth failure cannot destroy
// a session that was already replaced.
func (h *Holder) Invalidate(gen uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.client == nil || gen != h.gen {
		return
	}

	_ = h.client.Close()
	h.client = nil
	sessionInvalidationsTotal.Inc()
	h.logger.Warn().Uint64("generation", gen).Msg("Backend session invalidated")
}

// Generation returns the current session generation. Zero means no
// session has been established yet.
func (h *Holder) Generation() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.gen
}

// Close releases the handle and prevents further use.
func (h *Holder) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	if h.client != nil {
		err := h.client.Close()
		h.client = nil
		return err
	}
	return nil
}
