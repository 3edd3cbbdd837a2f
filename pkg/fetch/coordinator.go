// Package fetch implements the single-flight coordination between cache
// lookups and upstream fetches.
package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/secretsgate/bws-rest-proxy/pkg/cache"
	"github.com/secretsgate/bws-rest-proxy/pkg/session"
	"github.com/secretsgate/bws-rest-proxy/pkg/upstream"
)

// Prometheus metrics for fetch coordination.
var (
	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bws_fetch_total",
		Help: "Total upstream fetches by kind and result",
	}, []string{"kind", "result"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bws_fetch_duration_seconds",
		Help:    "Upstream fetch duration in seconds by kind",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"kind"})

	fetchSharedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bws_fetch_shared_total",
		Help: "Total calls that were served by another caller's in-flight fetch",
	}, []string{"kind"})

	fetchAbandonedWaits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bws_fetch_abandoned_waits_total",
		Help: "Total waiters that detached from an in-flight fetch on cancellation",
	})
)

// DefaultTimeout bounds an upstream fetch when the configuration leaves
// it zero.
const DefaultTimeout = 15 * time.Second

// Options adjust a single read. The zero value is the normal cached read.
type Options struct {
	// Refresh bypasses the cache for this read. The fetch still goes
	// through the single-flight group, so concurrent refreshes collapse.
	Refresh bool

	// MaxAge, when positive, shortens the freshness bound for this read.
	// It can never extend an entry's TTL.
	MaxAge time.Duration
}

// Coordinator guarantees at most one in-flight upstream fetch per cache
// key. Cache misses register in the single-flight group; one caller
// becomes the fetch owner and every concurrent caller for the same key
// waits for the owner's outcome, success or failure alike.
type Coordinator struct {
	store    *cache.Store
	sessions *session.Holder
	timeout  time.Duration
	logger   zerolog.Logger
	group    singleflight.Group

	mu       sync.Mutex
	inflight map[string]int
}

// NewCoordinator wires the coordinator to its store and session holder.
func NewCoordinator(store *cache.Store, sessions *session.Holder, timeout time.Duration, logger zerolog.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		store:    store,
		sessions: sessions,
		timeout:  timeout,
		logger:   logger,
		inflight: make(map[string]int),
	}
}

// outcome is the payload fanned out to all waiters of one fetch.
type outcome struct {
	secret      *upstream.Secret
	identifiers []upstream.SecretIdentifier
}

// GetSecret returns the secret for key, from cache when fresh, otherwise
// through a coordinated upstream fetch.
func (c *Coordinator) GetSecret(ctx context.Context, key cache.Key, opts Options) (*upstream.Secret, error) {
	out, err := c.getOrFetch(ctx, key, opts)
	if err != nil {
		return nil, err
	}
	return out.secret, nil
}

// ListSecrets returns the organization listing for key, from cache when
// fresh, otherwise through a coordinated upstream fetch.
func (c *Coordinator) ListSecrets(ctx context.Context, key cache.Key, opts Options) ([]upstream.SecretIdentifier, error) {
	out, err := c.getOrFetch(ctx, key, opts)
	if err != nil {
		return nil, err
	}
	return out.identifiers, nil
}

func (c *Coordinator) getOrFetch(ctx context.Context, key cache.Key, opts Options) (*outcome, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	if !opts.Refresh {
		if entry, state := c.store.Lookup(key, opts.MaxAge); state == cache.Fresh {
			if entry.NotFound {
				return nil, upstream.NewError(upstream.ErrorClassNotFound, "cache",
					fmt.Errorf("%s not found (negative-cached)", key))
			}
			return &outcome{secret: entry.Secret, identifiers: entry.Identifiers}, nil
		}
	}

	// Exactly one caller per key wins this registration and runs the
	// fetch; everyone else waits on its completion channel.
	ch := c.group.DoChan(key.String(), func() (interface{}, error) {
		c.track(key.String())
		defer c.untrack(key.String())
		return c.fetch(key)
	})

	select {
	case <-ctx.Done():
		// Detach this waiter only. The owner's fetch runs on its own
		// context and keeps serving the remaining waiters.
		fetchAbandonedWaits.Inc()
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			fetchSharedTotal.WithLabelValues(string(key.Kind)).Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*outcome), nil
	}
}

// Invalidate drops the cached entry for key and detaches any in-flight
// fetch from future callers: a reader arriving after this call starts a
// fresh fetch instead of joining one that began before the invalidation
// and could fan out the pre-invalidation value.
func (c *Coordinator) Invalidate(key cache.Key) {
	c.group.Forget(key.String())
	c.store.Invalidate(key)
}

// InvalidateAll flushes the cache and detaches every in-flight fetch.
func (c *Coordinator) InvalidateAll() {
	c.mu.Lock()
	for key := range c.inflight {
		c.group.Forget(key)
	}
	c.mu.Unlock()
	c.store.InvalidateAll()
}

func (c *Coordinator) track(key string) {
	c.mu.Lock()
	c.inflight[key]++
	c.mu.Unlock()
}

func (c *Coordinator) untrack(key string) {
	c.mu.Lock()
	if c.inflight[key]--; c.inflight[key] <= 0 {
		delete(c.inflight, key)
	}
	c.mu.Unlock()
}

// fetch is the owner path. It runs detached from any request context so a
// cancelled initiator never aborts the fetch for the other waiters, and
// the configured timeout guarantees the pending registration is always
// released.
func (c *Coordinator) fetch(key cache.Key) (*outcome, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	kind := string(key.Kind)
	start := time.Now()
	defer func() {
		fetchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	client, gen, err := c.sessions.Get(ctx)
	if err != nil {
		fetchTotal.WithLabelValues(kind, resultLabel(err)).Inc()
		return nil, err
	}

	var out outcome
	switch key.Kind {
	case cache.KindSecret:
		out.secret, err = client.GetSecret(ctx, key.SecretID)
	case cache.KindList:
		out.identifiers, err = client.ListSecrets(ctx, key.OrganizationID)
	default:
		return nil, fmt.Errorf("unknown key kind %q", key.Kind)
	}

	if err != nil {
		fetchTotal.WithLabelValues(kind, resultLabel(err)).Inc()
		return nil, c.handleFetchError(key, gen, err)
	}

	switch key.Kind {
	case cache.KindSecret:
		c.store.InsertSecret(key, out.secret)
	case cache.KindList:
		c.store.InsertList(key, out.identifiers)
	}

	fetchTotal.WithLabelValues(kind, "ok").Inc()
	c.logger.Debug().
		Stringer("key", key).
		Dur("duration", time.Since(start)).
		Msg("Upstream fetch complete")

	return &out, nil
}

// handleFetchError applies the per-class policy. The cache is never
// written on failure except for the short-lived negative entry on
// not-found, so a failed fetch can never poison the cache.
func (c *Coordinator) handleFetchError(key cache.Key, gen uint64, err error) error {
	switch upstream.ClassOf(err) {
	case upstream.ErrorClassNotFound:
		c.store.InsertNegative(key)
	case upstream.ErrorClassAuth:
		// Cached values are not trustworthy once the session is dead.
		// The next request re-authenticates through the holder.
		c.InvalidateAll()
		c.sessions.Invalidate(gen)
		c.logger.Warn().Stringer("key", key).Msg("Auth failure - cache flushed, session discarded")
	case upstream.ErrorClassTimeout:
		c.logger.Warn().
			Stringer("key", key).
			Dur("timeout", c.timeout).
			Msg("Upstream fetch timed out")
	default:
		c.logger.Warn().Err(err).Stringer("key", key).Msg("Upstream fetch failed")
	}
	return err
}

func resultLabel(err error) string {
	if class := upstream.ClassOf(err); class != "" {
		return string(class)
	}
	return "error"
}
