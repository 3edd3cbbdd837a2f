package cache

import (
	"sync"
	"time"

	"github.com/secretsgate/bws-rest-proxy/pkg/upstream"
)

// Default TTLs applied when the configuration leaves them zero.
const (
	DefaultTTL         = 60 * time.Second
	DefaultNegativeTTL = 5 * time.Second
)

// Config holds the store configuration.
type Config struct {
	// DefaultTTL bounds how long a successful fetch may be served.
	DefaultTTL time.Duration

	// NegativeTTL bounds how long a not-found result may be served. It is
	// kept short so repeated misses do not stampede upstream while a newly
	// created secret still becomes visible quickly.
	NegativeTTL time.Duration

	// Now reports the current wallclock time. Nil means time.Now.
	Now func() time.Time
}

// Store is the in-process secret cache. All state lives behind one
// short-held lock; no upstream call ever happens while it is held.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	defaultTTL  time.Duration
	negativeTTL time.Duration
	now         func() time.Time
}

// NewStore creates an empty store.
func NewStore(cfg Config) *Store {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = DefaultNegativeTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		entries:     make(map[string]*Entry),
		defaultTTL:  cfg.DefaultTTL,
		negativeTTL: cfg.NegativeTTL,
		now:         cfg.Now,
	}
}

// Lookup consults the cache without ever calling upstream. A positive
// maxAge shortens the freshness bound for this lookup only. The returned
// entry is a copy and is nil unless the state is Fresh.
func (s *Store) Lookup(key Key, maxAge time.Duration) (*Entry, State) {
	s.mu.RLock()
	entry, ok := s.entries[key.String()]
	var now time.Time
	if ok {
		now = s.now()
	}
	s.mu.RUnlock()

	if !ok {
		CacheMisses.WithLabelValues(string(key.Kind), Absent.String()).Inc()
		return nil, Absent
	}
	if !entry.FreshAt(now, maxAge) {
		CacheMisses.WithLabelValues(string(key.Kind), Stale.String()).Inc()
		return nil, Stale
	}

	CacheHits.WithLabelValues(string(key.Kind)).Inc()
	return entry.clone(), Fresh
}

// InsertSecret stores a freshly fetched secret, replacing any existing
// entry and stamping FetchedAt with the current time.
func (s *Store) InsertSecret(key Key, secret *upstream.Secret) {
	copied := *secret
	s.insert(key, &Entry{Secret: &copied, TTL: s.defaultTTL})
}

// InsertList stores a freshly fetched organization listing.
func (s *Store) InsertList(key Key, identifiers []upstream.SecretIdentifier) {
	s.insert(key, &Entry{
		Identifiers: append([]upstream.SecretIdentifier(nil), identifiers...),
		TTL:         s.defaultTTL,
	})
}

// InsertNegative records a not-found outcome under the negative TTL.
// Negative entries are never surfaced as success data.
func (s *Store) InsertNegative(key Key) {
	s.insert(key, &Entry{NotFound: true, TTL: s.negativeTTL})
}

func (s *Store) insert(key Key, entry *Entry) {
	s.mu.Lock()
	entry.FetchedAt = s.now()
	s.entries[key.String()] = entry
	size := len(s.entries)
	s.mu.Unlock()

	CacheInserts.WithLabelValues(string(key.Kind)).Inc()
	CacheEntries.Set(float64(size))
}

// Invalidate removes the entry unconditionally. An in-flight fetch for the
// key is not cancelled; when it completes it may repopulate a fresh entry.
func (s *Store) Invalidate(key Key) {
	s.mu.Lock()
	delete(s.entries, key.String())
	size := len(s.entries)
	s.mu.Unlock()

	CacheInvalidations.WithLabelValues("key").Inc()
	CacheEntries.Set(float64(size))
}

// InvalidateAll drops every entry. Used after the backend session is
// replaced, since values cached under the old session are no longer
// trustworthy.
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	s.entries = make(map[string]*Entry)
	s.mu.Unlock()

	CacheInvalidations.WithLabelValues("all").Inc()
	CacheEntries.Set(0)
}

// Len returns the number of live entries, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
