// Package cache provides the in-process TTL cache for decrypted secrets
// and organization listings.
package cache

import (
	"time"

	"github.com/secretsgate/bws-rest-proxy/pkg/upstream"
)

// State is the outcome of a cache lookup.
type State int

const (
	// Absent means no entry exists for the key.
	Absent State = iota

	// Stale means an entry exists but is past its TTL (or past the
	// caller's freshness bound) and must not be served as current.
	Stale

	// Fresh means the entry is within its TTL and may be served.
	Fresh
)

// String returns the lookup state name for logs and metrics labels.
func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "absent"
	}
}

// Entry is one cached object. Exactly one of Secret, Identifiers or
// NotFound is populated. Entries are owned by the Store; lookups hand out
// copies.
type Entry struct {
	// Secret is the cached decrypted secret for KindSecret entries.
	Secret *upstream.Secret

	// Identifiers is the cached listing for KindList entries.
	Identifiers []upstream.SecretIdentifier

	// NotFound marks a negative entry: the backend reported the key absent.
	NotFound bool

	// FetchedAt is when the upstream fetch that produced this entry completed.
	FetchedAt time.Time

	// TTL is the maximum age at which the entry may still be served.
	TTL time.Duration
}

// AgeAt returns how old the entry is at the given instant.
func (e *Entry) AgeAt(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// FreshAt reports whether the entry may be served at the given instant.
// A positive maxAge shortens the effective TTL; it never extends it.
func (e *Entry) FreshAt(now time.Time, maxAge time.Duration) bool {
	age := e.AgeAt(now)
	if age >= e.TTL {
		return false
	}
	if maxAge > 0 && age >= maxAge {
		return false
	}
	return true
}

// clone returns an independent copy so callers never hold references into
// the store.
func (e *Entry) clone() *Entry {
	out := &Entry{
		NotFound:  e.NotFound,
		FetchedAt: e.FetchedAt,
		TTL:       e.TTL,
	}
	if e.Secret != nil {
		secret := *e.Secret
		out.Secret = &secret
	}
	if e.Identifiers != nil {
		out.Identifiers = append([]upstream.SecretIdentifier(nil), e.Identifiers...)
	}
	return out
}
