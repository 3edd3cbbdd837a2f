package testutil

import (
	"sync"
	"time"
)

// Clock is a manually advanced clock for TTL tests.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock creates a clock starting at the given instant.
func NewClock(start time.Time) *Clock {
	return &Clock{t: start}
}

// Now returns the current fake time. Pass this method as the store's Now.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
