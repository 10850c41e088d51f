package cache

import (
	"context"
	"sync/atomic"
	"time"
)

// Noop is the Null Object cache: every Get misses and Set stores nothing.
// It lets callers disable caching without branching at call sites.
type Noop[V any] struct {
	misses atomic.Uint64
}

// NewNoop creates a no-op cache provider.
func NewNoop[V any]() *Noop[V] {
	return &Noop[V]{}
}

// Get always misses.
func (c *Noop[V]) Get(context.Context, string) (V, bool) {
	var zero V
	c.misses.Add(1)
	return zero, false
}

// Set discards the value.
func (c *Noop[V]) Set(context.Context, string, V, time.Duration) {}

// Delete reports the key as absent.
func (c *Noop[V]) Delete(context.Context, string) bool { return false }

// Has reports the key as absent.
func (c *Noop[V]) Has(context.Context, string) bool { return false }

// Clear is a no-op.
func (c *Noop[V]) Clear(context.Context) {}

// Size is always zero.
func (c *Noop[V]) Size(context.Context) int { return 0 }

// Stats reports zero hits and the number of misses served.
func (c *Noop[V]) Stats() Stats {
	return Stats{Misses: c.misses.Load()}
}
