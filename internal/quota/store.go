// Package quota implements the daily word quota: an atomic counter store
// with ranked remote backends and the admission gate in front of the
// generation provider.
package quota

import (
	"context"
	"errors"
	"log"
	"time"
)

// CounterTTL is the expiry applied to usage counters. It exceeds the 24h
// reporting day to absorb clock and instance skew; stale counters are
// reclaimed by the backend instead of an explicit cleanup job.
const CounterTTL = 26 * time.Hour

// ErrUnavailable is returned when no configured backend could serve the
// operation. Callers degrade to a non-authoritative local estimate.
var ErrUnavailable = errors.New("counter store unavailable")

// Store is the atomic counter contract shared by all backends. Get reports
// found=false for an absent key. IncrBy must be atomic per key with respect
// to concurrent callers on any number of instances.
type Store interface {
	Name() string
	Get(ctx context.Context, key string) (int64, bool, error)
	IncrBy(ctx context.Context, key string, by int64, ttl time.Duration) (int64, error)
}

// Chain tries backends in fixed rank order. Backend errors never cross the
// chain boundary: a failing backend is logged and the next one is tried.
type Chain struct {
	backends []Store
}

// NewChain builds a chain from the given backends, skipping absent ones so
// callers can pass optionally-configured backends directly. The constructors
// return typed nil pointers when unconfigured, which a bare interface
// comparison would miss.
func NewChain(backends ...Store) *Chain {
	chain := &Chain{}
	for _, b := range backends {
		if absentBackend(b) {
			continue
		}
		chain.backends = append(chain.backends, b)
	}
	return chain
}

func absentBackend(b Store) bool {
	switch v := b.(type) {
	case nil:
		return true
	case *UpstashStore:
		return v == nil
	case *RedisStore:
		return v == nil
	}
	return false
}

// Name implements Store
func (c *Chain) Name() string { return "chain" }

// Get returns the counter value from the first backend that answers. An
// authoritative "absent" falls through to the next backend (the key may
// live there) but still counts as an answer; only when every backend fails
// outright does Get report ErrUnavailable.
func (c *Chain) Get(ctx context.Context, key string) (int64, bool, error) {
	answered := false
	for _, b := range c.backends {
		val, found, err := b.Get(ctx, key)
		if err != nil {
			log.Printf("[quota] %s get failed for %s: %v", b.Name(), key, err)
			continue
		}
		if found {
			return val, true, nil
		}
		answered = true
	}
	if answered {
		return 0, false, nil
	}
	return 0, false, ErrUnavailable
}

// IncrBy increments on the first backend that accepts the write
func (c *Chain) IncrBy(ctx context.Context, key string, by int64, ttl time.Duration) (int64, error) {
	for _, b := range c.backends {
		val, err := b.IncrBy(ctx, key, by, ttl)
		if err != nil {
			log.Printf("[quota] %s incrby failed for %s: %v", b.Name(), key, err)
			continue
		}
		return val, nil
	}
	return 0, ErrUnavailable
}
