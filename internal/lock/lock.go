// Package lock provides the short-TTL distributed mutex that linearizes
// refresh rotation per session family across service instances.
package lock

import (
	"context"
	"log"
	"time"

	"session-control-plane/internal/cache"
)

const lockedValue = "locked"

// Coordinator acquires and releases non-blocking exclusive locks built on the
// cache store's atomic set-if-absent. The TTL bounds how long a crashed
// holder can keep a key locked.
type Coordinator struct {
	store cache.Store
}

// NewCoordinator returns a Coordinator over the given store.
func NewCoordinator(store cache.Store) *Coordinator {
	return &Coordinator{store: store}
}

// Acquire attempts to take the lock for key with the given ttl. Never blocks:
// contention returns false immediately. Fails closed: if the store is
// unreachable, Acquire returns false rather than grant a lock it cannot
// guarantee is exclusive.
func (c *Coordinator) Acquire(ctx context.Context, key string, ttl time.Duration) bool {
	set, err := c.store.SetIfAbsent(ctx, key, lockedValue, ttl)
	if err != nil {
		log.Printf("lock: acquire %s failed: %v", key, err)
		return false
	}
	return set
}

// Release deletes the lock key. Best-effort and idempotent: releasing a key
// that was never acquired, or whose TTL already expired, is a no-op.
func (c *Coordinator) Release(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		log.Printf("lock: release %s failed: %v", key, err)
	}
}
