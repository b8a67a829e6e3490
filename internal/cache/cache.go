// Package cache provides the TTL key-value store backing the refresh mutex,
// the jti lookup cache, and the revocation cache.
package cache

import (
	"context"
	"time"
)

// Store is a key-value store with per-key TTL and an atomic set-if-absent
// primitive. Implementations must make SetIfAbsent atomic across all
// processes sharing the store; the refresh mutex depends on it.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key for ttl. ttl must be positive.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetIfAbsent stores value under key for ttl only if the key does not
	// exist. Returns true if the value was stored.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
