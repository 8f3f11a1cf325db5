// Package cache defines a byte-oriented cache contract with TTL expiry and a
// bounded compare-and-swap Modify operation, plus drivers backed by an
// in-process map, Redis, memcached and DynamoDB. Instances are opened from
// settings URLs, e.g. "mem://?sweep=1m" or "redis://localhost:6379/0".
package cache

import (
	"context"
	"errors"
	"time"
)

// Defaults applied when a settings URL leaves the knob unset.
const (
	// DefaultTTL bounds entry lifetime when Set is called with ttl <= 0.
	DefaultTTL = 10 * time.Minute
	// DefaultModifyMaxTries caps CAS attempts before Modify gives up.
	DefaultModifyMaxTries = 8
	// DefaultSweepInterval drives the in-memory janitor when enabled.
	DefaultSweepInterval = time.Minute
)

var (
	// ErrTooMuchContention reports that Modify exhausted its CAS attempts.
	ErrTooMuchContention = errors.New("cache: too much contention")
	// ErrClosed reports use of a cache after Close.
	ErrClosed = errors.New("cache: closed")
)

// ModifyFunc transforms the current entry into its next value. exists is
// false when the key is absent, in which case current is nil. Returning a nil
// next value with a nil error deletes the key.
type ModifyFunc func(current []byte, exists bool) (next []byte, err error)

// Cache is the minimal contract shared by all drivers. Values are opaque
// bytes; callers own serialization.
type Cache interface {
	// Get returns the value for key. ok is false on a miss; expired entries
	// count as misses.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key for ttl. A non-positive ttl applies the
	// driver's configured default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Modify applies fn to the current entry under optimistic concurrency.
	// The attempt is retried when another writer races in between read and
	// write, bounded by the driver's maxTries; exhaustion surfaces as
	// ErrTooMuchContention. The stored value is returned.
	Modify(ctx context.Context, key string, ttl time.Duration, fn ModifyFunc) ([]byte, error)
	// Close releases driver resources.
	Close() error
}

// Pinger is an optional capability for drivers that can verify connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
