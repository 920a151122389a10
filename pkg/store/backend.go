// Package store persists per-simulation event streams in a key-value
// backend with list semantics: newest-first insertion, bounded retention,
// ordered range reads.
//
// The store is a deliberate error boundary. Backend failures never
// propagate to callers as errors; writes report false and reads report
// empty results, so higher layers reason only in terms of "succeeded" or
// "returned nothing".
package store

import (
	"context"
	"errors"
	"time"
)

// NoExpiry is reported by Backend.TTL for a key that exists but has no
// expiration set.
const NoExpiry time.Duration = -1

// ErrKeyNotFound is returned by Backend.TTL when the key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// Backend is the key-value contract the store consumes. Any
// implementation offering these five primitives (list push, range read,
// TTL get/set, prefix scan, delete) satisfies it. Implementations must be
// safe for concurrent use; the store adds no locking of its own.
type Backend interface {
	// Push prepends a value to the list at key, creating it if absent.
	Push(ctx context.Context, key string, value []byte) error

	// Range returns list elements between start and stop inclusive,
	// head-first. A missing key yields an empty result, not an error.
	Range(ctx context.Context, key string, start, stop int64) ([][]byte, error)

	// Expire sets or resets the key's time-to-live.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the key's remaining time-to-live, NoExpiry if none is
	// set, or ErrKeyNotFound if the key is gone.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Scan returns all keys matching a glob pattern.
	Scan(ctx context.Context, pattern string) ([]string, error)

	// Delete removes the given keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)
}
