// Package store defines the TTL key-value abstraction shared by the result
// cache, session history and stream handoff, plus a process-local
// implementation used in development or when the networked store is down.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("store: key not found")

// Store is a string-keyed store whose entries expire after a TTL.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetWithTTL writes value under key, replacing any previous value.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// GetAndDelete atomically removes key and returns its value. When several
	// callers race on the same key exactly one receives the value; the others
	// get ErrNotFound.
	GetAndDelete(ctx context.Context, key string) ([]byte, error)

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error

	// Name identifies the backend in health output and logs.
	Name() string

	// Close releases resources held by the store.
	Close() error
}
