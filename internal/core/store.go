package core

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by a Store if the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// Store is the key-value backing store shared by the caches.
type Store interface {
	// Get returns the value stored under key or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping checks connectivity to the store.
	Ping(ctx context.Context) error

	// Close releases the connection to the store.
	Close() error
}
