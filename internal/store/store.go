// Package store provides the backing stores of the credential and dashboard caches.
package store

import (
	"context"
	"fmt"

	"github.com/yunqiqiliang/embedgate/internal/core"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Open builds the core.Store for the given backend.
// url is used by the redis backend, memoryEntries by the memory backend.
func Open(ctx context.Context, backend, url string, memoryEntries int) (core.Store, error) {
	switch backend {
	case BackendRedis, "":
		client, err := NewRedisClient(ctx, url)
		if err != nil {
			return nil, err
		}
		s, err := NewRedisStore(client)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMemory:
		s, err := NewMemoryStore(memoryEntries)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
