package store

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/yunqiqiliang/embedgate/internal/core"
)

// DefaultMemoryEntries bounds the number of keys held by a MemoryStore.
const DefaultMemoryEntries = 1024

var _ core.Store = (*MemoryStore)(nil)

type memoryItem struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is a process local core.Store. Entries expire lazily on read.
type MemoryStore struct {
	cache *lru.Cache[string, memoryItem]
	now   func() time.Time
}

func NewMemoryStore(maxEntries int) (*MemoryStore, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryEntries
	}
	cache, err := lru.New[string, memoryItem](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("creating LRU cache: %w", err)
	}
	return &MemoryStore{
		cache: cache,
		now:   time.Now,
	}, nil
}

// WithClock replaces the clock used for expiry checks.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	item, ok := s.cache.Get(key)
	if !ok {
		return nil, core.ErrCacheMiss
	}
	if !item.expiresAt.IsZero() && !s.now().Before(item.expiresAt) {
		s.cache.Remove(key)
		return nil, core.ErrCacheMiss
	}
	out := make([]byte, len(item.data))
	copy(out, item.data)
	return out, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{data: make([]byte, len(value))}
	copy(item.data, value)
	if ttl > 0 {
		item.expiresAt = s.now().Add(ttl)
	}
	s.cache.Add(key, item)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.cache.Remove(key)
	return nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	s.cache.Purge()
	return nil
}
