package ratelimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoryKeys bounds the number of tracked keys per process.
const DefaultMemoryKeys = 10000

type window struct {
	count   int64
	resetAt time.Time
}

var _ Counter = (*MemoryCounter)(nil)

// MemoryCounter keeps windows in process. Evicting a key forgets its window.
type MemoryCounter struct {
	mu      sync.Mutex
	windows *lru.Cache[string, *window]
	now     func() time.Time
}

func NewMemoryCounter(maxKeys int) (*MemoryCounter, error) {
	if maxKeys <= 0 {
		maxKeys = DefaultMemoryKeys
	}
	windows, err := lru.New[string, *window](maxKeys)
	if err != nil {
		return nil, err
	}
	return &MemoryCounter{windows: windows, now: time.Now}, nil
}

func (m *MemoryCounter) WithClock(now func() time.Time) *MemoryCounter {
	m.now = now
	return m
}

func (m *MemoryCounter) Incr(_ context.Context, key string, length time.Duration) (int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows.Get(key)
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(length)}
		m.windows.Add(key, w)
	}
	w.count++
	return w.count, w.resetAt, nil
}
