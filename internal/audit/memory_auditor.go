package audit

import (
	"sync"

	"github.com/yunqiqiliang/embedgate/internal/core"
)

var _ core.Auditor = (*InMemoryAuditor)(nil)

// InMemoryAuditor keeps the most recent audit entries in a bounded ring.
type InMemoryAuditor struct {
	mu      sync.Mutex
	max     int
	entries []core.AuditEntry
}

// DefaultMemoryEntries is used when NewInMemoryAuditor is called with max <= 0.
const DefaultMemoryEntries = 1000

func NewInMemoryAuditor(max int) *InMemoryAuditor {
	if max <= 0 {
		max = DefaultMemoryEntries
	}
	return &InMemoryAuditor{
		max:     max,
		entries: make([]core.AuditEntry, 0),
	}
}

func (i *InMemoryAuditor) Log(entry core.AuditEntry) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.entries = append(i.entries, entry)
	if over := len(i.entries) - i.max; over > 0 {
		i.entries = append(i.entries[:0:0], i.entries[over:]...)
	}
	return nil
}

func (i *InMemoryAuditor) GetRecent(limit int) ([]core.AuditEntry, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if limit > len(i.entries) || limit <= 0 {
		limit = len(i.entries)
	}
	start := len(i.entries) - limit
	entries := make([]core.AuditEntry, limit)
	copy(entries, i.entries[start:])

	return entries, nil
}

func (i *InMemoryAuditor) Close() error {
	return nil // nothing to close :)
}
