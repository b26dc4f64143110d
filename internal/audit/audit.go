// Package audit records the outcome of every guest token issuance.
package audit

import (
	"fmt"

	"github.com/yunqiqiliang/embedgate/internal/core"
)

const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendFile   = "file"
)

// Open returns the auditor for backend. An empty backend disables auditing.
func Open(backend, path string, maxEntries int) (core.Auditor, error) {
	switch backend {
	case "", BackendNone:
		return NewNoopAuditor(), nil
	case BackendMemory:
		return NewInMemoryAuditor(maxEntries), nil
	case BackendFile:
		if path == "" {
			return nil, fmt.Errorf("audit backend %q requires a path", backend)
		}
		return NewFileAuditor(path)
	default:
		return nil, fmt.Errorf("unknown audit backend %q", backend)
	}
}
