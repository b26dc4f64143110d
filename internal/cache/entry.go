// Package cache implements the read-through caches for the session credential and
// the published dashboard list on top of an injected core.Store.
package cache

import "time"

// Entry is the unit written to the backing store. Value and expiry are always
// written together in a single Set.
type Entry[T any] struct {
	Value     T         `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry must no longer be returned at now.
func (e Entry[T]) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
