// Package cache defines the cache used for compiled policy checks.
package cache

import (
	"context"
	"time"
)

// Cache stores values with a time-to-live.
type Cache interface {
	// Get returns the value and true if present and not expired.
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores a value. A zero ttl uses the implementation's default.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	Clear(ctx context.Context) error

	Close() error

	// Metrics returns a snapshot of cache statistics.
	Metrics() *Metrics
}

// Metrics holds cache performance statistics.
type Metrics struct {
	Hits        uint64
	Misses      uint64
	KeysAdded   uint64
	KeysEvicted uint64
	CostAdded   uint64 // estimated bytes added
	CostEvicted uint64 // estimated bytes evicted
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (m *Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0.0
	}
	return float64(m.Hits) / float64(total)
}
