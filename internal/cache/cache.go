package cache

import (
	"context"
	"sync"
	"time"

	"github.com/weathertowear/service/internal/models"
)

// Cache is the keyed forecast store. Get returns the stored payload only if
// its capture timestamp is younger than window; older rows are reported as a
// miss even though they remain in storage. Put is an atomic per-key upsert.
type Cache interface {
	Get(ctx context.Context, key string, now time.Time, window time.Duration) ([]models.HourlyRecord, bool, error)
	Put(ctx context.Context, key string, payload []models.HourlyRecord, now time.Time) error
}

// InMemoryCache implements Cache with a mutex-guarded map. Used in dev and
// tests. Entries are never deleted; staleness is decided on read.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]memEntry
}

type memEntry struct {
	payload  []models.HourlyRecord
	storedAt time.Time
}

// NewInMemoryCache creates an empty in-memory cache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{data: make(map[string]memEntry)}
}

// Get returns (payload, true, nil) when a fresh entry exists for key, and
// (nil, false, nil) on miss or staleness.
func (c *InMemoryCache) Get(ctx context.Context, key string, now time.Time, window time.Duration) ([]models.HourlyRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	if now.Sub(entry.storedAt) >= window {
		return nil, false, nil
	}
	return entry.payload, true, nil
}

// Put inserts or replaces the entry for key.
func (c *InMemoryCache) Put(ctx context.Context, key string, payload []models.HourlyRecord, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = memEntry{payload: payload, storedAt: now}
	return nil
}
