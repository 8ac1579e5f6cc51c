package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/weathertowear/service/internal/models"
)

const keyPrefix = "hourly:"

// Entries carry their own capture timestamp, so the memcached expiration is
// only a cap to let dead keys fall out eventually.
const maxEntryLifetimeSec = 24 * 60 * 60

// MemcachedCache implements Cache on memcached. The freshness decision is
// made from the timestamp serialized with the payload, same as the postgres
// backend, so a hit never serves data older than the window.
type MemcachedCache struct {
	client *memcache.Client
}

type memcachedEntry struct {
	Payload  []models.HourlyRecord `json:"payload"`
	StoredAt time.Time             `json:"storedAt"`
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(k string) string {
	return keyPrefix + k
}

// Get implements Cache.Get. Returns false, nil on cache miss or staleness;
// false, err on transport or decode failure.
func (c *MemcachedCache) Get(ctx context.Context, key string, now time.Time, window time.Duration) ([]models.HourlyRecord, bool, error) {
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return nil, false, nil
		}
		return nil, false, err
	}
	var entry memcachedEntry
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		return nil, false, err
	}
	if now.Sub(entry.StoredAt) >= window {
		return nil, false, nil
	}
	return entry.Payload, true, nil
}

// Put implements Cache.Put. memcached Set replaces the whole value, so the
// upsert is atomic per key.
func (c *MemcachedCache) Put(ctx context.Context, key string, payload []models.HourlyRecord, now time.Time) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(memcachedEntry{Payload: payload, StoredAt: now})
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: maxEntryLifetimeSec,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
