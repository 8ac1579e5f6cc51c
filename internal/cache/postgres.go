package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/weathertowear/service/internal/models"
	"github.com/weathertowear/service/internal/store"
)

// PostgresCache implements Cache on the hourly_cache table. One row per
// location; Put is a single INSERT ... ON CONFLICT DO UPDATE so concurrent
// writers for the same key cannot produce duplicate rows or partial writes.
type PostgresCache struct {
	db store.Querier
}

// NewPostgresCache creates a PostgresCache over an existing pool.
func NewPostgresCache(db store.Querier) *PostgresCache {
	return &PostgresCache{db: db}
}

// Get reads the row for key and applies the freshness window to its stored
// timestamp. A stale row is a miss; the row itself is left in place.
func (c *PostgresCache) Get(ctx context.Context, key string, now time.Time, window time.Duration) ([]models.HourlyRecord, bool, error) {
	var raw []byte
	var storedAt time.Time
	err := c.db.QueryRow(ctx,
		`SELECT data, timestamp FROM hourly_cache WHERE location = $1`,
		key,
	).Scan(&raw, &storedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if now.Sub(storedAt) >= window {
		return nil, false, nil
	}
	var payload []models.HourlyRecord
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return payload, true, nil
}

// Put upserts the row for key, replacing payload and timestamp.
func (c *PostgresCache) Put(ctx context.Context, key string, payload []models.HourlyRecord, now time.Time) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	_, err = c.db.Exec(ctx,
		`INSERT INTO hourly_cache (location, data, timestamp)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (location)
		 DO UPDATE SET data = EXCLUDED.data, timestamp = EXCLUDED.timestamp`,
		key, raw, now,
	)
	if err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	return nil
}
