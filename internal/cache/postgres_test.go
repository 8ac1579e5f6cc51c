package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/weathertowear/service/internal/models"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool() error = %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

// TestPostgresCache_Get_FreshHit verifies a row younger than the window is
// returned as a hit with the decoded payload.
func TestPostgresCache_Get_FreshHit(t *testing.T) {
	mock := newMockPool(t)
	c := NewPostgresCache(mock)

	now := time.Date(2025, 12, 14, 12, 30, 0, 0, time.UTC)
	payload := []models.HourlyRecord{record("13:00:00", 28)}
	raw, _ := json.Marshal(payload)

	mock.ExpectQuery(`SELECT data, timestamp FROM hourly_cache WHERE location = \$1`).
		WithArgs("grand rapids mi").
		WillReturnRows(pgxmock.NewRows([]string{"data", "timestamp"}).
			AddRow(raw, now.Add(-10*time.Minute)))

	got, ok, err := c.Get(context.Background(), "grand rapids mi", now, time.Hour)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() miss, want hit")
	}
	if len(got) != 1 || got[0].Datetime != "13:00:00" {
		t.Errorf("Get() payload = %+v, want one record at 13:00:00", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

// TestPostgresCache_Get_StaleRowIsMiss verifies a row older than the window
// is reported as a miss without touching the row.
func TestPostgresCache_Get_StaleRowIsMiss(t *testing.T) {
	mock := newMockPool(t)
	c := NewPostgresCache(mock)

	now := time.Date(2025, 12, 14, 12, 30, 0, 0, time.UTC)
	raw, _ := json.Marshal([]models.HourlyRecord{record("09:00:00", 20)})

	mock.ExpectQuery(`SELECT data, timestamp FROM hourly_cache WHERE location = \$1`).
		WithArgs("49503").
		WillReturnRows(pgxmock.NewRows([]string{"data", "timestamp"}).
			AddRow(raw, now.Add(-2*time.Hour)))

	_, ok, err := c.Get(context.Background(), "49503", now, time.Hour)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Fatal("Get() hit, want miss for stale row")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

// TestPostgresCache_Get_NoRowIsMiss verifies an absent key is a plain miss,
// not an error.
func TestPostgresCache_Get_NoRowIsMiss(t *testing.T) {
	mock := newMockPool(t)
	c := NewPostgresCache(mock)

	mock.ExpectQuery(`SELECT data, timestamp FROM hourly_cache WHERE location = \$1`).
		WithArgs("nowhere").
		WillReturnRows(pgxmock.NewRows([]string{"data", "timestamp"}))

	_, ok, err := c.Get(context.Background(), "nowhere", time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("Get() error = %v, want nil for missing key", err)
	}
	if ok {
		t.Fatal("Get() hit, want miss for missing key")
	}
}

// TestPostgresCache_Put_Upsert verifies Put issues a single conditional
// insert-or-update statement with the key, payload, and timestamp.
func TestPostgresCache_Put_Upsert(t *testing.T) {
	mock := newMockPool(t)
	c := NewPostgresCache(mock)

	now := time.Date(2025, 12, 14, 12, 30, 0, 0, time.UTC)
	payload := []models.HourlyRecord{record("13:00:00", 28)}
	raw, _ := json.Marshal(payload)

	mock.ExpectExec(`INSERT INTO hourly_cache .*ON CONFLICT \(location\).*DO UPDATE`).
		WithArgs("grand rapids mi", raw, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := c.Put(context.Background(), "grand rapids mi", payload, now); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

// TestPostgresCache_Put_Error verifies storage failures are wrapped and
// surfaced to the caller.
func TestPostgresCache_Put_Error(t *testing.T) {
	mock := newMockPool(t)
	c := NewPostgresCache(mock)

	mock.ExpectExec(`INSERT INTO hourly_cache`).
		WillReturnError(errors.New("connection refused"))

	err := c.Put(context.Background(), "seattle", nil, time.Now())
	if err == nil {
		t.Fatal("Put() error = nil, want error")
	}
}
