package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
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

func TestSessionStore_Create(t *testing.T) {
	mock := newMockPool(t)
	s := NewSessionStore(mock, 24*time.Hour)

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO users .*ON CONFLICT \(phone_number\).*RETURNING id`).
		WithArgs("+12125551234", now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(`INSERT INTO user_sessions`).
		WithArgs(7, pgxmock.AnyArg(), now.Add(24*time.Hour), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	token, err := s.Create(context.Background(), "+12125551234", now)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(token) < 40 {
		t.Errorf("token %q too short", token)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSessionStore_Create_UserUpsertError(t *testing.T) {
	mock := newMockPool(t)
	s := NewSessionStore(mock, 0)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(errors.New("connection refused"))

	if _, err := s.Create(context.Background(), "+12125551234", time.Now()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSessionStore_Resume(t *testing.T) {
	mock := newMockPool(t)
	s := NewSessionStore(mock, 24*time.Hour)

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT u.phone_number, s.expires_at`).
		WithArgs("tok123").
		WillReturnRows(pgxmock.NewRows([]string{"phone_number", "expires_at"}).
			AddRow("+12125551234", now.Add(time.Hour)))

	phone, err := s.Resume(context.Background(), "tok123", now)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if phone != "+12125551234" {
		t.Errorf("phone = %q", phone)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSessionStore_Resume_Unknown(t *testing.T) {
	mock := newMockPool(t)
	s := NewSessionStore(mock, 24*time.Hour)

	mock.ExpectQuery(`SELECT u.phone_number, s.expires_at`).
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"phone_number", "expires_at"}))

	_, err := s.Resume(context.Background(), "nope", time.Now())
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionStore_Resume_ExpiredDeletesRow(t *testing.T) {
	mock := newMockPool(t)
	s := NewSessionStore(mock, 24*time.Hour)

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT u.phone_number, s.expires_at`).
		WithArgs("stale").
		WillReturnRows(pgxmock.NewRows([]string{"phone_number", "expires_at"}).
			AddRow("+12125551234", now.Add(-time.Minute)))
	mock.ExpectExec(`DELETE FROM user_sessions WHERE session_token = \$1`).
		WithArgs("stale").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	_, err := s.Resume(context.Background(), "stale", now)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSessionStore_Invalidate(t *testing.T) {
	mock := newMockPool(t)
	s := NewSessionStore(mock, 24*time.Hour)

	mock.ExpectExec(`DELETE FROM user_sessions WHERE session_token = \$1`).
		WithArgs("tok123").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	if err := s.Invalidate(context.Background(), "tok123"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSessionStore_PurgeExpired(t *testing.T) {
	mock := newMockPool(t)
	s := NewSessionStore(mock, 24*time.Hour)

	now := time.Now()
	mock.ExpectExec(`DELETE FROM user_sessions WHERE expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.PurgeExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 3 {
		t.Errorf("purged = %d, want 3", n)
	}
}

func TestSessionStore_PurgeLoop_PurgesAndStopsOnCancel(t *testing.T) {
	mock := newMockPool(t)
	s := NewSessionStore(mock, 24*time.Hour)

	// Initial purge fires before the first tick; the long interval keeps the
	// ticker from firing again before cancel.
	mock.ExpectExec(`DELETE FROM user_sessions WHERE expires_at <= \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.PurgeLoop(ctx, time.Hour, nil)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PurgeLoop did not return after cancel")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
