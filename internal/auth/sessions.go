package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/weathertowear/service/internal/store"
)

// DefaultSessionTTL is how long a session stays valid after creation.
const DefaultSessionTTL = 24 * time.Hour

const sessionTokenBytes = 32

// SessionStore persists login sessions in postgres. A session binds an
// opaque token to a user row keyed by phone number.
type SessionStore struct {
	db  store.Querier
	ttl time.Duration
}

// NewSessionStore creates a SessionStore. ttl <= 0 falls back to 24 hours.
func NewSessionStore(db store.Querier, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{db: db, ttl: ttl}
}

// Create upserts the user row for phone and inserts a new session, returning
// the session token.
func (s *SessionStore) Create(ctx context.Context, phone string, now time.Time) (string, error) {
	token, err := generateSessionToken()
	if err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}

	var userID int
	err = s.db.QueryRow(ctx,
		`INSERT INTO users (phone_number, created_at, updated_at)
		 VALUES ($1, $2, $2)
		 ON CONFLICT (phone_number)
		 DO UPDATE SET updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		phone, now,
	).Scan(&userID)
	if err != nil {
		return "", fmt.Errorf("upsert user: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO user_sessions (user_id, session_token, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`,
		userID, token, now.Add(s.ttl), now,
	)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return token, nil
}

// Resume looks up token and returns the owning phone number. Unknown and
// expired tokens both return ErrSessionNotFound; expired rows are deleted.
func (s *SessionStore) Resume(ctx context.Context, token string, now time.Time) (string, error) {
	var phone string
	var expiresAt time.Time
	err := s.db.QueryRow(ctx,
		`SELECT u.phone_number, s.expires_at
		 FROM user_sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.session_token = $1`,
		token,
	).Scan(&phone, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup session: %w", err)
	}
	if !now.Before(expiresAt) {
		if _, delErr := s.db.Exec(ctx, `DELETE FROM user_sessions WHERE session_token = $1`, token); delErr != nil {
			return "", fmt.Errorf("delete expired session: %w", delErr)
		}
		return "", ErrSessionNotFound
	}
	return phone, nil
}

// Invalidate deletes the session for token. Deleting an unknown token is
// not an error.
func (s *SessionStore) Invalidate(ctx context.Context, token string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM user_sessions WHERE session_token = $1`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpired removes all expired sessions. Resume only deletes the row it
// touches, so PurgeLoop runs this periodically to keep the table from
// accumulating dead rows.
func (s *SessionStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM user_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeLoop purges expired sessions once immediately, then at the given
// interval until ctx is done. interval <= 0 falls back to one hour.
func (s *SessionStore) PurgeLoop(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	purge := func() {
		n, err := s.PurgeExpired(ctx, time.Now())
		if err != nil {
			if logger != nil {
				logger.Warn("session purge failed", zap.Error(err))
			}
			return
		}
		if n > 0 && logger != nil {
			logger.Info("expired sessions purged", zap.Int64("count", n))
		}
	}
	purge()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purge()
		}
	}
}

// generateSessionToken returns a URL-safe random token.
func generateSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
