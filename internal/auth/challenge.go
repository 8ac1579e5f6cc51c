package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"math/big"
	"sync"
	"time"
)

const (
	defaultChallengeTTL  = 10 * time.Minute
	defaultMaxChallenges = 10000
	defaultMaxAttempts   = 5
)

type challengeEntry struct {
	codeHash  [32]byte
	expiresAt time.Time
	attempts  int
}

// challengeStore holds pending one-time codes keyed by phone number. Codes
// are stored hashed, expire after a TTL, and burn after a fixed number of
// failed attempts. The store is bounded; when full, issuing a new challenge
// evicts expired entries first and refuses only if live entries fill it.
type challengeStore struct {
	mu          sync.Mutex
	entries     map[string]challengeEntry
	ttl         time.Duration
	maxEntries  int
	maxAttempts int
	now         func() time.Time
}

func newChallengeStore(ttl time.Duration, maxEntries, maxAttempts int) *challengeStore {
	if ttl <= 0 {
		ttl = defaultChallengeTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultMaxChallenges
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &challengeStore{
		entries:     make(map[string]challengeEntry),
		ttl:         ttl,
		maxEntries:  maxEntries,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Issue generates a fresh 6-digit code for phone, replacing any pending
// challenge. Returns the plaintext code for delivery.
func (cs *challengeStore) Issue(phone string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	now := cs.now()
	if _, exists := cs.entries[phone]; !exists && len(cs.entries) >= cs.maxEntries {
		cs.evictExpiredLocked(now)
		if len(cs.entries) >= cs.maxEntries {
			return "", fmt.Errorf("challenge store full")
		}
	}
	cs.entries[phone] = challengeEntry{
		codeHash:  sha256.Sum256([]byte(code)),
		expiresAt: now.Add(cs.ttl),
	}
	return code, nil
}

// Check verifies code against the pending challenge for phone. A matching
// code consumes the challenge. Expired and attempt-capped challenges are
// removed and reported with their sentinel.
func (cs *challengeStore) Check(phone, code string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	entry, ok := cs.entries[phone]
	if !ok {
		return ErrChallengeNotFound
	}
	if cs.now().After(entry.expiresAt) {
		delete(cs.entries, phone)
		return ErrChallengeExpired
	}
	if entry.attempts >= cs.maxAttempts {
		delete(cs.entries, phone)
		return ErrTooManyAttempts
	}

	hash := sha256.Sum256([]byte(code))
	if subtle.ConstantTimeCompare(hash[:], entry.codeHash[:]) != 1 {
		entry.attempts++
		if entry.attempts >= cs.maxAttempts {
			delete(cs.entries, phone)
			return ErrTooManyAttempts
		}
		cs.entries[phone] = entry
		return ErrInvalidCode
	}

	delete(cs.entries, phone)
	return nil
}

func (cs *challengeStore) evictExpiredLocked(now time.Time) {
	for phone, entry := range cs.entries {
		if now.After(entry.expiresAt) {
			delete(cs.entries, phone)
		}
	}
}

// generateCode returns a uniformly random 6-digit code, zero-padded.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
