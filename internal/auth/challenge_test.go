package auth

import (
	"errors"
	"testing"
	"time"
)

func TestChallengeStore_IssueAndCheck(t *testing.T) {
	cs := newChallengeStore(10*time.Minute, 100, 5)

	code, err := cs.Issue("+12125551234")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("code length = %d, want 6", len(code))
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Fatalf("code %q contains non-digit", code)
		}
	}

	if err := cs.Check("+12125551234", code); err != nil {
		t.Fatalf("Check: %v", err)
	}
	// Matching code consumes the challenge.
	if err := cs.Check("+12125551234", code); !errors.Is(err, ErrChallengeNotFound) {
		t.Errorf("second check = %v, want ErrChallengeNotFound", err)
	}
}

func TestChallengeStore_UnknownPhone(t *testing.T) {
	cs := newChallengeStore(10*time.Minute, 100, 5)
	if err := cs.Check("+12125551234", "123456"); !errors.Is(err, ErrChallengeNotFound) {
		t.Errorf("err = %v, want ErrChallengeNotFound", err)
	}
}

func TestChallengeStore_WrongCode(t *testing.T) {
	cs := newChallengeStore(10*time.Minute, 100, 5)
	code, err := cs.Issue("+12125551234")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	if err := cs.Check("+12125551234", wrong); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("err = %v, want ErrInvalidCode", err)
	}
	// A wrong attempt does not burn the challenge below the cap.
	if err := cs.Check("+12125551234", code); err != nil {
		t.Errorf("correct code after one miss: %v", err)
	}
}

func TestChallengeStore_AttemptCap(t *testing.T) {
	cs := newChallengeStore(10*time.Minute, 100, 3)
	code, err := cs.Issue("+12125551234")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	for i := 0; i < 2; i++ {
		if err := cs.Check("+12125551234", wrong); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("attempt %d: err = %v, want ErrInvalidCode", i+1, err)
		}
	}
	if err := cs.Check("+12125551234", wrong); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("capped attempt: err = %v, want ErrTooManyAttempts", err)
	}
	// Burned challenge: even the right code is gone.
	if err := cs.Check("+12125551234", code); !errors.Is(err, ErrChallengeNotFound) {
		t.Errorf("after burn: err = %v, want ErrChallengeNotFound", err)
	}
}

func TestChallengeStore_Expiry(t *testing.T) {
	cs := newChallengeStore(10*time.Minute, 100, 5)
	current := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	cs.now = func() time.Time { return current }

	code, err := cs.Issue("+12125551234")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	current = current.Add(10*time.Minute + time.Second)
	if err := cs.Check("+12125551234", code); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("err = %v, want ErrChallengeExpired", err)
	}
	// Expired entry is removed, not retried.
	if err := cs.Check("+12125551234", code); !errors.Is(err, ErrChallengeNotFound) {
		t.Errorf("second check = %v, want ErrChallengeNotFound", err)
	}
}

func TestChallengeStore_ReissueReplaces(t *testing.T) {
	cs := newChallengeStore(10*time.Minute, 100, 5)
	first, err := cs.Issue("+12125551234")
	if err != nil {
		t.Fatalf("first Issue: %v", err)
	}
	second, err := cs.Issue("+12125551234")
	if err != nil {
		t.Fatalf("second Issue: %v", err)
	}

	if first != second {
		if err := cs.Check("+12125551234", first); errors.Is(err, nil) {
			t.Error("stale code accepted after reissue")
		}
		// Reissue resets the pending challenge, so re-issue once more.
		third, err := cs.Issue("+12125551234")
		if err != nil {
			t.Fatalf("third Issue: %v", err)
		}
		if err := cs.Check("+12125551234", third); err != nil {
			t.Errorf("latest code rejected: %v", err)
		}
	}
}

func TestChallengeStore_BoundedWithEviction(t *testing.T) {
	cs := newChallengeStore(10*time.Minute, 2, 5)
	current := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	cs.now = func() time.Time { return current }

	if _, err := cs.Issue("+12125550001"); err != nil {
		t.Fatalf("Issue 1: %v", err)
	}
	if _, err := cs.Issue("+12125550002"); err != nil {
		t.Fatalf("Issue 2: %v", err)
	}
	if _, err := cs.Issue("+12125550003"); err == nil {
		t.Fatal("expected full store to refuse new challenge")
	}

	// Once the live entries expire the slot frees up.
	current = current.Add(11 * time.Minute)
	if _, err := cs.Issue("+12125550003"); err != nil {
		t.Fatalf("Issue after expiry: %v", err)
	}
}
