package auth

import (
	"context"
	"errors"
)

// Provider delivers and checks one-time codes for a phone number. The
// transport (Twilio SMS, Cognito sign-up codes, local log output) is an
// implementation detail; callers see only send and verify.
type Provider interface {
	SendChallenge(ctx context.Context, phone string) error
	VerifyChallenge(ctx context.Context, phone, code string) error
}

var (
	// ErrInvalidCode means the submitted code does not match the challenge.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrChallengeNotFound means no code was issued for the phone number.
	ErrChallengeNotFound = errors.New("no verification code found for this number")
	// ErrChallengeExpired means the issued code's TTL has passed.
	ErrChallengeExpired = errors.New("verification code expired")
	// ErrTooManyAttempts means the attempt cap for the challenge was hit.
	// The challenge is burned; the caller must request a new code.
	ErrTooManyAttempts = errors.New("too many verification attempts")
	// ErrProviderUnavailable wraps delivery failures from the upstream
	// SMS or identity provider.
	ErrProviderUnavailable = errors.New("verification provider unavailable")
	// ErrSessionNotFound covers unknown, expired, and invalidated sessions.
	ErrSessionNotFound = errors.New("session not found")
)

// Provider tags accepted in configuration.
const (
	ProviderTwilio  = "twilio"
	ProviderCognito = "cognito"
	ProviderLocal   = "local"
)
