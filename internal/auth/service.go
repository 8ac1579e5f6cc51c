package auth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/weathertowear/service/internal/observability"
	"github.com/weathertowear/service/internal/validation"
)

// Service ties the OTP provider and the session store into the login flow:
// send a code, verify it, mint a session, resume or invalidate it later.
type Service struct {
	provider     Provider
	providerName string
	sessions     *SessionStore
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates the auth Service. providerName labels metrics and logs.
func NewService(provider Provider, providerName string, sessions *SessionStore, logger *zap.Logger) *Service {
	return &Service{
		provider:     provider,
		providerName: providerName,
		sessions:     sessions,
		logger:       logger,
		now:          time.Now,
	}
}

// Login validates phone and sends a verification code to it. Returns the
// normalized phone number.
func (s *Service) Login(ctx context.Context, phone string) (string, error) {
	normalized, err := validation.ValidatePhone(phone)
	if err != nil {
		return "", err
	}
	if err := s.provider.SendChallenge(ctx, normalized); err != nil {
		observability.OTPChallengesSentTotal.WithLabelValues(s.providerName, "error").Inc()
		if s.logger != nil {
			s.logger.Warn("OTP send failed", zap.String("provider", s.providerName), zap.Error(err))
		}
		return "", fmt.Errorf("send challenge: %w", err)
	}
	observability.OTPChallengesSentTotal.WithLabelValues(s.providerName, "success").Inc()
	return normalized, nil
}

// Verify checks the code for phone and, on success, creates a session and
// returns its token.
func (s *Service) Verify(ctx context.Context, phone, code string) (string, error) {
	normalized, err := validation.ValidatePhone(phone)
	if err != nil {
		return "", err
	}
	if err := s.provider.VerifyChallenge(ctx, normalized, code); err != nil {
		observability.OTPVerificationsTotal.WithLabelValues(s.providerName, "failure").Inc()
		return "", err
	}
	observability.OTPVerificationsTotal.WithLabelValues(s.providerName, "success").Inc()

	token, err := s.sessions.Create(ctx, normalized, s.now())
	if err != nil {
		if s.logger != nil {
			s.logger.Error("session create failed", zap.Error(err))
		}
		return "", fmt.Errorf("create session: %w", err)
	}
	if s.logger != nil {
		s.logger.Info("user logged in", zap.String("provider", s.providerName))
	}
	return token, nil
}

// Resend sends a fresh code to phone.
func (s *Service) Resend(ctx context.Context, phone string) error {
	_, err := s.Login(ctx, phone)
	return err
}

// Resume returns the phone number that owns token.
func (s *Service) Resume(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrSessionNotFound
	}
	return s.sessions.Resume(ctx, token, s.now())
}

// Logout invalidates token.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.Invalidate(ctx, token)
}
