package auth

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LocalProvider issues codes from the in-process challenge store and logs
// them instead of sending SMS. Development and test environments only.
type LocalProvider struct {
	challenges *challengeStore
	logger     *zap.Logger
}

// NewLocalProvider creates a LocalProvider with the given code TTL.
func NewLocalProvider(ttl time.Duration, logger *zap.Logger) *LocalProvider {
	return &LocalProvider{
		challenges: newChallengeStore(ttl, defaultMaxChallenges, defaultMaxAttempts),
		logger:     logger,
	}
}

func (p *LocalProvider) SendChallenge(ctx context.Context, phone string) error {
	code, err := p.challenges.Issue(phone)
	if err != nil {
		return err
	}
	if p.logger != nil {
		p.logger.Info("local OTP issued", zap.String("phone", phone), zap.String("code", code))
	}
	return nil
}

func (p *LocalProvider) VerifyChallenge(ctx context.Context, phone, code string) error {
	return p.challenges.Check(phone, code)
}
