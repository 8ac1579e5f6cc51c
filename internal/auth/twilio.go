package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	twilioVerifyBaseURL = "https://verify.twilio.com/v2"
	twilioAPIBaseURL    = "https://api.twilio.com/2010-04-01"
)

// TwilioSettings configures the Twilio provider. With VerifyServiceSID set,
// codes are generated and checked by the Twilio Verify service; without it,
// codes come from the local challenge store and go out as plain SMS through
// the Messages API, which then requires FromNumber.
type TwilioSettings struct {
	AccountSID       string
	AuthToken        string
	FromNumber       string
	VerifyServiceSID string
	CodeTTL          time.Duration
	Timeout          time.Duration

	// Endpoint overrides for tests. Empty means the real Twilio endpoints.
	VerifyBaseURL string
	APIBaseURL    string
}

// TwilioProvider sends one-time codes over SMS via Twilio.
type TwilioProvider struct {
	settings   TwilioSettings
	client     *http.Client
	challenges *challengeStore // Messages mode only
}

// NewTwilioProvider creates a TwilioProvider.
func NewTwilioProvider(settings TwilioSettings) (*TwilioProvider, error) {
	if settings.AccountSID == "" || settings.AuthToken == "" {
		return nil, fmt.Errorf("twilio account SID and auth token are required")
	}
	if settings.VerifyServiceSID == "" && settings.FromNumber == "" {
		return nil, fmt.Errorf("twilio from number is required without a Verify service SID")
	}
	if settings.VerifyBaseURL == "" {
		settings.VerifyBaseURL = twilioVerifyBaseURL
	}
	if settings.APIBaseURL == "" {
		settings.APIBaseURL = twilioAPIBaseURL
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}

	p := &TwilioProvider{
		settings: settings,
		client:   &http.Client{Timeout: settings.Timeout},
	}
	if settings.VerifyServiceSID == "" {
		p.challenges = newChallengeStore(settings.CodeTTL, defaultMaxChallenges, defaultMaxAttempts)
	}
	return p, nil
}

// SendChallenge delivers a verification code to phone.
func (p *TwilioProvider) SendChallenge(ctx context.Context, phone string) error {
	if p.settings.VerifyServiceSID != "" {
		return p.sendVerify(ctx, phone)
	}
	return p.sendSMS(ctx, phone)
}

// VerifyChallenge checks code for phone.
func (p *TwilioProvider) VerifyChallenge(ctx context.Context, phone, code string) error {
	if p.settings.VerifyServiceSID != "" {
		return p.checkVerify(ctx, phone, code)
	}
	return p.challenges.Check(phone, code)
}

func (p *TwilioProvider) sendVerify(ctx context.Context, phone string) error {
	endpoint := fmt.Sprintf("%s/Services/%s/Verifications", p.settings.VerifyBaseURL, p.settings.VerifyServiceSID)
	form := url.Values{}
	form.Set("To", phone)
	form.Set("Channel", "sms")

	_, err := p.post(ctx, endpoint, form)
	return err
}

func (p *TwilioProvider) checkVerify(ctx context.Context, phone, code string) error {
	endpoint := fmt.Sprintf("%s/Services/%s/VerificationChecks", p.settings.VerifyBaseURL, p.settings.VerifyServiceSID)
	form := url.Values{}
	form.Set("To", phone)
	form.Set("Code", code)

	body, err := p.post(ctx, endpoint, form)
	if err != nil {
		// Twilio reports a consumed or expired verification as 404.
		if twilioStatusOf(err) == http.StatusNotFound {
			return ErrChallengeNotFound
		}
		return err
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("%w: decode verification check: %v", ErrProviderUnavailable, err)
	}
	if result.Status != "approved" {
		return ErrInvalidCode
	}
	return nil
}

func (p *TwilioProvider) sendSMS(ctx context.Context, phone string) error {
	code, err := p.challenges.Issue(phone)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", p.settings.APIBaseURL, p.settings.AccountSID)
	form := url.Values{}
	form.Set("To", phone)
	form.Set("From", p.settings.FromNumber)
	form.Set("Body", fmt.Sprintf("Your verification code is: %s", code))

	_, err = p.post(ctx, endpoint, form)
	return err
}

// twilioError carries the HTTP status and Twilio error payload of a failed call.
type twilioError struct {
	status  int
	code    int
	message string
}

func (e *twilioError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("twilio: %s (code %d)", e.message, e.code)
	}
	return fmt.Sprintf("twilio: HTTP %d", e.status)
}

func (e *twilioError) Unwrap() error {
	if e.status >= 500 {
		return ErrProviderUnavailable
	}
	return nil
}

func twilioStatusOf(err error) int {
	var te *twilioError
	if errors.As(err, &te) {
		return te.status
	}
	return 0
}

func (p *TwilioProvider) post(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(p.settings.AccountSID, p.settings.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		te := &twilioError{status: resp.StatusCode}
		var payload struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &payload) == nil {
			te.code = payload.Code
			te.message = payload.Message
		}
		return nil, te
	}
	return body, nil
}
