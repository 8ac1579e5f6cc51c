package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/weathertowear/service/internal/models"
	"github.com/weathertowear/service/internal/observability"
)

// ForecastClient fetches raw forecast documents from the weather provider.
type ForecastClient interface {
	GetHourlyForecast(ctx context.Context, location string) (models.RawForecast, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	// ErrInvalidAPIKey covers startup validation failures and upstream 401s.
	ErrInvalidAPIKey = errors.New("invalid API key")
	// ErrInvalidLocation is the user-correctable classification for upstream
	// 4xx responses (bad zipcode or city name).
	ErrInvalidLocation = errors.New("invalid location")
	// ErrRateLimited is returned for upstream 429 responses.
	ErrRateLimited = errors.New("rate limited")
	// ErrUpstreamFailure is the transient classification for 5xx and other
	// unexpected statuses.
	ErrUpstreamFailure = errors.New("upstream failure")
	// ErrUpstreamUnreachable is the transport-level failure classification.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	// ErrMalformedResponse means the body could not be parsed as JSON at all.
	// A parseable document missing days or hours is not malformed; it simply
	// contributes no entries.
	ErrMalformedResponse = errors.New("malformed response")
)

// TimelineClient talks to a Visual Crossing style timeline API: one GET per
// fetch, location in the path, days/hours/alerts/current requested. Each call
// is a single attempt; classification of the failure is the caller's signal,
// not a retry trigger.
type TimelineClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewTimelineClient creates a TimelineClient.
func NewTimelineClient(apiKey, baseURL string, timeout time.Duration) (*TimelineClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	return &TimelineClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// GetHourlyForecast fetches the raw forecast document for location.
func (c *TimelineClient) GetHourlyForecast(ctx context.Context, location string) (models.RawForecast, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, location)
	if err != nil {
		observability.ForecastAPICallsTotal.WithLabelValues("error").Inc()
		return models.RawForecast{}, fmt.Errorf("build request: %w", err)
	}

	corrID := extractCorrelationID(ctx)
	if corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.ForecastAPICallsTotal.WithLabelValues("error").Inc()
		observability.ForecastAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.RawForecast{}, fmt.Errorf("%w: request timeout: %v", ErrUpstreamUnreachable, err)
		}
		return models.RawForecast{}, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.ForecastAPICallsTotal.WithLabelValues(status).Inc()
	observability.ForecastAPIDuration.WithLabelValues(status).Observe(duration)

	if err := classifyStatus(resp.StatusCode); err != nil {
		return models.RawForecast{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.RawForecast{}, fmt.Errorf("read response body: %w", err)
	}

	var raw models.RawForecast
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.RawForecast{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return raw, nil
}

// buildRequest assembles the timeline GET for location.
func (c *TimelineClient) buildRequest(ctx context.Context, location string) (*http.Request, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	base = base.JoinPath(location)

	params := url.Values{}
	params.Set("unitGroup", "us")
	params.Set("include", "days,hours,alerts,current")
	params.Set("key", c.apiKey)
	params.Set("contentType", "json")
	base.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// classifyStatus maps an HTTP status to a sentinel error, or nil for 2xx.
func classifyStatus(statusCode int) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: HTTP 401", ErrInvalidAPIKey)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP 429", ErrRateLimited)
	case statusCode >= 400 && statusCode < 500:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidLocation, statusCode)
	default:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, statusCode)
	}
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey issues a cheap request to confirm the key is accepted.
// Used by the health handler.
func (c *TimelineClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, "London")
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}
	return nil
}
