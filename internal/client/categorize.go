package client

import (
	"context"
	"errors"
	"strings"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

const (
	ErrorCategoryTimeout         ErrorCategory = "timeout"
	ErrorCategoryNetwork         ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey   ErrorCategory = "invalid_api_key"
	ErrorCategoryInvalidLocation ErrorCategory = "invalid_location"
	ErrorCategoryRateLimited     ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx     ErrorCategory = "upstream_5xx"
	ErrorCategoryMalformed       ErrorCategory = "malformed"
	ErrorCategoryCache           ErrorCategory = "cache"
	ErrorCategoryUnknown         ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, ErrInvalidAPIKey) {
		return ErrorCategoryInvalidAPIKey
	}
	if errors.Is(err, ErrInvalidLocation) {
		return ErrorCategoryInvalidLocation
	}
	if errors.Is(err, ErrRateLimited) {
		return ErrorCategoryRateLimited
	}
	if errors.Is(err, ErrMalformedResponse) {
		return ErrorCategoryMalformed
	}
	if errors.Is(err, ErrUpstreamUnreachable) {
		return ErrorCategoryNetwork
	}
	if errors.Is(err, ErrUpstreamFailure) {
		return ErrorCategoryUpstream5xx
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded") {
		return ErrorCategoryTimeout
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return ErrorCategoryNetwork
	}
	if strings.Contains(errStr, "cache") {
		return ErrorCategoryCache
	}
	return ErrorCategoryUnknown
}
