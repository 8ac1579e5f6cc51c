package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/weathertowear/service/internal/auth"
	"github.com/weathertowear/service/internal/client"
	"github.com/weathertowear/service/internal/lifecycle"
	"github.com/weathertowear/service/internal/service"
	"github.com/weathertowear/service/internal/validation"
)

const sessionCookieName = "session_token"

const (
	locationMinLen = 1
	locationMaxLen = 100
)

// HealthConfig holds the dependency probes for the health handler.
type HealthConfig struct {
	// CachePing, when set, checks cache reachability (memcached backend).
	CachePing func() error
	// DBPing, when set, checks database reachability (postgres backend,
	// session store).
	DBPing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	forecasts       *service.ForecastService
	authService     *auth.Service
	client          client.ForecastClient
	healthConfig    *HealthConfig
	defaultLocation string
	logger          *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. authService may be nil when OTP auth is
// not configured; the auth routes then answer 503. defaultLocation is served
// when a request carries no location parameter; empty means no default.
func NewHandler(
	forecasts *service.ForecastService,
	authService *auth.Service,
	c client.ForecastClient,
	healthConfig *HealthConfig,
	defaultLocation string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		forecasts:       forecasts,
		authService:     authService,
		client:          c,
		healthConfig:    healthConfig,
		defaultLocation: defaultLocation,
		logger:          logger,
	}
}

// GetHourlyData handles GET /api/hourly-data?zipcode={location}.
// The parameter keeps its historical name but accepts any location the
// upstream resolves: zipcode, city, "city,state". Requests with no location
// parameter fall back to the configured default location.
func (h *Handler) GetHourlyData(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("zipcode")
	if raw == "" {
		raw = r.URL.Query().Get("location")
	}
	if raw == "" {
		raw = h.defaultLocation
	}
	location, err := validation.ValidateLocation(raw, locationMinLen, locationMaxLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return
	}

	records, err := h.forecasts.GetHourly(r.Context(), location)
	if err != nil {
		writeForecastError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// writeForecastError maps service errors onto the API error contract:
// user-correctable input gets 400, everything upstream gets 502.
func writeForecastError(w http.ResponseWriter, r *http.Request, err error) {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("forecast request failed", zap.Error(err))
	}
	switch {
	case errors.Is(err, client.ErrInvalidLocation):
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", "location not recognized by weather provider")
	case errors.Is(err, client.ErrRateLimited):
		writeError(w, r, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "weather provider rate limit reached")
	default:
		writeError(w, r, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "unable to fetch weather data")
	}
}

// PostOTPLogin handles POST /auth/otp/login {phone_number}.
func (h *Handler) PostOTPLogin(w http.ResponseWriter, r *http.Request) {
	if h.authService == nil {
		writeError(w, r, http.StatusServiceUnavailable, "AUTH_NOT_CONFIGURED", "OTP authentication not configured")
		return
	}
	var body struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body must be JSON with phone_number")
		return
	}

	phone, err := h.authService.Login(r.Context(), body.PhoneNumber)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requires_verification": true,
		"phone_number":          phone,
	})
}

// PostOTPVerify handles POST /auth/otp/verify {phone_number, code}. On
// success the session token is returned in the body and set as an HttpOnly
// cookie.
func (h *Handler) PostOTPVerify(w http.ResponseWriter, r *http.Request) {
	if h.authService == nil {
		writeError(w, r, http.StatusServiceUnavailable, "AUTH_NOT_CONFIGURED", "OTP authentication not configured")
		return
	}
	var body struct {
		PhoneNumber string `json:"phone_number"`
		Code        string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body must be JSON with phone_number and code")
		return
	}

	token, err := h.authService.Verify(r.Context(), body.PhoneNumber, body.Code)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(auth.DefaultSessionTTL / time.Second),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"session_token": token,
	})
}

// PostOTPResend handles POST /auth/otp/resend {phone_number}.
func (h *Handler) PostOTPResend(w http.ResponseWriter, r *http.Request) {
	if h.authService == nil {
		writeError(w, r, http.StatusServiceUnavailable, "AUTH_NOT_CONFIGURED", "OTP authentication not configured")
		return
	}
	var body struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body must be JSON with phone_number")
		return
	}

	if err := h.authService.Resend(r.Context(), body.PhoneNumber); err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resent": true})
}

// GetSession handles GET /auth/session. The token comes from the session
// cookie or an Authorization: Bearer header.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	if h.authService == nil {
		writeError(w, r, http.StatusServiceUnavailable, "AUTH_NOT_CONFIGURED", "OTP authentication not configured")
		return
	}
	phone, err := h.authService.Resume(r.Context(), sessionToken(r))
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"phone_number": phone})
}

// PostOTPLogout handles POST /auth/otp/logout. Clears the session cookie
// regardless of whether the token was still valid.
func (h *Handler) PostOTPLogout(w http.ResponseWriter, r *http.Request) {
	if h.authService == nil {
		writeError(w, r, http.StatusServiceUnavailable, "AUTH_NOT_CONFIGURED", "OTP authentication not configured")
		return
	}
	if err := h.authService.Logout(r.Context(), sessionToken(r)); err != nil {
		writeAuthError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]any{"logged_out": true})
}

func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// writeAuthError maps auth errors onto HTTP statuses.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, validation.ErrPhoneEmpty), errors.Is(err, validation.ErrPhoneInvalid):
		writeError(w, r, http.StatusBadRequest, "INVALID_PHONE", err.Error())
	case errors.Is(err, auth.ErrInvalidCode), errors.Is(err, auth.ErrChallengeExpired), errors.Is(err, auth.ErrChallengeNotFound):
		writeError(w, r, http.StatusBadRequest, "VERIFICATION_FAILED", err.Error())
	case errors.Is(err, auth.ErrTooManyAttempts):
		writeError(w, r, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", err.Error())
	case errors.Is(err, auth.ErrSessionNotFound):
		writeError(w, r, http.StatusUnauthorized, "SESSION_INVALID", "session missing or expired")
	case errors.Is(err, auth.ErrProviderUnavailable):
		writeError(w, r, http.StatusBadGateway, "PROVIDER_UNAVAILABLE", "verification provider unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error")
		if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
			logger.Error("auth request failed", zap.Error(err))
		}
	}
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weather-to-wear",
		"version":   "dev",
		"checks":    result.checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus evaluates dependencies in priority order:
// shutting-down > API key invalid > storage unreachable > healthy. Storage
// failures report degraded but keep serving; the forecast path falls back to
// fetch-without-cache.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	checks := make(map[string]string)

	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}

	if err := h.client.ValidateAPIKey(ctx); err != nil {
		checks["weatherApi"] = "unhealthy"
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid", checks}
	}
	checks["weatherApi"] = "healthy"

	status := "healthy"
	reason := ""
	if h.healthConfig != nil {
		if h.healthConfig.DBPing != nil {
			if err := h.healthConfig.DBPing(ctx); err != nil {
				checks["database"] = "unhealthy"
				status, reason = "degraded", "database_unreachable"
			} else {
				checks["database"] = "healthy"
			}
		}
		if h.healthConfig.CachePing != nil {
			if err := h.healthConfig.CachePing(); err != nil {
				checks["cache"] = "unhealthy"
				if status == "healthy" {
					status, reason = "degraded", "cache_unreachable"
				}
			} else {
				checks["cache"] = "healthy"
			}
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return healthResult{status, code, reason, checks}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}
