package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func TestCorrelationIDMiddleware_GeneratesID(t *testing.T) {
	var seenID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v, ok := r.Context().Value("correlation_id").(string); ok {
			seenID = v
		}
		w.WriteHeader(http.StatusOK)
	})

	handler := CorrelationIDMiddleware(zap.NewNop())(inner)
	req := httptest.NewRequest("GET", "/api/hourly-data", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if seenID == "" {
		t.Fatal("correlation_id missing from request context")
	}
	if _, err := uuid.Parse(seenID); err != nil {
		t.Errorf("correlation id %q is not a UUID: %v", seenID, err)
	}
	if got := w.Header().Get("X-Correlation-ID"); got != seenID {
		t.Errorf("response header = %q, want %q", got, seenID)
	}
}

func TestCorrelationIDMiddleware_PropagatesProvidedID(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := CorrelationIDMiddleware(zap.NewNop())(inner)
	req := httptest.NewRequest("GET", "/api/hourly-data", nil)
	req.Header.Set("X-Correlation-ID", "caller-supplied-id")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "caller-supplied-id" {
		t.Errorf("response header = %q, want caller-supplied-id", got)
	}
}

func TestCorrelationIDMiddleware_InjectsLogger(t *testing.T) {
	var gotLogger *zap.Logger
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLogger, _ = r.Context().Value("logger").(*zap.Logger)
		w.WriteHeader(http.StatusOK)
	})

	handler := CorrelationIDMiddleware(zap.NewNop())(inner)
	req := httptest.NewRequest("GET", "/health", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotLogger == nil {
		t.Fatal("logger missing from request context")
	}
}

func TestMetricsMiddleware_TracksInFlight(t *testing.T) {
	var duringCount int64
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		duringCount = InFlightCount()
		w.WriteHeader(http.StatusOK)
	})

	before := InFlightCount()
	handler := MetricsMiddleware(inner)
	req := httptest.NewRequest("GET", "/api/hourly-data", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if duringCount != before+1 {
		t.Errorf("in-flight during request = %d, want %d", duringCount, before+1)
	}
	if after := InFlightCount(); after != before {
		t.Errorf("in-flight after request = %d, want %d", after, before)
	}
}

func TestTimeoutMiddleware_ExpiresContext(t *testing.T) {
	var ctxErr error
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			ctxErr = r.Context().Err()
		case <-time.After(time.Second):
		}
		w.WriteHeader(http.StatusBadGateway)
	})

	handler := TimeoutMiddleware(10 * time.Millisecond)(inner)
	req := httptest.NewRequest("GET", "/api/hourly-data", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if ctxErr == nil {
		t.Fatal("request context never expired")
	}
}

func TestRateLimitMiddleware_AllowsWithinBudget(t *testing.T) {
	limiter := rate.NewLimiter(rate.Limit(100), 10)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := RateLimitMiddleware(limiter)(inner)
	req := httptest.NewRequest("GET", "/api/hourly-data", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRateLimitMiddleware_DeniesWhenExhausted(t *testing.T) {
	limiter := rate.NewLimiter(rate.Limit(0.001), 1)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := RateLimitMiddleware(limiter)(inner)

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest("GET", "/api/hourly-data", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest("GET", "/api/hourly-data", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(second.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != "RATE_LIMITED" {
		t.Errorf("error.code = %q, want RATE_LIMITED", resp.Error.Code)
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := RateLimitMiddleware(nil)(inner)
	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/hourly-data", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}
}

func TestGetRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/api/hourly-data", "/api/hourly-data"},
		{"/auth/otp/login", "/auth/otp/login"},
		{"/auth/session", "/auth/session"},
		{"/favicon.ico", "other"},
		{"/api/unknown", "other"},
	}
	for _, tc := range tests {
		req := httptest.NewRequest("GET", tc.path, nil)
		if got := getRoute(req); got != tc.want {
			t.Errorf("getRoute(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestMiddlewareChain_OnSubrouter(t *testing.T) {
	mockClient := &mockForecastClient{raw: tomorrowForecast(2)}
	h := newTestHandler(mockClient, nil)

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.Use(MetricsMiddleware)
	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(rate.NewLimiter(rate.Limit(100), 10)))
	api.Use(TimeoutMiddleware(5 * time.Second))
	api.HandleFunc("/hourly-data", h.GetHourlyData).Methods("GET")
	router.HandleFunc("/health", h.GetHealth).Methods("GET")

	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/hourly-data?zipcode=49503")
	if err != nil {
		t.Fatalf("GET /api/hourly-data: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Correlation-ID") == "" {
		t.Error("X-Correlation-ID header not set through chain")
	}

	health, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", health.StatusCode)
	}
}
