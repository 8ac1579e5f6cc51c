package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Forecast API call rate. Watch for: error vs success ratio.
	ForecastAPICallsTotal *prometheus.CounterVec

	// External API latency per request. Watch for: p95 > 2s (upstream degradation), p99 > 5s (timeout risk).
	ForecastAPIDuration *prometheus.HistogramVec

	// Cache hits. Hit rate = hits/(hits+forecastApiCallsTotal).
	CacheHitsTotal *prometheus.CounterVec

	// Cache operation failures by op and category. Watch for: storage outages.
	CacheErrorsTotal *prometheus.CounterVec

	// Cache op latency by op and outcome.
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Concurrent misses for the same key. Watch for: stampedes on hot locations.
	CacheStampedeDetectedTotal *prometheus.CounterVec
	CacheStampedeConcurrency   *prometheus.HistogramVec

	// Coalesced upstream fetches (waiters served by another caller's fetch).
	RequestCoalescingHitsTotal  *prometheus.CounterVec
	RequestCoalescingWaitSeconds prometheus.Histogram

	// Total forecast lookups. Watch for: traffic volume, rate() for QPS.
	ForecastQueriesTotal prometheus.Counter

	// Per-location query count (allow-list; others go to "other"). Watch for: top locations.
	ForecastQueriesByLocationTotal *prometheus.CounterVec

	// OTP challenge sends by provider and outcome.
	OTPChallengesSentTotal *prometheus.CounterVec

	// OTP verification attempts by provider and outcome.
	OTPVerificationsTotal *prometheus.CounterVec

	// Cache warming runs and failures. Watch for: persistent warm errors (upstream or storage trouble).
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// trackedLocations is built from config; used to resolve location for metrics.
	trackedLocationsMu sync.RWMutex
	trackedLocations   map[string]struct{}
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	ForecastAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastApiCallsTotal",
			Help: "Total number of weather timeline API calls",
		},
		[]string{"status"},
	)
	ForecastAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forecastApiDurationSeconds",
			Help:    "Weather timeline API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of forecast cache hits",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache operation failures by operation and error category",
		},
		[]string{"operation", "category"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache operation latency in seconds by operation and outcome",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "outcome"},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Cache misses that overlapped another miss for the same location",
		},
		[]string{"location"},
	)
	CacheStampedeConcurrency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheStampedeConcurrency",
			Help:    "Concurrent miss count observed per stampede",
			Buckets: []float64{2, 3, 5, 10, 25, 50},
		},
		[]string{"location"},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Requests served by another caller's in-flight upstream fetch",
		},
		[]string{"location"},
	)
	RequestCoalescingWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "requestCoalescingWaitSeconds",
			Help:    "Time spent waiting on a coalesced upstream fetch",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
	ForecastQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forecastQueriesTotal",
			Help: "Total number of hourly forecast lookups",
		},
	)
	ForecastQueriesByLocationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastQueriesByLocationTotal",
			Help: "Forecast queries by location (allow-list; others use location=other)",
		},
		[]string{"location"},
	)
	OTPChallengesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otpChallengesSentTotal",
			Help: "OTP challenges sent by provider and outcome",
		},
		[]string{"provider", "status"},
	)
	OTPVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otpVerificationsTotal",
			Help: "OTP verification attempts by provider and outcome",
		},
		[]string{"provider", "status"},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failed location",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming run duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ForecastAPICallsTotal, ForecastAPIDuration,
		CacheHitsTotal, CacheErrorsTotal, CacheOperationDurationSeconds,
		CacheStampedeDetectedTotal, CacheStampedeConcurrency,
		RequestCoalescingHitsTotal, RequestCoalescingWaitSeconds,
		ForecastQueriesTotal, ForecastQueriesByLocationTotal,
		OTPChallengesSentTotal, OTPVerificationsTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		RateLimitDeniedTotal,
	)
}

// SetTrackedLocations sets the allow-list for location metrics. Non-tracked locations increment "other".
func SetTrackedLocations(locations []string) {
	trackedLocationsMu.Lock()
	defer trackedLocationsMu.Unlock()
	trackedLocations = make(map[string]struct{}, len(locations))
	for _, loc := range locations {
		trackedLocations[normalizeLocationForMetrics(loc)] = struct{}{}
	}
}

// MetricLocationLabel resolves a location to a bounded metric label: the
// location itself when tracked, otherwise "other".
func MetricLocationLabel(location string) string {
	loc := normalizeLocationForMetrics(location)
	trackedLocationsMu.RLock()
	_, ok := trackedLocations[loc] // nil map read is safe in Go
	trackedLocationsMu.RUnlock()
	if ok {
		return loc
	}
	return "other"
}

// RecordForecastQuery records a forecast lookup for the given location.
func RecordForecastQuery(location string) {
	ForecastQueriesTotal.Inc()
	ForecastQueriesByLocationTotal.WithLabelValues(MetricLocationLabel(location)).Inc()
}

func normalizeLocationForMetrics(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return s
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
