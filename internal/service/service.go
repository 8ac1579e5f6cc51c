package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/weathertowear/service/internal/cache"
	"github.com/weathertowear/service/internal/client"
	"github.com/weathertowear/service/internal/forecast"
	"github.com/weathertowear/service/internal/models"
	"github.com/weathertowear/service/internal/observability"
)

// DefaultFreshnessWindow matches the extractor's hourly granularity: a cache
// hit never serves data older than one forecast tick.
const DefaultFreshnessWindow = time.Hour

// ForecastService orchestrates hourly forecast retrieval: cache read, then
// upstream fetch plus window extraction on a miss, then cache write.
type ForecastService struct {
	client    client.ForecastClient
	cache     cache.Cache
	freshness time.Duration
	now       func() time.Time

	stampedeTracker *stampedeTracker
	coalescer       *requestCoalescer // nil when coalescing disabled
}

// NewForecastService creates a ForecastService. freshness <= 0 falls back to
// the one-hour default. coalesceTimeout 0 disables request coalescing.
func NewForecastService(c client.ForecastClient, store cache.Cache, freshness time.Duration, coalesceEnabled bool, coalesceTimeout time.Duration) *ForecastService {
	if freshness <= 0 {
		freshness = DefaultFreshnessWindow
	}
	var coalescer *requestCoalescer
	if coalesceEnabled && coalesceTimeout > 0 {
		coalescer = newRequestCoalescer(coalesceTimeout)
	}
	return &ForecastService{
		client:          c,
		cache:           store,
		freshness:       freshness,
		now:             time.Now,
		stampedeTracker: newStampedeTracker(),
		coalescer:       coalescer,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// GetHourly returns the rolling 24-hour window for location. A fresh cache
// entry short-circuits the upstream call entirely. Upstream and extraction
// errors propagate unchanged and nothing is cached for them. Cache failures
// on either side degrade the request to fetch-without-cache rather than
// failing it.
func (s *ForecastService) GetHourly(ctx context.Context, location string) ([]models.HourlyRecord, error) {
	key := normalizeLocation(location)
	if key == "" {
		return nil, fmt.Errorf("%w: empty location", client.ErrInvalidLocation)
	}
	start := time.Now()
	now := s.now()
	logger := loggerFromContext(ctx)
	observability.RecordForecastQuery(key)

	getStart := time.Now()
	cached, ok, err := s.cache.Get(ctx, key, now, s.freshness)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		// Degrade to always-fetch: a broken cache must not take the
		// endpoint down with it.
		observability.CacheErrorsTotal.WithLabelValues("get", string(client.CategorizeError(err))).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
		if logger != nil {
			logger.Warn("cache get failed, fetching upstream", zap.String("location", key), zap.Error(err))
		}
	} else if ok {
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		observability.CacheHitsTotal.WithLabelValues("hourly").Inc()
		if logger != nil {
			logger.Debug("cache hit", zap.String("location", key))
			logger.Debug("forecast served", zap.String("location", key), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		}
		return cached, nil
	}

	concurrentMisses := s.stampedeTracker.RecordMiss(key)
	defer s.stampedeTracker.RecordHit(key)
	locLabel := observability.MetricLocationLabel(key)
	if concurrentMisses > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(locLabel).Inc()
		observability.CacheStampedeConcurrency.WithLabelValues(locLabel).Observe(float64(concurrentMisses))
	}

	if logger != nil {
		logger.Debug("cache miss, fetching upstream", zap.String("location", key))
	}

	fetchAndExtract := func() ([]models.HourlyRecord, error) {
		raw, err := s.client.GetHourlyForecast(ctx, key)
		if err != nil {
			return nil, err
		}
		return forecast.Extract(raw, raw.TZOffset, now), nil
	}

	var records []models.HourlyRecord
	var upstreamErr error
	if s.coalescer != nil {
		coalesceStart := time.Now()
		records, upstreamErr = s.coalescer.GetOrDo(ctx, key, fetchAndExtract)
		coalesceWait := time.Since(coalesceStart)
		if upstreamErr == nil {
			// Wait time noticeably above zero means we rode another
			// caller's fetch (approximate).
			if coalesceWait > 10*time.Millisecond {
				observability.RequestCoalescingHitsTotal.WithLabelValues(locLabel).Inc()
			}
			observability.RequestCoalescingWaitSeconds.Observe(coalesceWait.Seconds())
		}
	} else {
		records, upstreamErr = fetchAndExtract()
	}
	if upstreamErr != nil {
		return nil, fmt.Errorf("fetch forecast for %s: %w", key, upstreamErr)
	}

	setStart := time.Now()
	if putErr := s.cache.Put(ctx, key, records, now); putErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("put", string(client.CategorizeError(putErr))).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("put", "error").Observe(time.Since(setStart).Seconds())
		if logger != nil {
			logger.Warn("cache put failed", zap.String("location", key), zap.Error(putErr))
		}
	} else {
		observability.CacheOperationDurationSeconds.WithLabelValues("put", "success").Observe(time.Since(setStart).Seconds())
	}
	if logger != nil {
		logger.Debug("forecast served", zap.String("location", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	}
	return records, nil
}

// normalizeLocation normalizes location strings by trimming whitespace and
// lowercasing. Ensures consistent cache keys regardless of input format.
func normalizeLocation(location string) string {
	return strings.ToLower(strings.TrimSpace(location))
}
