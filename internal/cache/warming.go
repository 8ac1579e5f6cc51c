package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/weathertowear/service/internal/models"
	"github.com/weathertowear/service/internal/observability"
)

// warmConcurrency bounds simultaneous upstream fetches during a warm run so a
// long tracked-location list cannot spike the provider.
const warmConcurrency = 4

// ForecastFetcher is implemented by the service layer to produce the hourly
// window for a location. Used by Warmer to avoid a circular dependency on the
// service package.
type ForecastFetcher interface {
	GetHourly(ctx context.Context, location string) ([]models.HourlyRecord, error)
}

// Warmer prefetches forecasts for a list of locations so the first real
// request after startup is served from cache.
type Warmer struct {
	fetcher ForecastFetcher
	logger  *zap.Logger
}

// NewWarmer creates a Warmer that uses the given fetcher and logger.
func NewWarmer(fetcher ForecastFetcher, logger *zap.Logger) *Warmer {
	return &Warmer{fetcher: fetcher, logger: logger}
}

// Warm fetches the hourly window for each location, populating the cache via
// the fetcher. Fetches run concurrently with bounded parallelism; all
// locations are attempted even when some fail, and failures come back
// aggregated.
func (w *Warmer) Warm(ctx context.Context, locations []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming forecast cache", zap.Int("locations", len(locations)))
	}

	g := &errgroup.Group{}
	g.SetLimit(warmConcurrency)
	errCh := make(chan error, len(locations))
	for _, loc := range locations {
		loc := loc
		g.Go(func() error {
			if _, err := w.fetcher.GetHourly(ctx, loc); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", loc, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("forecast cache warming complete",
			zap.Int("locations", len(locations)),
			zap.Int("errors", len(errs)),
			zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %v", errs)
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval
// until ctx is done. Warm failures are logged, not fatal.
func (w *Warmer) WarmPeriodic(ctx context.Context, locations []string, interval time.Duration) error {
	if err := w.Warm(ctx, locations); err != nil && w.logger != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, locations); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
