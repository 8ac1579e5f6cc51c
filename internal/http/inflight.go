package http

import (
	"context"
	"sync/atomic"
	"time"
)

// InFlightTracker counts requests currently being served. Shutdown drains on
// it before closing the pgx pool and memcached client so no handler loses its
// storage mid-request.
type InFlightTracker struct {
	active atomic.Int64
}

// Increment records a request entering the handler chain.
func (t *InFlightTracker) Increment() {
	t.active.Add(1)
}

// Decrement records a request leaving the handler chain.
func (t *InFlightTracker) Decrement() {
	t.active.Add(-1)
}

// Count returns the number of requests currently in flight.
func (t *InFlightTracker) Count() int64 {
	return t.active.Load()
}

// WaitForZero blocks until the count reaches zero, polling every pollEvery,
// or until ctx is cancelled.
func (t *InFlightTracker) WaitForZero(ctx context.Context, pollEvery time.Duration) error {
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for t.Count() != 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// globalInFlightTracker is the process-wide counter fed by MetricsMiddleware.
var globalInFlightTracker = &InFlightTracker{}

// InFlightCount returns the current number of in-flight requests.
func InFlightCount() int64 {
	return globalInFlightTracker.Count()
}

// WaitForInFlight blocks until in-flight requests reach zero or ctx is done.
func WaitForInFlight(ctx context.Context, pollEvery time.Duration) error {
	return globalInFlightTracker.WaitForZero(ctx, pollEvery)
}
