package fetcher

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Throttle admits at most concurrency requests at once and spaces request
// starts by at least delay. Requests beyond the cap queue until a slot frees.
type Throttle struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// NewThrottle builds a Throttle; concurrency below 1 is treated as 1.
func NewThrottle(concurrency int, delay time.Duration) *Throttle {
	if concurrency < 1 {
		concurrency = 1
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Throttle{
		sem:     semaphore.NewWeighted(int64(concurrency)),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Acquire blocks until a slot is free and the next start is permitted.
// The returned func releases the slot.
func (t *Throttle) Acquire(ctx context.Context) (func(), error) {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := t.limiter.Wait(ctx); err != nil {
		t.sem.Release(1)
		return nil, err
	}
	return func() { t.sem.Release(1) }, nil
}
