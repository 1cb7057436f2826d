package fetcher

import (
	"context"
	"time"
)

// RetryPolicy bounds retries of transient failures with exponential backoff.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryPolicy returns three attempts starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		Multiplier:     2,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.InitialBackoff < 0 {
		p.InitialBackoff = 0
	}
	return p
}

// Backoff returns the wait before the given retry (1 = first retry).
func (p RetryPolicy) Backoff(retry int) time.Duration {
	p = p.normalized()
	if retry <= 0 || p.InitialBackoff == 0 {
		return 0
	}
	d := float64(p.InitialBackoff)
	for i := 1; i < retry; i++ {
		d *= p.Multiplier
		if p.MaxBackoff > 0 && time.Duration(d) >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && time.Duration(d) > p.MaxBackoff {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// Do runs attempt until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. The returned error carries the attempt count.
func (p RetryPolicy) Do(ctx context.Context, attempt func(ctx context.Context) ([]byte, *Error)) ([]byte, error) {
	p = p.normalized()

	var last *Error
	n := 0
	for n < p.MaxAttempts {
		if n > 0 {
			if err := sleep(ctx, p.Backoff(n)); err != nil {
				break
			}
		}
		n++

		body, ferr := attempt(ctx)
		if ferr == nil {
			return body, nil
		}
		last = ferr
		if !ferr.Retryable() {
			break
		}
	}
	last.Attempts = n
	return nil, last
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
