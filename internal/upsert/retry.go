package upsert

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures how a write that affected no rows is retried.
// Such a write means the row changed between lookup and write; each retry
// repeats the lookup and preparation. The zero value fails immediately.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFraction float64 // 0.0 to 1.0
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     0,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		JitterFraction: 0.25,
	}
}

// backoff computes the delay for the given attempt with jitter.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	base := float64(p.InitialBackoff) * math.Pow(2, float64(attempt))
	if p.MaxBackoff > 0 && base > float64(p.MaxBackoff) {
		base = float64(p.MaxBackoff)
	}
	jitter := base * p.JitterFraction * (rand.Float64()*2 - 1) // +/- jitter
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// sleep waits for the given duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// attempt runs fn until it reports no conflict or the retries are used up.
// fn returns conflict=true when its write affected zero rows.
func (p RetryPolicy) attempt(ctx context.Context, fn func() (Result, bool, error)) (Result, error) {
	var (
		res      Result
		conflict bool
		err      error
	)
	for i := 0; i <= p.MaxRetries; i++ {
		res, conflict, err = fn()
		if err != nil || !conflict {
			return res, err
		}
		if i < p.MaxRetries {
			if err := sleep(ctx, p.backoff(i)); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}
