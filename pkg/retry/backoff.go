package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy is an exponential-backoff-with-jitter retry policy shared by the
// Fetcher and Uploader transport paths.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	JitterFrac  float64
}

// DefaultPolicy matches the job server's documented contract: base 2s,
// jitter +-25%, cap 30s, up to 3 retries (4 attempts in total).
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 4, Base: 2 * time.Second, Cap: 30 * time.Second, JitterFrac: 0.25}
}

// Do invokes fn, retrying on error up to MaxAttempts total attempts. It
// sleeps between attempts honoring ctx cancellation, and returns the last
// error if every attempt fails.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := p.backoff(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := fn(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func (p Policy) backoff(attempt int) time.Duration {
	d := p.Base << uint(attempt-1)
	if d > p.Cap || d <= 0 {
		d = p.Cap
	}
	jitter := float64(d) * p.JitterFrac
	delta := (rand.Float64()*2 - 1) * jitter
	result := time.Duration(float64(d) + delta)
	if result < 0 {
		result = 0
	}
	return result
}
