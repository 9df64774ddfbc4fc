package retry

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token-bucket limiter shared by all LLM callers.
// Acquire never fails under normal configuration; it only delays.
type RateLimiter struct {
	limiter *rate.Limiter
	zero    bool
}

// NewRateLimiter creates a limiter refilling at r tokens/second with the
// given burst capacity. A rate of zero produces a limiter that blocks
// indefinitely once the initial burst is spent; callers must cancel through
// the context.
func NewRateLimiter(r float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(r), burst),
		zero:    r == 0,
	}
}

// Acquire blocks until n tokens are available and returns the time spent
// waiting.
func (l *RateLimiter) Acquire(ctx context.Context, n int) (time.Duration, error) {
	start := time.Now()

	if l.zero {
		// A zero rate never refills. Drain the initial burst, then block
		// until the context is canceled.
		if l.limiter.AllowN(time.Now(), n) {
			return time.Since(start), nil
		}
		<-ctx.Done()
		return time.Since(start), ctx.Err()
	}

	if err := l.limiter.WaitN(ctx, n); err != nil {
		return time.Since(start), err
	}
	return time.Since(start), nil
}
