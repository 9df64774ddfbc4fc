// Package retry wraps external calls with backoff policies, retryable-error
// classification, a per-dependency circuit breaker, and a token-bucket rate
// limiter.
package retry

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Options configures a Retryer
type Options struct {
	MaxAttempts int
	Backoff     Backoff
	// RetryablePatterns lists error-message substrings considered retryable.
	// An empty list means every error is retryable.
	RetryablePatterns []string
}

// DefaultOptions returns three attempts of exponential backoff with jitter
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		Backoff:     DefaultBackoff(),
	}
}

// Retryer retries an operation according to its options
type Retryer struct {
	opts Options
}

// NewRetryer creates a new retryer
func NewRetryer(opts Options) *Retryer {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	return &Retryer{opts: opts}
}

// Do runs fn up to MaxAttempts times. Non-retryable errors fail fast; after
// the last attempt the original error is surfaced. Context cancellation is
// observed at every retry boundary.
func (r *Retryer) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !r.isRetryable(lastErr) {
			return lastErr
		}

		if attempt == r.opts.MaxAttempts-1 {
			break
		}

		delay := r.opts.Backoff.Delay(attempt)
		log.Printf("[DEBUG] %s failed (attempt %d/%d), retrying in %s: %v",
			name, attempt+1, r.opts.MaxAttempts, delay, lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, r.opts.MaxAttempts, lastErr)
}

// isRetryable matches the error text against the configured patterns
func (r *Retryer) isRetryable(err error) bool {
	if len(r.opts.RetryablePatterns) == 0 {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range r.opts.RetryablePatterns {
		if strings.Contains(msg, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
