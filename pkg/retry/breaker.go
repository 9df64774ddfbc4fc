package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// ErrServiceUnavailable is returned when a call hits an open circuit
var ErrServiceUnavailable = errors.New("service unavailable: circuit open")

// BreakerOptions configures a circuit breaker
type BreakerOptions struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit. Zero means the circuit never opens.
	FailureThreshold int
	// RecoveryTimeout is how long an open circuit waits before moving to
	// half-open.
	RecoveryTimeout time.Duration
}

// Breaker is a per-dependency circuit breaker.
// States: closed -> open -> half-open -> closed.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a circuit breaker for a named dependency
func NewBreaker(name string, opts BreakerOptions) *Breaker {
	threshold := opts.FailureThreshold
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // one probe call in half-open
		Timeout:     opts.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if threshold <= 0 {
				return false
			}
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. An open circuit fails immediately
// with ErrServiceUnavailable without invoking fn.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrServiceUnavailable, b.cb.Name())
	}
	return err
}

// State reports the breaker state as a string (closed, half-open, open)
func (b *Breaker) State() string {
	return b.cb.State().String()
}
