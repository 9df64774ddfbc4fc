package retry

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy selects how retry delays grow between attempts
type BackoffPolicy string

const (
	BackoffConstant    BackoffPolicy = "constant"
	BackoffLinear      BackoffPolicy = "linear"
	BackoffExponential BackoffPolicy = "exponential"
	BackoffFibonacci   BackoffPolicy = "fibonacci"
)

// Backoff computes per-attempt delays for a policy
type Backoff struct {
	Policy   BackoffPolicy
	Base     time.Duration
	MaxDelay time.Duration
	Jitter   bool
}

// DefaultBackoff returns exponential backoff with jitter, capped at one minute
func DefaultBackoff() Backoff {
	return Backoff{
		Policy:   BackoffExponential,
		Base:     1 * time.Second,
		MaxDelay: 60 * time.Second,
		Jitter:   true,
	}
}

// Delay returns the delay before the given attempt (0-based)
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	var d time.Duration
	switch b.Policy {
	case BackoffConstant:
		d = b.Base
	case BackoffLinear:
		d = b.Base * time.Duration(attempt+1)
	case BackoffFibonacci:
		d = b.Base * time.Duration(fibonacci(attempt+1))
	default: // exponential
		factor := math.Pow(2, float64(attempt))
		if factor > float64(math.MaxInt64)/float64(b.Base) {
			d = b.MaxDelay
		} else {
			d = time.Duration(float64(b.Base) * factor)
		}
	}

	if b.MaxDelay > 0 && d > b.MaxDelay {
		d = b.MaxDelay
	}

	if b.Jitter {
		// Multiplicative jitter in [0.5, 1.5)
		d = time.Duration(float64(d) * (0.5 + rand.Float64()))
		if b.MaxDelay > 0 && d > b.MaxDelay {
			d = b.MaxDelay
		}
	}

	return d
}

// fibonacci returns the nth Fibonacci number (1, 1, 2, 3, 5, ...)
func fibonacci(n int) int64 {
	a, b := int64(1), int64(1)
	for i := 2; i <= n; i++ {
		a, b = b, a+b
		if b < 0 { // overflow
			return math.MaxInt64
		}
	}
	return a
}
