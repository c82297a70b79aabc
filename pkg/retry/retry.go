// Package retry provides a small exponential-backoff retry policy used for
// outbound marketplace calls.
package retry

import (
	"context"
	"math"
	"time"
)

// Policy defines bounded retry behavior with exponential backoff.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// MarketplacePolicy returns the delivery policy for marketplace submissions:
// 3 attempts total with 1s initial delay, doubling, capped at 10s.
func MarketplacePolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// Backoff returns the wait duration after the given 1-based attempt:
// min(initial * multiplier^(attempt-1), max).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
	if d > p.MaxDelay || d < 0 {
		d = p.MaxDelay
	}
	return d
}

// RetryableError is implemented by errors that explicitly declare their
// retryability. Errors that do not implement it are treated as retryable.
type RetryableError interface {
	error
	IsRetryable() bool
}

// isRetryable reports whether the loop should keep going after err.
func isRetryable(err error) bool {
	if r, ok := err.(RetryableError); ok {
		return r.IsRetryable()
	}
	return true
}

// DoWithResult executes fn up to p.MaxAttempts times, waiting
// p.Backoff(attempt) between attempts. It stops early when fn succeeds, when
// the error declares itself non-retryable, or when ctx is cancelled during a
// wait. The last result and error are returned on exhaustion.
func DoWithResult[T any](ctx context.Context, p Policy, fn func(attempt int) (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		r, err := fn(attempt)
		if err == nil {
			return r, nil
		}

		result = r
		lastErr = err

		if !isRetryable(err) {
			return result, err
		}

		if attempt < p.MaxAttempts {
			select {
			case <-time.After(p.Backoff(attempt)):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}

	return result, lastErr
}
