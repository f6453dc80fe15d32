// Package retry runs an operation with exponential backoff until it
// succeeds, fails terminally, or the context ends. The chain validator uses
// it to poll for transaction receipts; clients use it for transient RPC
// failures.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Config controls the retry schedule.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the wait after the first failure.
	InitialDelay time.Duration

	// MaxDelay caps the backoff.
	MaxDelay time.Duration

	// Multiplier grows the delay after each failure.
	Multiplier float64
}

// DefaultConfig retries three times over roughly half a second.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2.0,
}

// IsRetryable decides whether a failure is transient. Returning false stops
// the loop and surfaces the error as-is.
type IsRetryable func(error) bool

// WithRetry runs fn until it succeeds, isRetryable rejects the error, the
// attempts run out, or ctx ends. The last error is wrapped when attempts
// run out, so errors.Is still sees the cause.
func WithRetry[T any](ctx context.Context, config Config, isRetryable IsRetryable, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("context cancelled: %w", err)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}

		if attempt < config.MaxAttempts-1 {
			select {
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * config.Multiplier)
				if delay > config.MaxDelay {
					delay = config.MaxDelay
				}
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}
