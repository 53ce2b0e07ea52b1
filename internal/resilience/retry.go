package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/ZanzyTHEbar/teamsignal/internal/errors"
)

// RetryConfig holds configuration for retry behavior
type RetryConfig struct {
	MaxAttempts     int              `json:"max_attempts" koanf:"max_attempts"`
	InitialDelay    time.Duration    `json:"initial_delay" koanf:"initial_delay"`
	MaxDelay        time.Duration    `json:"max_delay" koanf:"max_delay"`
	BackoffFactor   float64          `json:"backoff_factor" koanf:"backoff_factor"`
	JitterEnabled   bool             `json:"jitter_enabled" koanf:"jitter_enabled"`
	RetryableErrors func(error) bool `json:"-" koanf:"-"` // Function to determine if error is retryable
}

// DefaultRetryConfig returns sensible defaults for retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		BackoffFactor:   2.0,
		JitterEnabled:   true,
		RetryableErrors: errors.IsRetryableError,
	}
}

// RetryableFunc represents a function that can be retried
type RetryableFunc func() error

// RetryWithConfig executes a function with retry logic using custom configuration
func RetryWithConfig(ctx context.Context, config RetryConfig, fn RetryableFunc) error {
	_, err := RetryWithResult(ctx, config, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult executes fn until it succeeds, returns a non-retryable
// error, runs out of attempts or ctx is done. The last error is returned.
func RetryWithResult[T any](ctx context.Context, config RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	retryable := config.RetryableErrors
	if retryable == nil {
		retryable = errors.IsRetryableError
	}

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !retryable(err) {
			break
		}

		// Don't delay on the last attempt
		if attempt == config.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(calculateDelay(config, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}

// calculateDelay computes the delay for the next retry attempt
func calculateDelay(config RetryConfig, attempt int) time.Duration {
	factor := config.BackoffFactor
	if factor < 1 {
		factor = 1
	}

	// Exponential backoff: initial_delay * (backoff_factor ^ attempt)
	delay := time.Duration(float64(config.InitialDelay) * math.Pow(factor, float64(attempt)))

	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	// Up to 10% jitter
	if config.JitterEnabled && delay >= 10 {
		delay += time.Duration(rand.Int63n(int64(delay / 10)))
	}

	return delay
}
