package llm

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig defines retry behavior for LLM API calls.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries)
	MaxRetries int
	// InitialDelay is the initial delay before first retry
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration
	// Multiplier is the factor by which delay increases after each retry
	Multiplier float64
	// JitterFactor adds randomness to delays (0.0-1.0)
	JitterFactor float64
}

// DefaultRetryConfig returns sensible defaults for LLM API retry behavior.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// RetryableFunc performs one gateway attempt.
type RetryableFunc func() (string, error)

// ExecuteWithRetry executes fn with exponential backoff. Only transient
// gateway errors are retried; permanent failures and context cancellation
// return immediately.
func ExecuteWithRetry(ctx context.Context, config RetryConfig, fn RetryableFunc) (string, error) {
	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return "", fmt.Errorf("cancelled after %d attempts: %w", attempt, lastErr)
			}
			return "", ctx.Err()
		default:
		}

		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !IsTransient(err) || attempt == config.MaxRetries {
			return "", err
		}

		sleep := jitter(delay, config.JitterFactor)
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("cancelled during backoff: %w", lastErr)
		case <-timer.C:
		}

		delay = time.Duration(math.Min(
			float64(delay)*config.Multiplier,
			float64(config.MaxDelay),
		))
	}

	return "", lastErr
}

// jitter spreads a delay by +/- factor to avoid retry thundering herds.
func jitter(d time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return d
	}
	spread := float64(d) * factor
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
