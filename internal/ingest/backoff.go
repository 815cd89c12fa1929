package ingest

import (
	"context"
	"time"

	"github.com/dvloznov/ledger-ingest/internal/metrics"
	"github.com/sethvargo/go-retry"
)

const (
	// DefaultMaxRetries is the number of attempts made per chunk or record.
	DefaultMaxRetries = 3

	baseDelay = 1000 * time.Millisecond
	maxDelay  = 5000 * time.Millisecond
)

// DelayFunc returns the pause before the retry following the given failed
// attempt (1-based).
type DelayFunc func(attempt int) time.Duration

// ExponentialBackoff is min(1s * 2^(attempt-1), 5s).
func ExponentialBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 4 {
		return maxDelay
	}
	d := baseDelay << uint(attempt-1)
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// NoDelay retries immediately.
func NoDelay(int) time.Duration {
	return 0
}

// newBackoff stops after maxAttempts total attempts.
func newBackoff(delay DelayFunc, maxAttempts int) retry.Backoff {
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		if attempt >= maxAttempts {
			return 0, true
		}
		metrics.CommitRetried()
		return delay(attempt), false
	})
}

// withRetry runs fn until it succeeds or maxAttempts attempts have failed.
// It returns the last error and the number of attempts made.
func withRetry(ctx context.Context, delay DelayFunc, maxAttempts int, fn func(ctx context.Context) error) (int, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	attempts := 0
	err := retry.Do(ctx, newBackoff(delay, maxAttempts), func(ctx context.Context) error {
		attempts++
		if err := fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	return attempts, err
}
