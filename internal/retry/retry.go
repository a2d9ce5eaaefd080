// Package retry runs calls against flaky external services with a fixed number of attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is wrapped by every error returned after the last attempt.
var ErrExhausted = errors.New("retries exhausted")

type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     bool // Exponential backoff

	// OnRetry is called after each failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Fixed returns a policy with a constant delay between attempts.
func Fixed(attempts int, delay time.Duration) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, Delay: delay}
}

func (c RetryConfig) attempts() int {
	if c.MaxAttempts < 1 {
		return 1
	}
	return c.MaxAttempts
}

func (c RetryConfig) delay(attempt int) time.Duration {
	if c.Backoff {
		return time.Duration(1<<(attempt-1)) * c.Delay
	}
	return c.Delay
}

func WithRetry(ctx context.Context, config RetryConfig, fn func() error) error {
	_, err := Do(ctx, config, func(context.Context, int) (struct{}, error) {
		return struct{}{}, fn()
	}, nil)
	return err
}

// Do calls fn until accept returns nil for its result, fn itself fails with a
// permanent error, or the attempts run out. A nil accept takes every result that
// comes without an error. Attempts are numbered from 1.
func Do[T any](ctx context.Context, config RetryConfig, fn func(ctx context.Context, attempt int) (T, error), accept func(T) error) (T, error) {
	var zero T
	var lastErr error

	n := config.attempts()
	for attempt := 1; attempt <= n; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		res, err := fn(ctx, attempt)
		if err == nil && accept != nil {
			err = accept(res)
		}
		if err == nil {
			return res, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err

		if attempt == n {
			break
		}
		if config.OnRetry != nil {
			config.OnRetry(attempt, err)
		}

		if d := config.delay(attempt); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return zero, ctx.Err()
			case <-t.C:
			}
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, n, lastErr)
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; Do returns it unwrapped immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
