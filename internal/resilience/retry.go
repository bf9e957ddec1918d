// Package resilience provides bounded retry with exponential backoff.
//
// [Retry] runs an operation up to MaxAttempts times, sleeping
// BaseDelay × 2^(attempt-1) between attempts. It keeps no state between
// invocations: every call starts with a fresh attempt budget.
//
// All functions are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	// DefaultMaxAttempts is the total number of attempts, including the first.
	DefaultMaxAttempts = 2

	// DefaultBaseDelay is the wait before the second attempt.
	DefaultBaseDelay = time.Second
)

// RetryConfig holds tuning knobs for [Retry].
type RetryConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxAttempts is the total number of attempts. Default: 2.
	MaxAttempts int

	// BaseDelay is the backoff unit. Default: 1s.
	BaseDelay time.Duration

	// MaxDelay caps a single wait. Zero means uncapped.
	MaxDelay time.Duration

	// Sleep waits for d or until ctx is done. Tests replace it to avoid real
	// delays. Default: a timer-based wait.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry, if set, is called before each backoff wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay < 0 {
		c.BaseDelay = 0
	} else if c.BaseDelay == 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.Sleep == nil {
		c.Sleep = Sleep
	}
	return c
}

// Backoff returns the wait after the given failed attempt (1-based):
// base × 2^(attempt-1), capped at maxDelay when maxDelay > 0.
func Backoff(base time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := base
	for range attempt - 1 {
		wait *= 2
		if maxDelay > 0 && wait >= maxDelay {
			return maxDelay
		}
	}
	if maxDelay > 0 && wait > maxDelay {
		return maxDelay
	}
	return wait
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retry calls fn until it succeeds or the attempt budget is exhausted. fn
// receives the 1-based attempt number. It returns the number of attempts made
// and the last error from fn. Context cancellation stops retrying
// immediately; in that case the context error is returned.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context, attempt int) error) (int, error) {
	_, attempts, err := RetryWithResult(ctx, cfg, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, fn(ctx, attempt)
	})
	return attempts, err
}

// RetryWithResult is [Retry] for operations that produce a value. This is a
// package-level function because Go does not support method-level type
// parameters.
func RetryWithResult[R any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context, attempt int) (R, error)) (R, int, error) {
	cfg = cfg.withDefaults()
	var zero R

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, err
		}
		res, err := fn(ctx, attempt)
		if err == nil {
			return res, attempt, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return zero, attempt, ctx.Err()
			}
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := Backoff(cfg.BaseDelay, attempt, cfg.MaxDelay)
		slog.Warn("attempt failed, retrying",
			"operation", cfg.Name,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"backoff", wait,
			"error", err,
		)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, wait, err)
		}
		if err := cfg.Sleep(ctx, wait); err != nil {
			return zero, attempt, err
		}
	}
	return zero, cfg.MaxAttempts, lastErr
}
