// Package retry provides a small exponential-backoff helper used by the
// exchange and LLM clients for ErrTransportRetryable failures (§7).
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/errclass"
)

// Config controls the backoff schedule.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Default is a conservative schedule suitable for venue REST calls.
var Default = Config{
	MaxAttempts: 3,
	BaseDelay:   250 * time.Millisecond,
	MaxDelay:    5 * time.Second,
}

// Do runs fn, retrying while it returns an error wrapping
// errclass.ErrTransportRetryable, up to cfg.MaxAttempts, with exponential
// backoff capped at cfg.MaxDelay. Any other error returns immediately.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(cfg, attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !errors.Is(err, errclass.ErrTransportRetryable) {
			return err
		}
	}
	return lastErr
}

func backoffDelay(cfg Config, attempt int) time.Duration {
	delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if delay > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return delay
}
