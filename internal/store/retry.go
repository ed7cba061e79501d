package store

import (
	"context"
	"errors"
	"time"
)

// Retry runs fn up to attempts times, backing off between tries. Only
// ErrUnavailable is retried; domain-rule failures propagate immediately.
// After exhaustion the last ErrUnavailable is returned so the caller still
// sees the retryable kind.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := baseDelay
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		err = fn(ctx)
		if err == nil || !errors.Is(err, ErrUnavailable) {
			return err
		}
	}

	return err
}
