package search

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// errPermanent marks a failure that retrying will not fix (4xx responses).
var errPermanent = errors.New("permanent failure")

// withRetry calls fn up to attempts times, doubling the delay after each
// failure starting from base.
func withRetry(ctx context.Context, attempts int, base time.Duration, op string, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	delay := base

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			if attempt > 1 {
				slog.Info("search call succeeded after retry", "operation", op, "attempt", attempt)
			}
			return nil
		}
		if errors.Is(err, errPermanent) || attempt == attempts {
			break
		}

		slog.Warn("search call failed, retrying", "operation", op, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
