package database

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how long startup waits for a backing store. Waits
// double from BaseWait with +/- Jitter applied as a fraction.
type RetryPolicy struct {
	Attempts int
	BaseWait time.Duration
	Jitter   float64
}

// DefaultRetryPolicy waits roughly 1s then 2s between three attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseWait: time.Second, Jitter: 0.25}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.BaseWait << attempt
	if p.Jitter <= 0 {
		return base
	}
	spread := float64(base) * p.Jitter * (2*rand.Float64() - 1) // #nosec G404 -- jitter only
	return base + time.Duration(spread)
}

func connectWithRetry[T any](ctx context.Context, p RetryPolicy, logger *slog.Logger, store string, dial func(context.Context) (T, error)) (T, error) {
	var conn T
	err := retry(ctx, p, logger, "connect "+store, nil, func(ctx context.Context) error {
		var err error
		conn, err = dial(ctx)
		return err
	})
	return conn, err
}

// retry runs op until it succeeds, attempts run out, or op fails with an
// error transient rejects. A nil transient retries every error.
func retry(ctx context.Context, p RetryPolicy, logger *slog.Logger, what string, transient func(error) bool, op func(context.Context) error) error {
	attempts := max(p.Attempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if transient != nil && !transient(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}

		wait := p.backoff(attempt)
		if logger != nil {
			logger.WarnContext(ctx, what+" failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", attempts),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", what, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", what, attempts, lastErr)
}
