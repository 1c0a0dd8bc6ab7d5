package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/Duong-Anh-Duc/KH/pkg/errors"
)

const attemptsPrefix = "login_attempts:"

// AttemptLimiter counts failed logins per email in a fixed window that starts
// at the first failure.
type AttemptLimiter struct {
	client redis.Cmdable
	max    int
	window time.Duration
}

func NewAttemptLimiter(client redis.Cmdable, max int, window time.Duration) *AttemptLimiter {
	return &AttemptLimiter{client: client, max: max, window: window}
}

func attemptsKey(email string) string {
	return attemptsPrefix + strings.ToLower(strings.TrimSpace(email))
}

// Check fails with TooManyRequests once the email has used up its attempts.
func (l *AttemptLimiter) Check(ctx context.Context, email string) error {
	n, err := l.client.Get(ctx, attemptsKey(email)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return apperrors.UpstreamUnavailable(fmt.Errorf("read login attempts: %w", err))
	}
	if n >= l.max {
		return apperrors.TooManyRequests("too many login attempts, please try again later")
	}
	return nil
}

// Fail records one failed attempt.
func (l *AttemptLimiter) Fail(ctx context.Context, email string) error {
	k := attemptsKey(email)
	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return apperrors.UpstreamUnavailable(fmt.Errorf("record login attempt: %w", err))
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return apperrors.UpstreamUnavailable(fmt.Errorf("expire login attempts: %w", err))
		}
	}
	return nil
}

// Reset clears the counter after a successful login.
func (l *AttemptLimiter) Reset(ctx context.Context, email string) error {
	if err := l.client.Del(ctx, attemptsKey(email)).Err(); err != nil {
		return apperrors.UpstreamUnavailable(fmt.Errorf("reset login attempts: %w", err))
	}
	return nil
}
