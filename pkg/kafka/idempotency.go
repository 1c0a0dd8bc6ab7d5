package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers which events have been handled.
type IdempotencyStore interface {
	// Claim marks eventID as being handled and reports whether this caller
	// is the first to do so.
	Claim(ctx context.Context, eventID string) (bool, error)
	// Release forgets a claim so a redelivery can try again.
	Release(ctx context.Context, eventID string) error
}

const idempotencyKeyPrefix = "kafka:processed:"

// RedisIdempotencyStore shares one deduplication window across every replica
// of a consumer group. Claims expire after ttl.
type RedisIdempotencyStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client redis.Cmdable, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (s *RedisIdempotencyStore) Claim(ctx context.Context, eventID string) (bool, error) {
	first, err := s.client.SetNX(ctx, idempotencyKeyPrefix+eventID, time.Now().UTC().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	return first, nil
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, eventID string) error {
	if err := s.client.Del(ctx, idempotencyKeyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("release event %s: %w", eventID, err)
	}
	return nil
}

// IdempotentHandler runs inner at most once per EventID. A failed run gives
// its claim back so the consumer's retry or a later redelivery is not
// mistaken for a duplicate. When the store is unreachable the event is
// handled anyway: a duplicate notification beats a lost one.
func IdempotentHandler(store IdempotencyStore, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return inner(ctx, event)
		}

		first, err := store.Claim(ctx, event.EventID)
		if err != nil {
			logger.WarnContext(ctx, "idempotency claim failed, handling event anyway",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
			return inner(ctx, event)
		}
		if !first {
			topic, group := deliveryFromContext(ctx)
			consumerDuplicate.WithLabelValues(topic, group).Inc()
			logger.DebugContext(ctx, "skipping duplicate event",
				slog.String("event_id", event.EventID),
				slog.String("event_type", event.EventType),
			)
			return nil
		}

		if err := inner(ctx, event); err != nil {
			if relErr := store.Release(context.WithoutCancel(ctx), event.EventID); relErr != nil {
				logger.WarnContext(ctx, "could not release idempotency claim",
					slog.String("event_id", event.EventID),
					slog.String("error", relErr.Error()),
				)
			}
			return err
		}
		return nil
	}
}
