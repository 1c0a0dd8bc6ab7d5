package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Duong-Anh-Duc/KH/internal/domain"
	apperrors "github.com/Duong-Anh-Duc/KH/pkg/errors"
)

const keyPrefix = "session:"

// Store caches session records in Redis keyed by user id. Every Set fully
// replaces the record and resets its TTL; concurrent writers race with
// last-write-wins semantics.
type Store struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewStore(client redis.Cmdable, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func key(userID string) string {
	return keyPrefix + userID
}

// Set writes the session with the configured TTL.
func (s *Store) Set(ctx context.Context, sess *domain.Session) error {
	if sess == nil || sess.ID == "" {
		return apperrors.InvalidInput("session must have a user id")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, key(sess.ID), data, s.ttl).Err(); err != nil {
		return apperrors.UpstreamUnavailable(fmt.Errorf("set session %s: %w", sess.ID, err))
	}
	return nil
}

// Get returns the live session for userID or a NotFound error.
func (s *Store) Get(ctx context.Context, userID string) (*domain.Session, error) {
	data, err := s.client.Get(ctx, key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("session", userID)
		}
		return nil, apperrors.UpstreamUnavailable(fmt.Errorf("get session %s: %w", userID, err))
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", userID, err)
	}
	return &sess, nil
}

// Delete removes the session. Deleting an absent session is not an error.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, key(userID)).Err(); err != nil {
		return apperrors.UpstreamUnavailable(fmt.Errorf("delete session %s: %w", userID, err))
	}
	return nil
}

// Ping checks connectivity to the backing Redis.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
