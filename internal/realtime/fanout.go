package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Duong-Anh-Duc/KH/internal/domain"
)

// FanoutChannel is the Redis pub/sub channel shared by every instance.
const FanoutChannel = "realtime:events"

type fanoutEnvelope struct {
	Room  string          `json:"room"`
	Frame json.RawMessage `json:"frame"`
}

// RedisFanout publishes events through Redis so that connections held by
// other instances receive them too. Each instance runs Run to deliver
// incoming envelopes to its local hub.
type RedisFanout struct {
	client *redis.Client
	hub    *Hub
	logger *slog.Logger
	ready  chan struct{}
}

func NewRedisFanout(client *redis.Client, hub *Hub, logger *slog.Logger) *RedisFanout {
	return &RedisFanout{client: client, hub: hub, logger: logger, ready: make(chan struct{})}
}

// Publish implements Publisher.
func (f *RedisFanout) Publish(ctx context.Context, room string, ev domain.Event) error {
	frame, err := domain.EncodeFrame(ev)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(fanoutEnvelope{Room: room, Frame: frame})
	if err != nil {
		return fmt.Errorf("encode fanout envelope: %w", err)
	}
	if err := f.client.Publish(ctx, FanoutChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", FanoutChannel, err)
	}
	EventsPublished.WithLabelValues(string(ev.Name())).Inc()
	return nil
}

// Ready is closed once the subscription is confirmed.
func (f *RedisFanout) Ready() <-chan struct{} { return f.ready }

// Run subscribes to the fanout channel and blocks until ctx is cancelled.
func (f *RedisFanout) Run(ctx context.Context) error {
	sub := f.client.Subscribe(ctx, FanoutChannel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", FanoutChannel, err)
	}
	close(f.ready)
	f.logger.Info("realtime fanout subscribed", slog.String("channel", FanoutChannel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env fanoutEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				f.logger.Warn("discarding malformed fanout message", slog.String("error", err.Error()))
				continue
			}
			f.hub.Deliver(ctx, env.Room, env.Frame)
		}
	}
}
