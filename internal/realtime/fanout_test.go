package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Duong-Anh-Duc/KH/internal/domain"
)

func TestRedisFanout_DeliversAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = c.Close() })
		return c
	}

	hubA := NewHub(discardLogger())
	hubB := NewHub(discardLogger())
	fanA := NewRedisFanout(newClient(), hubA, discardLogger())
	fanB := NewRedisFanout(newClient(), hubB, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fanA.Run(ctx) }()
	go func() { _ = fanB.Run(ctx) }()
	<-fanA.Ready()
	<-fanB.Ready()

	onB := &fakeSender{id: "c-b"}
	hubB.Register(onB)
	require.NoError(t, hubB.Join("c-b", domain.UserRoom("u1")))

	require.NoError(t, fanA.Publish(ctx, domain.UserRoom("u1"), domain.UserUpdated{Message: "updated", User: &domain.Session{ID: "u1"}}))

	assert.Eventually(t, func() bool { return onB.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	ev, err := domain.DecodeFrame(onB.frames[0])
	require.NoError(t, err)
	assert.Equal(t, domain.EventUserUpdated, ev.Name())
}

func TestRedisFanout_PublishFailsWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	fan := NewRedisFanout(client, NewHub(discardLogger()), discardLogger())
	mr.Close()

	err := fan.Publish(context.Background(), domain.RoomAllUsers, domain.NewCourse{Message: "x"})
	assert.Error(t, err)
}
