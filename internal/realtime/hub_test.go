package realtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Duong-Anh-Duc/KH/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSender struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	full   bool
}

func (f *fakeSender) ID() string { return f.id }

func (f *fakeSender) Enqueue(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestHub_PublishReachesOnlyRoomMembers(t *testing.T) {
	hub := NewHub(discardLogger())
	alice := &fakeSender{id: "c-alice"}
	bob := &fakeSender{id: "c-bob"}
	hub.Register(alice)
	hub.Register(bob)
	require.NoError(t, hub.Join("c-alice", domain.UserRoom("alice")))
	require.NoError(t, hub.Join("c-alice", domain.RoomAllUsers))
	require.NoError(t, hub.Join("c-bob", domain.RoomAllUsers))

	require.NoError(t, hub.Publish(context.Background(), domain.UserRoom("alice"), domain.OrderSuccess{Message: "paid"}))
	require.NoError(t, hub.Publish(context.Background(), domain.RoomAllUsers, domain.NewCourse{Message: "new"}))

	assert.Equal(t, 2, alice.count())
	assert.Equal(t, 1, bob.count())
	assert.JSONEq(t, `{"event":"newCourse","data":{"message":"new","courseId":""}}`, string(bob.frames[0]))
}

func TestHub_UnregisterLeavesEveryRoom(t *testing.T) {
	hub := NewHub(discardLogger())
	s := &fakeSender{id: "c1"}
	hub.Register(s)
	require.NoError(t, hub.Join("c1", domain.UserRoom("u1")))
	require.NoError(t, hub.Join("c1", domain.RoomAllUsers))

	hub.Unregister("c1")

	assert.Equal(t, 0, hub.Len())
	assert.Equal(t, 0, hub.RoomSize(domain.RoomAllUsers))
	assert.Equal(t, 0, hub.RoomSize(domain.UserRoom("u1")))
	assert.Nil(t, hub.Rooms("c1"))

	require.NoError(t, hub.Publish(context.Background(), domain.RoomAllUsers, domain.NewCourse{Message: "x"}))
	assert.Equal(t, 0, s.count())
}

func TestHub_JoinUnregisteredFails(t *testing.T) {
	hub := NewHub(discardLogger())
	assert.Error(t, hub.Join("ghost", domain.RoomAllUsers))
}

func TestHub_JoinIsIdempotent(t *testing.T) {
	hub := NewHub(discardLogger())
	s := &fakeSender{id: "c1"}
	hub.Register(s)
	require.NoError(t, hub.Join("c1", domain.RoomAdmin))
	require.NoError(t, hub.Join("c1", domain.RoomAdmin))

	require.NoError(t, hub.Publish(context.Background(), domain.RoomAdmin, domain.OrderSuccess{Message: "m"}))
	assert.Equal(t, 1, s.count())
	assert.Equal(t, 1, hub.RoomSize(domain.RoomAdmin))
}

func TestHub_LeaveAndLeaveAll(t *testing.T) {
	hub := NewHub(discardLogger())
	hub.Register(&fakeSender{id: "c1"})
	require.NoError(t, hub.Join("c1", domain.UserRoom("u1")))
	require.NoError(t, hub.Join("c1", domain.RoomAllUsers))

	hub.Leave("c1", domain.RoomAllUsers)
	assert.Equal(t, []string{"user:u1"}, hub.Rooms("c1"))

	hub.LeaveAll("c1")
	assert.Empty(t, hub.Rooms("c1"))
	assert.Equal(t, 1, hub.Len())
}

func TestHub_FullQueueDropsOnlyThatConnection(t *testing.T) {
	hub := NewHub(discardLogger())
	slow := &fakeSender{id: "slow", full: true}
	fast := &fakeSender{id: "fast"}
	hub.Register(slow)
	hub.Register(fast)
	require.NoError(t, hub.Join("slow", domain.RoomAllUsers))
	require.NoError(t, hub.Join("fast", domain.RoomAllUsers))

	before := counterValue(t, FramesDropped)
	delivered := hub.Deliver(context.Background(), domain.RoomAllUsers, []byte(`{}`))

	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, fast.count())
	assert.Equal(t, before+1, counterValue(t, FramesDropped))
}

func TestHub_ConcurrentMutation(t *testing.T) {
	hub := NewHub(discardLogger())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := &fakeSender{id: string(rune('A'+i%26)) + string(rune('a'+i/26))}
			hub.Register(s)
			_ = hub.Join(s.id, domain.RoomAllUsers)
			_ = hub.Publish(context.Background(), domain.RoomAllUsers, domain.NewLesson{Message: "l"})
			hub.Unregister(s.id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Len())
	assert.Equal(t, 0, hub.RoomSize(domain.RoomAllUsers))
}

func TestRoomKind(t *testing.T) {
	assert.Equal(t, "user", roomKind(domain.UserRoom("u1")))
	assert.Equal(t, "allUsers", roomKind(domain.RoomAllUsers))
	assert.Equal(t, "admin", roomKind(domain.RoomAdmin))
	assert.Equal(t, "other", roomKind("lobby"))
}
