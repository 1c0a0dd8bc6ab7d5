package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Duong-Anh-Duc/KH/internal/domain"
	"github.com/Duong-Anh-Duc/KH/pkg/tracing"
)

// Sender is one registered connection as seen by the hub.
type Sender interface {
	ID() string
	// Enqueue queues a frame without blocking. It returns false when the
	// frame was dropped.
	Enqueue(frame []byte) bool
}

// Publisher delivers an event to every connection in a room.
type Publisher interface {
	Publish(ctx context.Context, room string, ev domain.Event) error
}

type member struct {
	sender Sender
	rooms  map[string]struct{}
}

// Hub is the connection registry of one process: conn id to rooms and room to
// conn ids. It owns no goroutines.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*member
	rooms  map[string]map[string]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		conns:  make(map[string]*member),
		rooms:  make(map[string]map[string]struct{}),
		logger: logger,
	}
}

// Register adds a connection with no room memberships.
func (h *Hub) Register(s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[s.ID()]; ok {
		return
	}
	h.conns[s.ID()] = &member{sender: s, rooms: make(map[string]struct{})}
	Connections.Inc()
}

// Unregister removes a connection from every room it joined.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.conns[connID]
	if !ok {
		return
	}
	for room := range m.rooms {
		h.removeFromRoom(room, connID)
	}
	delete(h.conns, connID)
	Connections.Dec()
}

// Join adds a registered connection to room.
func (h *Hub) Join(connID, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.conns[connID]
	if !ok {
		return fmt.Errorf("connection %s is not registered", connID)
	}
	if _, joined := m.rooms[room]; joined {
		return nil
	}
	m.rooms[room] = struct{}{}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[room] = members
	}
	members[connID] = struct{}{}
	RoomJoins.WithLabelValues(roomKind(room)).Inc()
	return nil
}

// Leave removes a connection from room. Leaving a room never joined is a no-op.
func (h *Hub) Leave(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.conns[connID]
	if !ok {
		return
	}
	if _, joined := m.rooms[room]; !joined {
		return
	}
	delete(m.rooms, room)
	h.removeFromRoom(room, connID)
}

// LeaveAll removes a connection from every room but keeps it registered.
func (h *Hub) LeaveAll(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.conns[connID]
	if !ok {
		return
	}
	for room := range m.rooms {
		h.removeFromRoom(room, connID)
	}
	m.rooms = make(map[string]struct{})
}

// removeFromRoom must be called with h.mu held.
func (h *Hub) removeFromRoom(room, connID string) {
	members := h.rooms[room]
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Publish encodes ev once and queues it on every connection in room. Slow
// connections drop the frame; Publish itself never blocks on a socket.
func (h *Hub) Publish(ctx context.Context, room string, ev domain.Event) error {
	ctx, span := tracing.Start(ctx, "realtime", "realtime.publish",
		attribute.String("realtime.room", room),
		attribute.String("realtime.event", string(ev.Name())),
	)
	defer span.End()

	frame, err := domain.EncodeFrame(ev)
	if err != nil {
		span.RecordError(err)
		return err
	}
	EventsPublished.WithLabelValues(string(ev.Name())).Inc()
	span.SetAttributes(attribute.Int("realtime.delivered", h.Deliver(ctx, room, frame)))
	return nil
}

// Deliver queues an already encoded frame on every connection in room and
// returns how many connections accepted it.
func (h *Hub) Deliver(ctx context.Context, room string, frame []byte) int {
	h.mu.RLock()
	targets := make([]Sender, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		targets = append(targets, h.conns[id].sender)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.Enqueue(frame) {
			delivered++
			continue
		}
		FramesDropped.Inc()
		h.logger.WarnContext(ctx, "dropped realtime frame for slow connection",
			slog.String("conn_id", s.ID()),
			slog.String("room", room),
		)
	}
	return delivered
}

// Rooms returns the sorted rooms a connection has joined.
func (h *Hub) Rooms(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.conns[connID]
	if !ok {
		return nil
	}
	rooms := make([]string, 0, len(m.rooms))
	for r := range m.rooms {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return rooms
}

// RoomSize returns the number of connections in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func roomKind(room string) string {
	switch {
	case room == domain.RoomAllUsers:
		return "allUsers"
	case room == domain.RoomAdmin:
		return "admin"
	case strings.HasPrefix(room, "user:"):
		return "user"
	default:
		return "other"
	}
}
