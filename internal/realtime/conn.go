package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Duong-Anh-Duc/KH/internal/domain"
	"github.com/Duong-Anh-Duc/KH/pkg/logger"
)

// ConnConfig tunes a websocket connection.
type ConnConfig struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

// DefaultConnConfig returns keep-alive settings suited to browser clients.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		SendBuffer:     64,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     30 * time.Second,
		MaxMessageSize: 4096,
	}
}

// Identity is the authenticated principal behind a connection.
type Identity struct {
	UserID string
	Role   string
}

// Conn is one websocket client. A single writer goroutine drains the send
// queue, so frames reach the socket in the order they were queued.
type Conn struct {
	id       string
	identity Identity
	ws       *websocket.Conn
	hub      *Hub
	cfg      ConnConfig
	logger   *slog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn wraps an upgraded socket.
func NewConn(ws *websocket.Conn, hub *Hub, identity Identity, cfg ConnConfig, l *slog.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:       id,
		identity: identity,
		ws:       ws,
		hub:      hub,
		cfg:      cfg,
		logger:   l.With(slog.String("conn_id", id), slog.String("user_id", identity.UserID)),
		send:     make(chan []byte, cfg.SendBuffer),
		done:     make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Enqueue implements Sender.
func (c *Conn) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Run registers the connection and serves it until the socket closes or ctx
// is cancelled. The connection leaves every room before Run returns.
func (c *Conn) Run(ctx context.Context) {
	ctx = logger.WithConnID(logger.WithUserID(ctx, c.identity.UserID), c.id)
	c.hub.Register(c)
	c.logger.InfoContext(ctx, "realtime connection opened")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()

	go func() {
		select {
		case <-ctx.Done():
			c.close()
		case <-c.done:
		}
	}()

	c.readLoop(ctx)

	c.hub.Unregister(c.id)
	c.close()
	wg.Wait()
	c.logger.InfoContext(ctx, "realtime connection closed")
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.cfg.WriteWait))
		_ = c.ws.Close()
	})
}

func (c *Conn) readLoop(ctx context.Context) {
	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.DebugContext(ctx, "realtime read failed", slog.String("error", err.Error()))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Enqueue(encodeControl(ControlError, ErrorPayload{Message: "malformed message"}))
			continue
		}
		c.handle(ctx, msg)
	}
}

// handle applies one client action. A connection may only ever enter its own
// user room.
func (c *Conn) handle(ctx context.Context, msg ClientMessage) {
	switch msg.Action {
	case ActionJoin:
		if msg.UserID != "" && msg.UserID != c.identity.UserID {
			c.logger.WarnContext(ctx, "rejected join for foreign user room", slog.String("requested_user_id", msg.UserID))
			c.Enqueue(encodeControl(ControlError, ErrorPayload{Message: "cannot join another user's room"}))
			return
		}
		c.join(ctx, domain.UserRoom(c.identity.UserID), domain.RoomAllUsers)

	case ActionJoinAdmin:
		if c.identity.Role != domain.RoleAdmin {
			c.Enqueue(encodeControl(ControlError, ErrorPayload{Message: "admin role required"}))
			return
		}
		c.join(ctx, domain.RoomAdmin)

	case ActionLeave:
		if msg.Room != "" {
			c.hub.Leave(c.id, msg.Room)
		} else {
			c.hub.LeaveAll(c.id)
		}
		c.Enqueue(encodeControl(ControlLeft, RoomsAck{Rooms: c.hub.Rooms(c.id)}))

	default:
		c.Enqueue(encodeControl(ControlError, ErrorPayload{Message: "unknown action"}))
	}
}

func (c *Conn) join(ctx context.Context, rooms ...string) {
	for _, room := range rooms {
		if err := c.hub.Join(c.id, room); err != nil {
			c.logger.ErrorContext(ctx, "join room failed", slog.String("room", room), slog.String("error", err.Error()))
			c.Enqueue(encodeControl(ControlError, ErrorPayload{Message: "join failed"}))
			return
		}
	}
	c.Enqueue(encodeControl(ControlJoined, RoomsAck{Rooms: c.hub.Rooms(c.id)}))
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteWait)); err != nil {
				c.close()
				return
			}
		}
	}
}
