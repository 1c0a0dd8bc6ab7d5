package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Realtime client actions and control frames.
const (
	actionJoin      = "join"
	actionJoinAdmin = "joinAdmin"

	controlJoined = "joined"
	controlLeft   = "left"
	controlError  = "error"
)

// SocketConfig configures a realtime socket.
type SocketConfig struct {
	// URL is the websocket endpoint, e.g. "wss://api.example.com/ws".
	URL string
	// Admin joins the admin room after the user rooms.
	Admin bool

	MinBackoff       time.Duration
	MaxBackoff       time.Duration
	HandshakeTimeout time.Duration
	// ReadTimeout bounds silence on the connection. Server pings extend it.
	ReadTimeout time.Duration
}

// DefaultSocketConfig returns reconnect and keep-alive defaults.
func DefaultSocketConfig(wsURL string) SocketConfig {
	return SocketConfig{
		URL:              wsURL,
		MinBackoff:       500 * time.Millisecond,
		MaxBackoff:       30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      90 * time.Second,
	}
}

// SocketHandlers receive socket callbacks. They run on the socket's read
// goroutine and must not block for long.
type SocketHandlers struct {
	// OnEvent is called for every domain event, in delivery order.
	OnEvent func(Event)
	// OnReconnect is called after a reconnect has re-joined every room.
	OnReconnect func()
	// OnConnect is called after every successful join, the first included.
	OnConnect func()
}

// Refresher renews credentials when the handshake is rejected.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Socket keeps one realtime connection open, re-joining its rooms after
// every reconnect.
type Socket struct {
	cfg       SocketConfig
	tokens    TokenStore
	refresher Refresher
	handlers  SocketHandlers
	dialer    *websocket.Dialer
	logger    *slog.Logger
}

// NewSocket creates a socket. refresher may be nil; without it a rejected
// handshake ends Run with ErrReauthRequired.
func NewSocket(cfg SocketConfig, tokens TokenStore, refresher Refresher, handlers SocketHandlers, logger *slog.Logger) *Socket {
	return &Socket{
		cfg:       cfg,
		tokens:    tokens,
		refresher: refresher,
		handlers:  handlers,
		dialer:    &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: cfg.HandshakeTimeout},
		logger:    logger,
	}
}

// Run connects and serves the socket until ctx is done or the session can no
// longer be recovered. Dropped connections are redialed with exponential
// backoff.
func (s *Socket) Run(ctx context.Context) error {
	connected := false
	attempt := 0
	for {
		err := s.session(ctx, connected, func() {
			connected = true
			attempt = 0
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrReauthRequired) {
			return err
		}

		wait := s.backoff(attempt)
		attempt++
		s.logger.WarnContext(ctx, "realtime connection lost, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", wait),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// session runs one connection from dial to drop.
func (s *Socket) session(ctx context.Context, reconnect bool, onJoined func()) error {
	ws, err := s.dial(ctx)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()
	defer ws.Close()

	ws.SetPingHandler(func(data string) error {
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	if err := s.join(ws); err != nil {
		return err
	}
	onJoined()
	if s.handlers.OnConnect != nil {
		s.handlers.OnConnect()
	}
	if reconnect && s.handlers.OnReconnect != nil {
		s.handlers.OnReconnect()
	}

	for {
		f, err := s.read(ws)
		if err != nil {
			return err
		}
		switch f.Event {
		case controlJoined, controlLeft:
		case controlError:
			s.logger.WarnContext(ctx, "realtime server error", slog.String("data", string(f.Data)))
		default:
			ev, err := decodeEvent(f)
			if err != nil {
				s.logger.WarnContext(ctx, "dropping undecodable realtime event",
					slog.String("event", f.Event),
					slog.String("error", err.Error()),
				)
				continue
			}
			if s.handlers.OnEvent != nil {
				s.handlers.OnEvent(ev)
			}
		}
	}
}

// dial opens the connection, refreshing once if the handshake is rejected.
func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, resp, err := s.dialOnce(ctx)
	if err == nil {
		return ws, nil
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}
	if s.refresher == nil {
		s.tokens.Clear()
		return nil, fmt.Errorf("%w: realtime handshake rejected", ErrReauthRequired)
	}
	if err := s.refresher.Refresh(ctx); err != nil {
		return nil, err
	}

	ws, resp, err = s.dialOnce(ctx)
	if err == nil {
		return ws, nil
	}
	if resp != nil && resp.StatusCode == http.StatusUnauthorized {
		s.tokens.Clear()
		return nil, fmt.Errorf("%w: realtime handshake rejected after refresh", ErrReauthRequired)
	}
	return nil, fmt.Errorf("dial realtime: %w", err)
}

func (s *Socket) dialOnce(ctx context.Context) (*websocket.Conn, *http.Response, error) {
	pair := s.tokens.Load()
	h := http.Header{}
	h.Set(accessTokenHeader, pair.AccessToken)
	h.Set(refreshTokenHeader, pair.RefreshToken)

	ws, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, h)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return ws, resp, err
}

// join sends the join actions and waits for one acknowledgement each. A
// rejected joinAdmin is logged and does not fail the connection.
func (s *Socket) join(ws *websocket.Conn) error {
	actions := []string{actionJoin}
	if s.cfg.Admin {
		actions = append(actions, actionJoinAdmin)
	}
	for _, action := range actions {
		if err := ws.WriteJSON(map[string]string{"action": action}); err != nil {
			return fmt.Errorf("send %s: %w", action, err)
		}
	}

	for acked := 0; acked < len(actions); {
		f, err := s.read(ws)
		if err != nil {
			return fmt.Errorf("await join ack: %w", err)
		}
		switch f.Event {
		case controlJoined:
			acked++
		case controlError:
			s.logger.Warn("realtime join rejected", slog.String("data", string(f.Data)))
			acked++
		default:
			// Events for rooms joined by an earlier ack.
			if ev, err := decodeEvent(f); err == nil && s.handlers.OnEvent != nil {
				s.handlers.OnEvent(ev)
			}
		}
	}
	return nil
}

func (s *Socket) read(ws *websocket.Conn) (frame, error) {
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	var f frame
	_, b, err := ws.ReadMessage()
	if err != nil {
		return f, err
	}
	if err := json.Unmarshal(b, &f); err != nil {
		return f, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

func decodeEvent(f frame) (Event, error) {
	var p eventPayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return Event{}, err
	}
	return Event{Name: f.Event, Message: p.Message, CourseID: p.CourseID, User: p.User, Data: f.Data}, nil
}

// backoff returns the exponential wait before reconnect attempt n with up to
// 25% jitter.
func (s *Socket) backoff(attempt int) time.Duration {
	wait := s.cfg.MinBackoff << min(attempt, 16)
	if s.cfg.MaxBackoff > 0 && wait > s.cfg.MaxBackoff {
		wait = s.cfg.MaxBackoff
	}
	if q := int64(wait) / 4; q > 0 {
		wait += time.Duration(rand.Int64N(q))
	}
	return wait
}

// WebsocketURL derives the realtime endpoint from an http(s) API root, e.g.
// "https://host/api/v1" becomes "wss://host/ws".
func WebsocketURL(apiRoot string) (string, error) {
	u, err := url.Parse(apiRoot)
	if err != nil {
		return "", fmt.Errorf("parse api root: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}
