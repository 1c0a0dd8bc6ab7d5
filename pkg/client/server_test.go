package client

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeServer is a minimal stand-in for the e-learning API: token checks,
// refresh rotation, a notification list and a realtime endpoint.
type fakeServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu            sync.Mutex
	access        string
	refresh       string
	sessionLive   bool
	generation    int
	notifications []Notification
	conns         []*fakeConn
	refreshCalls  int
	listCalls     int
	wsRejections  int
}

type fakeConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *fakeConn) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	s := &fakeServer{access: "access-0", refresh: "refresh-0", sessionLive: true}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/refresh-token", s.handleRefresh)
	mux.HandleFunc("GET /api/v1/get-notifications", s.handleList)
	mux.HandleFunc("PUT /api/v1/update-user-password", s.handleUpdatePassword)
	mux.HandleFunc("GET /ws", s.handleWS)

	s.srv = httptest.NewServer(mux)
	t.Cleanup(func() {
		s.dropConns()
		s.srv.Close()
	})
	return s
}

func (s *fakeServer) apiRoot() string { return s.srv.URL + "/api/v1" }

func (s *fakeServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
}

func (s *fakeServer) apiConfig() Config {
	cfg := DefaultConfig(s.apiRoot())
	cfg.HTTP.MaxRetries = 0
	cfg.HTTP.Timeout = 5 * time.Second
	return cfg
}

func (s *fakeServer) socketConfig() SocketConfig {
	cfg := DefaultSocketConfig(s.wsURL())
	cfg.MinBackoff = 10 * time.Millisecond
	cfg.MaxBackoff = 50 * time.Millisecond
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.ReadTimeout = 5 * time.Second
	return cfg
}

// expireAccess invalidates the current access token while keeping the
// session alive.
func (s *fakeServer) expireAccess() {
	s.mu.Lock()
	s.access = "expired-elsewhere"
	s.mu.Unlock()
}

// endSession deletes the session record, as a ban does.
func (s *fakeServer) endSession() {
	s.mu.Lock()
	s.sessionLive = false
	s.access = "expired-elsewhere"
	s.mu.Unlock()
}

func (s *fakeServer) addNotification(msg, event string) Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	n := Notification{
		ID:        fmt.Sprintf("n-%d", len(s.notifications)+1),
		UserID:    "u1",
		Audience:  "user",
		Title:     "Account Updated",
		Message:   msg,
		Status:    "unread",
		Event:     event,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.notifications = append([]Notification{n}, s.notifications...)
	return n
}

func (s *fakeServer) push(event string, data any) {
	s.mu.Lock()
	conns := append([]*fakeConn(nil), s.conns...)
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.write(map[string]any{"event": event, "data": data})
	}
}

func (s *fakeServer) dropConns() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.ws.Close()
	}
}

func (s *fakeServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *fakeServer) counts() (refresh, list int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls, s.listCalls
}

func (s *fakeServer) authorized(r *http.Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.Header.Get(accessTokenHeader) == s.access
}

func (s *fakeServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body["password"] != "secret1" {
		writeErr(w, http.StatusBadRequest, "INVALID_CREDENTIALS")
		return
	}
	s.mu.Lock()
	s.sessionLive = true
	pair := TokenPair{AccessToken: s.access, RefreshToken: s.refresh}
	s.mu.Unlock()
	writeData(w, sessionResponse{User: &Session{ID: "u1", Name: "Ann", Role: "user"}, TokenPair: pair})
}

func (s *fakeServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++
	if r.Header.Get(refreshTokenHeader) != s.refresh {
		writeErr(w, http.StatusUnauthorized, "INVALID_TOKEN")
		return
	}
	if !s.sessionLive {
		writeErr(w, http.StatusUnauthorized, "SESSION_EXPIRED")
		return
	}
	s.generation++
	s.access = fmt.Sprintf("access-%d", s.generation)
	s.refresh = fmt.Sprintf("refresh-%d", s.generation)
	writeData(w, sessionResponse{
		User:      &Session{ID: "u1", Name: "Ann", Role: "user"},
		TokenPair: TokenPair{AccessToken: s.access, RefreshToken: s.refresh},
	})
}

func (s *fakeServer) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.listCalls++
	s.mu.Unlock()
	if !s.authorized(r) {
		writeErr(w, http.StatusUnauthorized, "INVALID_TOKEN")
		return
	}
	s.mu.Lock()
	list := append([]Notification{}, s.notifications...)
	s.mu.Unlock()
	writeData(w, list)
}

func (s *fakeServer) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeErr(w, http.StatusUnauthorized, "INVALID_TOKEN")
		return
	}
	const msg = "Your password was updated successfully!"
	s.addNotification(msg, EventUserUpdated)
	sess := &Session{ID: "u1", Name: "Ann", Role: "user", Courses: []CourseRef{}}
	s.push(EventUserUpdated, map[string]any{"message": msg, "user": sess})
	writeData(w, sess)
}

func (s *fakeServer) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.mu.Lock()
		s.wsRejections++
		s.mu.Unlock()
		writeErr(w, http.StatusUnauthorized, "INVALID_TOKEN")
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &fakeConn{ws: ws}
	go func() {
		defer ws.Close()
		for {
			var msg map[string]string
			if err := ws.ReadJSON(&msg); err != nil {
				return
			}
			switch msg["action"] {
			case actionJoin:
				s.mu.Lock()
				s.conns = append(s.conns, c)
				s.mu.Unlock()
				_ = c.write(map[string]any{"event": controlJoined, "data": map[string]any{"rooms": []string{"user:u1", "allUsers"}}})
			default:
				_ = c.write(map[string]any{"event": controlError, "data": map[string]string{"message": "forbidden"}})
			}
		}
	}()
}

func writeData(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": v})
}

func writeErr(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": code, "message": strings.ToLower(code)}})
}
