package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Duong-Anh-Duc/KH/internal/realtime"
	apperrors "github.com/Duong-Anh-Duc/KH/pkg/errors"
	"github.com/Duong-Anh-Duc/KH/pkg/httputil"
	"github.com/Duong-Anh-Duc/KH/pkg/middleware"
)

// WSHandler authenticates and upgrades realtime connections.
type WSHandler struct {
	hub      *realtime.Hub
	tokens   AccessVerifier
	upgrader websocket.Upgrader
	connCfg  realtime.ConnConfig
	// closing is cancelled on shutdown; hijacked connections are not closed
	// by http.Server.Shutdown.
	closing context.Context
	logger  *slog.Logger
}

// NewWSHandler creates the upgrade handler. allowedOrigins follows the CORS
// configuration; "*" accepts any origin.
func NewWSHandler(closing context.Context, hub *realtime.Hub, tokens AccessVerifier, connCfg realtime.ConnConfig, allowedOrigins []string, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub:    hub,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     middleware.NewOriginPolicy(allowedOrigins).AllowsUpgrade,
		},
		connCfg: connCfg,
		closing: closing,
		logger:  logger,
	}
}

// ServeHTTP handles GET /ws. The access token is checked before the upgrade
// so a rejected client gets a plain 401 it can act on.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := middleware.AccessTokenFromRequest(r)
	if token == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("missing access token"), h.logger)
		return
	}
	claims, err := h.tokens.VerifyAccess(token)
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidToken(), h.logger)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.DebugContext(r.Context(), "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(h.closing, cancel)
	defer stop()

	identity := realtime.Identity{UserID: claims.UserID, Role: claims.Role}
	realtime.NewConn(ws, h.hub, identity, h.connCfg, h.logger).Run(ctx)
}
