package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Duong-Anh-Duc/KH/internal/domain"
	"github.com/Duong-Anh-Duc/KH/internal/service"
	apperrors "github.com/Duong-Anh-Duc/KH/pkg/errors"
	"github.com/Duong-Anh-Duc/KH/pkg/httputil"
	"github.com/Duong-Anh-Duc/KH/pkg/middleware"
	"github.com/Duong-Anh-Duc/KH/pkg/validator"
)

// AuthHandler handles HTTP requests for account and session endpoints.
type AuthHandler struct {
	service AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for registration.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,notblank,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginRequest is the JSON request body for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// BanRequest is the JSON request body for changing a user's ban flag.
type BanRequest struct {
	Banned *bool `json:"banned" validate:"required"`
}

// --- Response types ---

// SessionResponse carries the session record together with a fresh token
// pair.
type SessionResponse struct {
	User *domain.Session `json:"user"`
	domain.TokenPair
}

type messageResponse struct {
	Message string `json:"message"`
}

// --- Handlers ---

// Register handles POST /api/v1/registration
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	user, err := h.service.Register(r.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: domain.NewSession(user)})
}

// Login handles POST /api/v1/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	sess, pair, err := h.service.Login(r.Context(), service.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: SessionResponse{User: sess, TokenPair: pair}})
}

// Logout handles POST /api/v1/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), middleware.UserIDFromContext(r.Context())); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: messageResponse{Message: "logged out successfully"}})
}

// Me handles GET /api/v1/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.Me(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: sess})
}

// RefreshToken handles POST /api/v1/refresh-token. The refresh token travels
// in the refresh-token header; there is no body.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.Header.Get(middleware.RefreshTokenHeader))
	if token == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("missing refresh token"), h.logger)
		return
	}

	sess, pair, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: SessionResponse{User: sess, TokenPair: pair}})
}

// SetBanned handles PUT /api/v1/ban-user/{id}
func (h *AuthHandler) SetBanned(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := httputil.ParseUUID(w, id); !ok {
		return
	}

	var req BanRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	user, err := h.service.SetBanned(r.Context(), id, *req.Banned)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: domain.NewSession(user)})
}
