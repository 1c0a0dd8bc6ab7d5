package http

import (
	"log/slog"
	"net/http"

	"github.com/Duong-Anh-Duc/KH/internal/service"
	"github.com/Duong-Anh-Duc/KH/pkg/httputil"
	"github.com/Duong-Anh-Duc/KH/pkg/middleware"
	"github.com/Duong-Anh-Duc/KH/pkg/validator"
)

// ProfileHandler handles self-service profile updates.
type ProfileHandler struct {
	service ProfileService
	logger  *slog.Logger
}

func NewProfileHandler(svc ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{service: svc, logger: logger}
}

type UpdateInfoRequest struct {
	Name string `json:"name" validate:"required,notblank,max=100"`
}

type UpdatePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=72"`
}

type UpdateAvatarRequest struct {
	Avatar string `json:"avatar" validate:"required,url,max=2048"`
}

// UpdateInfo handles PUT /api/v1/update-user-info
func (h *ProfileHandler) UpdateInfo(w http.ResponseWriter, r *http.Request) {
	var req UpdateInfoRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}
	sess, err := h.service.UpdateInfo(r.Context(), middleware.UserIDFromContext(r.Context()), service.UpdateInfoInput{Name: req.Name})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: sess})
}

// UpdatePassword handles PUT /api/v1/update-user-password
func (h *ProfileHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req UpdatePasswordRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}
	sess, err := h.service.UpdatePassword(r.Context(), middleware.UserIDFromContext(r.Context()), service.UpdatePasswordInput{
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: sess})
}

// UpdateAvatar handles PUT /api/v1/update-user-avatar
func (h *ProfileHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	var req UpdateAvatarRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}
	sess, err := h.service.UpdateAvatar(r.Context(), middleware.UserIDFromContext(r.Context()), req.Avatar)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: sess})
}
