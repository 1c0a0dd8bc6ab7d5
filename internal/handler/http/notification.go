package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Duong-Anh-Duc/KH/internal/domain"
	"github.com/Duong-Anh-Duc/KH/internal/service"
	"github.com/Duong-Anh-Duc/KH/pkg/httputil"
	"github.com/Duong-Anh-Duc/KH/pkg/middleware"
	"github.com/Duong-Anh-Duc/KH/pkg/pagination"
	"github.com/Duong-Anh-Duc/KH/pkg/validator"
)

// NotificationHandler handles HTTP requests for notification endpoints.
type NotificationHandler struct {
	service NotificationService
	logger  *slog.Logger
}

// NewNotificationHandler creates a new notification HTTP handler.
func NewNotificationHandler(svc NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{service: svc, logger: logger}
}

// AnnouncementRequest is the JSON request body for an admin announcement.
type AnnouncementRequest struct {
	Audience string `json:"audience" validate:"required,oneof=user all admin"`
	UserID   string `json:"userId" validate:"required_if=Audience user,omitempty,uuid"`
	Title    string `json:"title" validate:"required,notblank,max=200"`
	Message  string `json:"message" validate:"required,notblank,max=2000"`
	Event    string `json:"event" validate:"omitempty,oneof=orderSuccess newCourse newLesson courseUpdated newQuestionReply"`
	CourseID string `json:"courseId" validate:"max=100"`
}

// event builds the realtime variant for the announcement. Announcements
// default to courseUpdated since it carries nothing beyond the message and
// course reference.
func (req AnnouncementRequest) event() (domain.Event, error) {
	name := domain.EventName(req.Event)
	if name == "" {
		name = domain.EventCourseUpdated
	}
	data, err := json.Marshal(map[string]string{"message": req.Message, "courseId": req.CourseID})
	if err != nil {
		return nil, err
	}
	return domain.DecodeEvent(name, data)
}

// ListForUser handles GET /api/v1/get-notifications
func (h *NotificationHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.FromRequest(r)
	if err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	page, err := h.service.ListForUser(r.Context(), middleware.UserIDFromContext(r.Context()), params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewListResponse(page))
}

// ListAll handles GET /api/v1/get-all-notifications
func (h *NotificationHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.FromRequest(r)
	if err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	page, err := h.service.ListAll(r.Context(), params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewListResponse(page))
}

// MarkOwnRead handles PUT /api/v1/update-notification/{id}
func (h *NotificationHandler) MarkOwnRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := httputil.ParseUUID(w, id); !ok {
		return
	}

	n, err := h.service.MarkOwnRead(r.Context(), middleware.UserIDFromContext(r.Context()), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: n})
}

// MarkRead handles PUT /api/v1/admin/update-notification/{id}
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := httputil.ParseUUID(w, id); !ok {
		return
	}

	n, err := h.service.MarkRead(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: n})
}

// Announce handles POST /api/v1/admin/notifications
func (h *NotificationHandler) Announce(w http.ResponseWriter, r *http.Request) {
	var req AnnouncementRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	ev, err := req.event()
	if err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	n, err := h.service.Notify(r.Context(), service.NotifyInput{
		Audience: domain.Audience(req.Audience),
		UserID:   req.UserID,
		Title:    req.Title,
		CourseID: req.CourseID,
		Event:    ev,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: n})
}
