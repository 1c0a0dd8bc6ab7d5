package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/Duong-Anh-Duc/KH/pkg/errors"
	"github.com/Duong-Anh-Duc/KH/pkg/logger"
	"github.com/Duong-Anh-Duc/KH/pkg/pagination"
	"github.com/Duong-Anh-Duc/KH/pkg/validator"
)

// Response is the standard JSON response envelope.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error in the standard response format.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
// If encoding fails, the error is logged but headers are already sent so nothing can be done.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes err as the error envelope. Server-side failures are
// logged with the request-scoped logger, or fallback when none is set; the
// client only sees the generic message.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	appErr := apperrors.Classify(err)
	if appErr.Status >= http.StatusInternalServerError {
		l := logger.FromContext(r.Context())
		if l == slog.Default() && fallback != nil {
			l = fallback
		}
		l.ErrorContext(r.Context(), "request failed",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", appErr.Status),
		)
	}
	writeErrorBody(w, r, appErr.Status, &ErrorResponse{Code: appErr.Code, Message: appErr.Message})
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, status int, body *ErrorResponse) {
	body.RequestID = logger.CorrelationIDFromContext(r.Context())
	WriteJSON(w, status, Response{Error: body})
}

// ListResponse is the envelope for newest-first listings. NextCursor is only
// present when the caller asked for a bounded page and more rows exist.
type ListResponse[T any] struct {
	Data       []T    `json:"data"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// NewListResponse wraps a pagination page in the wire envelope. An empty
// page is rendered as an empty array, never null.
func NewListResponse[T any](page pagination.Page[T]) ListResponse[T] {
	data := page.Items
	if data == nil {
		data = []T{}
	}
	return ListResponse[T]{Data: data, NextCursor: page.NextCursor}
}

// WriteValidationError answers 400 for a request body that failed to
// decode or validate. Field failures are listed under "fields".
func WriteValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		valErr  *validator.ValidationError
		bodyErr *validator.BodyError
	)
	switch {
	case errors.As(err, &valErr):
		writeErrorBody(w, r, http.StatusBadRequest, &ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "request validation failed",
			Fields:  valErr.Fields(),
		})
	case errors.As(err, &bodyErr):
		writeErrorBody(w, r, http.StatusBadRequest, &ErrorResponse{Code: "INVALID_BODY", Message: bodyErr.Reason})
	default:
		appErr := apperrors.Classify(err)
		if appErr.Status >= http.StatusInternalServerError {
			appErr = apperrors.InvalidInput(err.Error())
		}
		writeErrorBody(w, r, appErr.Status, &ErrorResponse{Code: appErr.Code, Message: appErr.Message})
	}
}

// ParseUUID parses a path id. On failure it writes 400 INVALID_PARAMETER
// and returns false.
func ParseUUID(w http.ResponseWriter, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(param)
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{Code: "INVALID_PARAMETER", Message: "invalid UUID: " + param},
		})
		return uuid.Nil, false
	}
	return id, true
}
