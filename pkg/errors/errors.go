// Package errors defines the error kinds the API reports and how each one
// maps onto an HTTP status and a stable machine-readable code.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound            = errors.New("resource not found")
	ErrAlreadyExists       = errors.New("resource already exists")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidToken        = errors.New("invalid token")
	ErrSessionExpired      = errors.New("session expired")
	ErrForbidden           = errors.New("forbidden")
	ErrInternal            = errors.New("internal error")
	ErrConflict            = errors.New("conflict")
	ErrGone                = errors.New("gone")
	ErrTooManyRequests     = errors.New("too many requests")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// AppError is an error with its wire code and HTTP status attached.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

type kind struct {
	sentinel error
	code     string
	status   int
	message  string
}

func (k kind) new(message string) *AppError {
	if message == "" {
		message = k.message
	}
	return &AppError{Code: k.code, Message: message, Status: k.status, Err: k.sentinel}
}

// kinds is searched in order by Classify.
var kinds = []kind{
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound, "resource not found"},
	{ErrAlreadyExists, "ALREADY_EXISTS", http.StatusConflict, "resource already exists"},
	{ErrConflict, "CONFLICT", http.StatusConflict, "conflicting state"},
	{ErrGone, "GONE", http.StatusGone, "resource is gone"},
	{ErrInvalidCredentials, "INVALID_CREDENTIALS", http.StatusBadRequest, "invalid email or password"},
	{ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest, "invalid input"},
	{ErrInvalidToken, "INVALID_TOKEN", http.StatusUnauthorized, "token is invalid or expired"},
	{ErrSessionExpired, "SESSION_EXPIRED", http.StatusUnauthorized, "session expired, please login again"},
	{ErrUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized, "authentication required"},
	{ErrForbidden, "FORBIDDEN", http.StatusForbidden, "forbidden"},
	{ErrTooManyRequests, "TOO_MANY_REQUESTS", http.StatusTooManyRequests, "too many requests"},
	{ErrUpstreamUnavailable, "UPSTREAM_UNAVAILABLE", http.StatusServiceUnavailable, "a backing service is unavailable"},
}

func kindOf(sentinel error) kind {
	for _, k := range kinds {
		if k.sentinel == sentinel {
			return k
		}
	}
	return kind{ErrInternal, "INTERNAL_ERROR", http.StatusInternalServerError, "an internal error occurred"}
}

func NotFound(resource, id string) *AppError {
	return kindOf(ErrNotFound).new(fmt.Sprintf("%s with id %s not found", resource, id))
}

func AlreadyExists(resource, field, value string) *AppError {
	return kindOf(ErrAlreadyExists).new(fmt.Sprintf("%s with %s %q already exists", resource, field, value))
}

// Conflict is a state conflict other than a duplicate.
func Conflict(message string) *AppError { return kindOf(ErrConflict).new(message) }

func Gone(message string) *AppError { return kindOf(ErrGone).new(message) }

func InvalidInput(message string) *AppError { return kindOf(ErrInvalidInput).new(message) }

// InvalidCredentials never says whether the email or the password was wrong.
func InvalidCredentials() *AppError { return kindOf(ErrInvalidCredentials).new("") }

func Unauthorized(message string) *AppError { return kindOf(ErrUnauthorized).new(message) }

// InvalidToken is a token that failed signature or expiry checks.
func InvalidToken() *AppError { return kindOf(ErrInvalidToken).new("") }

// SessionExpired is a valid token whose session record is gone.
func SessionExpired() *AppError { return kindOf(ErrSessionExpired).new("") }

func Forbidden(message string) *AppError { return kindOf(ErrForbidden).new(message) }

func TooManyRequests(message string) *AppError { return kindOf(ErrTooManyRequests).new(message) }

// Internal hides err behind a generic message.
func Internal(err error) *AppError {
	e := kindOf(ErrInternal).new("")
	e.Err = err
	return e
}

// UpstreamUnavailable reports a failing store or downstream dependency.
func UpstreamUnavailable(err error) *AppError {
	e := kindOf(ErrUpstreamUnavailable).new("")
	e.Err = errors.Join(ErrUpstreamUnavailable, err)
	return e
}

func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// Classify returns err as an AppError. An AppError anywhere in the chain is
// returned as is. A wrapped sentinel gets its kind's code and status, with
// the error text as message only for invalid input. Anything else is
// Internal.
func Classify(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, k := range kinds {
		if !errors.Is(err, k.sentinel) {
			continue
		}
		e := k.new("")
		if k.sentinel == ErrInvalidInput {
			e.Message = err.Error()
		}
		e.Err = err
		return e
	}
	return Internal(err)
}

// statusKinds picks the kind for a peer status when its code is unknown.
var statusKinds = map[int]error{
	http.StatusBadRequest:      ErrInvalidInput,
	http.StatusUnauthorized:    ErrUnauthorized,
	http.StatusForbidden:       ErrForbidden,
	http.StatusNotFound:        ErrNotFound,
	http.StatusConflict:        ErrConflict,
	http.StatusGone:            ErrGone,
	http.StatusTooManyRequests: ErrTooManyRequests,
}

// FromStatus rebuilds an AppError received from a peer that writes the same
// envelope. A known code wins over the status. Any 5xx becomes
// UpstreamUnavailable, so callers never report a peer's outage as their own
// internal error. Returns nil for a status with no matching kind.
func FromStatus(status int, code, message string) *AppError {
	if status >= http.StatusInternalServerError {
		return UpstreamUnavailable(fmt.Errorf("status %d (%s): %s", status, code, message))
	}
	for _, k := range kinds {
		if k.code == code && k.status == status {
			return k.new(message)
		}
	}
	if sentinel, ok := statusKinds[status]; ok {
		return kindOf(sentinel).new(message)
	}
	return nil
}

func HTTPStatus(err error) int {
	return Classify(err).Status
}

// IsAuthFailure reports whether err means the caller's credentials were
// rejected and a token refresh may help.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrUnauthorized)
}
