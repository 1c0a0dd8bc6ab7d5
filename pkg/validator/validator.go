// Package validator decodes JSON request bodies and checks them against
// go-playground/validator struct tags.
package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes bounds JSON request bodies read by DecodeAndValidate.
const MaxBodyBytes = 1 << 20

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Errors name fields the way clients send them.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// ValidationError lists the fields that failed their tags.
type ValidationError struct {
	Errors validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("field '%s' %s", fe.Field(), describe(fe)))
	}
	return strings.Join(msgs, "; ")
}

// Fields maps each failing field to a readable reason.
func (e *ValidationError) Fields() map[string]string {
	fields := make(map[string]string, len(e.Errors))
	for _, fe := range e.Errors {
		fields[fe.Field()] = describe(fe)
	}
	return fields
}

// BodyError is a request body that could not be decoded at all.
type BodyError struct {
	Reason string
	Err    error
}

func (e *BodyError) Error() string { return e.Reason }
func (e *BodyError) Unwrap() error { return e.Err }

var messages = map[string]string{
	"required":    "is required",
	"required_if": "is required",
	"notblank":    "is required",
	"email":       "must be a valid email address",
	"uuid":        "must be a valid UUID",
	"url":         "must be a valid URL",
	"http_url":    "must be a valid URL",
	"min":         "must be at least %s characters",
	"max":         "must be at most %s characters",
	"gte":         "must be greater than or equal to %s",
	"lte":         "must be less than or equal to %s",
	"nefield":     "must differ from %s",
	"oneof":       "must be one of: %s",
}

func describe(fe validator.FieldError) string {
	msg, ok := messages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, fe.Param())
	}
	return msg
}

// Validate checks s against its validate tags.
func Validate(s any) error {
	err := validate.Struct(s)
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return &ValidationError{Errors: ve}
	}
	return err
}

// DecodeAndValidate reads at most MaxBodyBytes of JSON into dst and
// validates it. Decoding failures come back as *BodyError, tag failures as
// *ValidationError.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return bodyError(err)
	}
	return Validate(dst)
}

func bodyError(err error) *BodyError {
	var (
		tooLarge *http.MaxBytesError
		syntax   *json.SyntaxError
		typ      *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, io.EOF):
		return &BodyError{Reason: "request body is empty", Err: err}
	case errors.As(err, &tooLarge):
		return &BodyError{Reason: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), Err: err}
	case errors.As(err, &syntax), errors.Is(err, io.ErrUnexpectedEOF):
		return &BodyError{Reason: "request body is not valid JSON", Err: err}
	case errors.As(err, &typ) && typ.Field != "":
		return &BodyError{Reason: fmt.Sprintf("field '%s' must be %s", typ.Field, typ.Type), Err: err}
	}
	return &BodyError{Reason: "decode request body: " + err.Error(), Err: err}
}
