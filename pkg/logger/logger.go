package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// New returns the process logger: JSON lines on stdout tagged with service.
func New(serviceName, level string) *slog.Logger {
	return NewWithWriter(serviceName, level, os.Stdout)
}

func NewWithWriter(serviceName, level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
	})
	return slog.New(h).With(slog.String("service", serviceName))
}

// ParseLevel accepts debug, info, warn or error in any case, and
// offsets like "warn+2". Anything else is info.
func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// fields are the request identifiers carried on a context. Each setter
// stores a copy so parent contexts are never mutated.
type fields struct {
	correlationID string
	userID        string
	connID        string
}

type fieldsKey struct{}
type loggerKey struct{}

func fieldsFrom(ctx context.Context) fields {
	f, _ := ctx.Value(fieldsKey{}).(fields)
	return f
}

func withFields(ctx context.Context, set func(*fields)) context.Context {
	f := fieldsFrom(ctx)
	set(&f)
	return context.WithValue(ctx, fieldsKey{}, f)
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return withFields(ctx, func(f *fields) { f.correlationID = id })
}

func CorrelationIDFromContext(ctx context.Context) string {
	return fieldsFrom(ctx).correlationID
}

func WithUserID(ctx context.Context, id string) context.Context {
	return withFields(ctx, func(f *fields) { f.userID = id })
}

func UserIDFromContext(ctx context.Context) string {
	return fieldsFrom(ctx).userID
}

// WithConnID tags the context with a realtime connection id.
func WithConnID(ctx context.Context, id string) context.Context {
	return withFields(ctx, func(f *fields) { f.connID = id })
}

func ConnIDFromContext(ctx context.Context) string {
	return fieldsFrom(ctx).connID
}

// Attrs returns the identifiers on ctx plus the active trace and span ids.
// Empty identifiers are omitted.
func Attrs(ctx context.Context) []slog.Attr {
	f := fieldsFrom(ctx)
	var attrs []slog.Attr
	for _, kv := range [...]struct{ key, val string }{
		{"correlation_id", f.correlationID},
		{"user_id", f.userID},
		{"conn_id", f.connID},
	} {
		if kv.val != "" {
			attrs = append(attrs, slog.String(kv.key, kv.val))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return attrs
}

// WithContext returns l carrying Attrs(ctx).
func WithContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	attrs := Attrs(ctx)
	if len(attrs) == 0 {
		return l
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return l.With(args...)
}

// NewContext stores a request-scoped logger for FromContext.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger stored by NewContext, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
