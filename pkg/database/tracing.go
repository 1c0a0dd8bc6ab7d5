package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.mongodb.org/mongo-driver/v2/event"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Duong-Anh-Duc/KH/pkg/database"

var queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "db_query_duration_seconds",
	Help:    "Store round-trip time by backend and operation.",
	Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
}, []string{"system", "operation"})

type slowQueryLog struct {
	threshold time.Duration
	logger    *slog.Logger
}

var slowQueries atomic.Pointer[slowQueryLog]

// SetSlowQueryLogging logs every postgres or mongo call slower than
// threshold at warn level. A zero threshold turns it off.
func SetSlowQueryLogging(threshold time.Duration, logger *slog.Logger) {
	if threshold <= 0 || logger == nil {
		slowQueries.Store(nil)
		return
	}
	slowQueries.Store(&slowQueryLog{threshold: threshold, logger: logger})
}

// statement is one store call as seen by spans, metrics and the slow log.
type statement struct {
	system    string
	operation string
	text      string
}

func (s statement) start(ctx context.Context) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", s.system),
		attribute.String("db.operation", s.operation),
	}
	if s.text != "" {
		attrs = append(attrs, attribute.String("db.statement", s.text))
	}
	return otel.Tracer(tracerName).Start(ctx, "db."+s.operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func (s statement) finish(ctx context.Context, span trace.Span, elapsed time.Duration, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	queryDuration.WithLabelValues(s.system, s.operation).Observe(elapsed.Seconds())

	slow := slowQueries.Load()
	if slow == nil || elapsed < slow.threshold {
		return
	}
	attrs := []slog.Attr{
		slog.String("db_system", s.system),
		slog.String("operation", s.operation),
		slog.Duration("duration", elapsed),
	}
	if s.text != "" {
		attrs = append(attrs, slog.String("statement", s.text))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	slow.logger.LogAttrs(ctx, slog.LevelWarn, "slow query", attrs...)
}

// TraceQuery wraps one postgres call:
//
//	ctx, end := database.TraceQuery(ctx, "MarkNotificationRead", query)
//	defer func() { end(err) }()
func TraceQuery(ctx context.Context, operation, sql string) (context.Context, func(error)) {
	st := statement{system: "postgresql", operation: operation, text: sql}
	begin := time.Now()
	ctx, span := st.start(ctx)
	return ctx, func(err error) { st.finish(ctx, span, time.Since(begin), err) }
}

// MongoMonitor reports every mongo command through the same spans, metrics
// and slow-query log as postgres calls. Attach it with
// options.Client().SetMonitor.
func MongoMonitor() *event.CommandMonitor {
	type inflight struct {
		st    statement
		ctx   context.Context
		span  trace.Span
		begin time.Time
	}
	var calls sync.Map
	key := func(conn string, id int64) string { return fmt.Sprintf("%s/%d", conn, id) }

	end := func(conn string, id int64, err error) {
		v, ok := calls.LoadAndDelete(key(conn, id))
		if !ok {
			return
		}
		c := v.(*inflight)
		c.st.finish(c.ctx, c.span, time.Since(c.begin), err)
	}

	return &event.CommandMonitor{
		Started: func(ctx context.Context, e *event.CommandStartedEvent) {
			st := statement{system: "mongodb", operation: e.CommandName}
			sctx, span := st.start(ctx)
			span.SetAttributes(attribute.String("db.name", e.DatabaseName))
			calls.Store(key(e.ConnectionID, e.RequestID), &inflight{st: st, ctx: sctx, span: span, begin: time.Now()})
		},
		Succeeded: func(_ context.Context, e *event.CommandSucceededEvent) {
			end(e.ConnectionID, e.RequestID, nil)
		},
		Failed: func(_ context.Context, e *event.CommandFailedEvent) {
			end(e.ConnectionID, e.RequestID, e.Failure)
		},
	}
}
