package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestKafkaHeaderCarrier_SetReplacesExisting(t *testing.T) {
	headers := []kafka.Header{{Key: "event_type", Value: []byte("course.created")}}
	c := &KafkaHeaderCarrier{headers: &headers}

	c.Set("traceparent", "a")
	c.Set("traceparent", "b")

	assert.Equal(t, "b", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("tracestate"))
	assert.ElementsMatch(t, []string{"event_type", "traceparent"}, c.Keys())
}

func TestTraceContextSurvivesTheBroker(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sent := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	msg := kafka.Message{Topic: "elearning.notification.created"}
	injectTrace(sent, &msg)
	received := trace.SpanContextFromContext(extractTrace(context.Background(), msg))

	assert.True(t, received.IsRemote())
	assert.Equal(t, traceID, received.TraceID())
	assert.Equal(t, spanID, received.SpanID())
}

func TestExtractTrace_NoHeaders(t *testing.T) {
	ctx := extractTrace(context.Background(), kafka.Message{})

	assert.False(t, trace.SpanContextFromContext(ctx).IsValid())
}
