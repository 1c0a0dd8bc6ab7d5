package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Duong-Anh-Duc/KH/pkg/logger"
)

func TestProducerConfig_Writer(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"broker1:9092", "broker2:9092"})
	w := cfg.writer()

	assert.NotNil(t, w.Addr)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
	assert.Equal(t, 100, w.BatchSize)
	assert.Equal(t, 10*time.Millisecond, w.BatchTimeout)
	assert.False(t, w.Async)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "elearning", TopicPrefix)
	assert.Equal(t, "elearning.notification.created", Topic("notification", "created"))
	assert.Equal(t, "elearning.session.revoked", Topic("session", "revoked"))
}

func TestNewProducer_ClosesWithoutBroker(t *testing.T) {
	p := NewProducer(DefaultProducerConfig([]string{"localhost:19092"}), nil)

	assert.Equal(t, []string{"localhost:19092"}, p.brokers)
	assert.NoError(t, p.Close())
}

func TestPingBrokers_NoneConfigured(t *testing.T) {
	for _, brokers := range [][]string{nil, {}} {
		err := PingBrokers(t.Context(), brokers)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no brokers configured")
	}
}

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestProducer_Publish_SetsKeyAndHeaders(t *testing.T) {
	w := &recordingWriter{}
	p := &Producer{writer: w, logger: testLogger()}

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	evt, err := NewEvent(ctx, "notification.created", "notif-1", "notification", "elearning-api", map[string]string{"title": "Course purchased"})
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), "elearning.notification.created", evt))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "elearning.notification.created", msg.Topic)
	assert.Equal(t, "notif-1", string(msg.Key))

	headers := headerMap(msg)
	assert.Equal(t, "notification.created", headers[HeaderEventType])
	assert.Equal(t, "elearning-api", headers[HeaderSource])
	assert.Equal(t, "corr-1", headers[HeaderCorrelationID])
}

func TestProducer_Publish_WrapsWriterError(t *testing.T) {
	p := &Producer{writer: &recordingWriter{err: errors.New("leader not available")}, logger: testLogger()}
	evt, err := NewEvent(context.Background(), "notification.created", "notif-1", "notification", "svc", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), "topic-a", evt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic-a")
}
