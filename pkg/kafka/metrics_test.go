package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestConsumerMetrics_TrackMessageOutcome(t *testing.T) {
	const topic, group = "metrics.test.topic", "metrics-group"

	ok := newConsumer(&fakeReader{}, topic, group, func(context.Context, *Event) error { return nil }, testLogger())
	ok.process(context.Background(), consumedMessage(t, topic))

	failing := newConsumer(&fakeReader{}, topic, group, func(context.Context, *Event) error { return errors.New("down") }, testLogger())
	failing.backoff = noBackoff
	failing.dlq = &fakeDLQ{}
	failing.process(context.Background(), consumedMessage(t, topic))

	assert.Equal(t, 2.0, testutil.ToFloat64(consumerReceived.WithLabelValues(topic, group)))
	assert.Equal(t, 1.0, testutil.ToFloat64(consumerProcessed.WithLabelValues(topic, group)))
	assert.Equal(t, 1.0, testutil.ToFloat64(consumerFailed.WithLabelValues(topic, group)))
	assert.Equal(t, 1.0, testutil.ToFloat64(consumerDeadLettered.WithLabelValues(topic, group)))
}

func TestMetrics_Lint(t *testing.T) {
	collectors := []prometheus.Collector{
		consumerReceived, consumerProcessed, consumerFailed, consumerDuplicate,
		consumerDeadLettered, consumerDuration, producerPublished, producerErrors, producerDuration,
	}
	for _, c := range collectors {
		problems, err := testutil.CollectAndLint(c)
		assert.NoError(t, err)
		assert.Empty(t, problems)
	}
}
