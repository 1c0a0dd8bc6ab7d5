package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	consumerLabels = []string{"topic", "consumer_group"}

	// Bridge handlers write one notification row and one realtime publish,
	// so anything past a second is an outlier.
	handlerBuckets = []float64{.002, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}

	consumerReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_messages_received_total",
		Help: "Messages fetched from the broker.",
	}, consumerLabels)

	consumerProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_messages_processed_total",
		Help: "Messages handled and committed.",
	}, consumerLabels)

	consumerFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_messages_failed_total",
		Help: "Messages that exhausted their retries.",
	}, consumerLabels)

	consumerDuplicate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_messages_duplicate_total",
		Help: "Redeliveries skipped by the idempotency guard.",
	}, consumerLabels)

	consumerDeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_dlq_published_total",
		Help: "Messages parked on the dead-letter topic.",
	}, consumerLabels)

	consumerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kafka_consumer_processing_duration_seconds",
		Help:    "Handler run time including retries.",
		Buckets: handlerBuckets,
	}, consumerLabels)

	producerPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_producer_messages_published_total",
		Help: "Messages written to the broker.",
	}, []string{"topic"})

	producerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_producer_publish_errors_total",
		Help: "Failed broker writes.",
	}, []string{"topic"})

	producerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kafka_producer_publish_duration_seconds",
		Help:    "Broker write latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
)
