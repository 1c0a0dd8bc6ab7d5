package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

const DLQTopicPrefix = TopicPrefix + ".dlq"

// Headers added to a dead-lettered copy. The original headers, key and value
// are kept untouched.
const (
	HeaderDLQTopic     = "dlq.original_topic"
	HeaderDLQPartition = "dlq.original_partition"
	HeaderDLQOffset    = "dlq.original_offset"
	HeaderDLQGroup     = "dlq.consumer_group"
	HeaderDLQError     = "dlq.error"
	HeaderDLQFailedAt  = "dlq.failed_at"
)

func DLQTopic(originalTopic string) string {
	return DLQTopicPrefix + "." + originalTopic
}

// DLQProducer parks messages a consumer gave up on.
type DLQProducer struct {
	writer messageWriter
	logger *slog.Logger
	now    func() time.Time
}

// NewDLQProducer writes one message per batch so a failure is parked
// before the consumer commits past it.
func NewDLQProducer(brokers []string, logger *slog.Logger) *DLQProducer {
	cfg := ProducerConfig{Brokers: brokers, BatchSize: 1, BatchTimeout: 100 * time.Millisecond}
	return &DLQProducer{writer: cfg.writer(), logger: logger, now: time.Now}
}

func deadLetter(msg kafka.Message, cause error, group string, at time.Time) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers)+6)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderDLQTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: HeaderDLQPartition, Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: HeaderDLQOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: HeaderDLQGroup, Value: []byte(group)},
		kafka.Header{Key: HeaderDLQFailedAt, Value: []byte(at.UTC().Format(time.RFC3339Nano))},
	)
	if cause != nil {
		headers = append(headers, kafka.Header{Key: HeaderDLQError, Value: []byte(cause.Error())})
	}
	return kafka.Message{
		Topic:   DLQTopic(msg.Topic),
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}
}

func (d *DLQProducer) Publish(ctx context.Context, msg kafka.Message, cause error, group string) error {
	parked := deadLetter(msg, cause, group, d.now())
	attrs := []any{
		slog.String("dlq_topic", parked.Topic),
		slog.String("original_topic", msg.Topic),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
		slog.String("consumer_group", group),
	}

	if err := d.writer.WriteMessages(ctx, parked); err != nil {
		d.logger.ErrorContext(ctx, "failed to publish message to DLQ", append(attrs, slog.String("error", err.Error()))...)
		return fmt.Errorf("publish to DLQ %s: %w", parked.Topic, err)
	}
	d.logger.WarnContext(ctx, "message sent to DLQ", attrs...)
	return nil
}

func (d *DLQProducer) Close() error {
	return d.writer.Close()
}
