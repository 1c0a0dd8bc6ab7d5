package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Duong-Anh-Duc/KH/internal/domain"
	pkgkafka "github.com/Duong-Anh-Duc/KH/pkg/kafka"
)

// TopicNotificationCreated carries every appended notification.
const TopicNotificationCreated = "elearning.notification.created"

// AggregateTypeNotification is the aggregate type of notification events.
const AggregateTypeNotification = "notification"

// SourceService identifies events emitted by this process.
const SourceService = "elearning-api"

// NotificationCreatedData is the payload for a notification.created event.
type NotificationCreatedData struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id,omitempty"`
	Audience string `json:"audience"`
	Title    string `json:"title"`
	Event    string `json:"event,omitempty"`
	CourseID string `json:"course_id,omitempty"`
}

type publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes notification domain events to Kafka.
type Producer struct {
	kafka  publisher
	logger *slog.Logger
}

// NewProducer creates a producer. A nil kafka producer makes every publish a
// no-op.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	p := &Producer{logger: logger}
	if kafka != nil {
		p.kafka = kafka
	}
	return p
}

// PublishNotificationCreated publishes a notification.created event.
func (p *Producer) PublishNotificationCreated(ctx context.Context, n *domain.Notification) error {
	if p == nil || p.kafka == nil {
		return nil
	}

	data := NotificationCreatedData{
		ID:       n.ID,
		UserID:   n.UserID,
		Audience: string(n.Audience),
		Title:    n.Title,
		Event:    n.Event,
		CourseID: n.CourseID,
	}

	evt, err := pkgkafka.NewEvent(ctx, TopicNotificationCreated, n.ID, AggregateTypeNotification, SourceService, data)
	if err != nil {
		return fmt.Errorf("create notification.created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicNotificationCreated, evt); err != nil {
		return fmt.Errorf("publish notification.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published notification.created event",
		slog.String("notification_id", n.ID),
	)
	return nil
}
