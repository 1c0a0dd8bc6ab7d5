package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Duong-Anh-Duc/KH/internal/domain"
	"github.com/Duong-Anh-Duc/KH/internal/service"
	pkgkafka "github.com/Duong-Anh-Duc/KH/pkg/kafka"
)

// Topics consumed from the catalog and ordering services.
const (
	TopicOrderCompleted  = "elearning.order.completed"
	TopicCourseCreated   = "elearning.course.created"
	TopicCourseUpdated   = "elearning.course.updated"
	TopicLessonCreated   = "elearning.lesson.created"
	TopicQuestionReplied = "elearning.question.replied"
)

// Topics lists every topic the bridge subscribes to.
var Topics = []string{
	TopicOrderCompleted,
	TopicCourseCreated,
	TopicCourseUpdated,
	TopicLessonCreated,
	TopicQuestionReplied,
}

type orderCompletedPayload struct {
	OrderID    string `json:"order_id"`
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	CourseID   string `json:"course_id"`
	CourseName string `json:"course_name"`
	Price      *int64 `json:"price"`
}

type coursePayload struct {
	CourseID string `json:"course_id"`
	Name     string `json:"name"`
}

type lessonCreatedPayload struct {
	CourseID    string `json:"course_id"`
	CourseName  string `json:"course_name"`
	LessonID    string `json:"lesson_id"`
	LessonTitle string `json:"lesson_title"`
}

type questionRepliedPayload struct {
	CourseID    string `json:"course_id"`
	QuestionID  string `json:"question_id"`
	AskerID     string `json:"asker_id"`
	ReplierName string `json:"replier_name"`
}

// ConsumerHandler turns external domain events into notifications.
type ConsumerHandler struct {
	notifier service.Notifier
	logger   *slog.Logger
}

func NewConsumerHandler(notifier service.Notifier, logger *slog.Logger) *ConsumerHandler {
	return &ConsumerHandler{notifier: notifier, logger: logger}
}

// Handle routes an event by its type. Unknown types are logged and skipped.
func (h *ConsumerHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicOrderCompleted:
		return h.handleOrderCompleted(ctx, event)
	case TopicCourseCreated:
		return h.handleCourseCreated(ctx, event)
	case TopicCourseUpdated:
		return h.handleCourseUpdated(ctx, event)
	case TopicLessonCreated:
		return h.handleLessonCreated(ctx, event)
	case TopicQuestionReplied:
		return h.handleQuestionReplied(ctx, event)
	default:
		h.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

// handleOrderCompleted confirms the purchase to the buyer and tells the
// admins about the sale. A retry after a failed admin notice finds the
// buyer's record already stored under the same id and moves on.
func (h *ConsumerHandler) handleOrderCompleted(ctx context.Context, event *pkgkafka.Event) error {
	var p orderCompletedPayload
	if err := event.UnmarshalData(&p); err != nil {
		return fmt.Errorf("decode order.completed payload: %w", err)
	}
	if p.UserID == "" || p.CourseID == "" {
		h.skip(ctx, event, "missing user_id or course_id")
		return nil
	}

	_, err := h.notifier.Notify(ctx, service.NotifyInput{
		ID:       notificationID(event, "buyer"),
		Audience: domain.AudienceUser,
		UserID:   p.UserID,
		Title:    "Order Confirmed",
		CourseID: p.CourseID,
		Price:    p.Price,
		Event: domain.OrderSuccess{
			Message:  fmt.Sprintf("You have successfully purchased %s", courseLabel(p.CourseName, p.CourseID)),
			CourseID: p.CourseID,
			OrderID:  p.OrderID,
		},
	})
	if err != nil {
		return fmt.Errorf("notify buyer: %w", err)
	}

	_, err = h.notifier.Notify(ctx, service.NotifyInput{
		ID:       notificationID(event, "admin"),
		Audience: domain.AudienceAdmin,
		Title:    "New Order",
		CourseID: p.CourseID,
		Price:    p.Price,
		Event: domain.OrderSuccess{
			Message:  fmt.Sprintf("You have a new order from %s for %s", nonEmpty(p.UserName, p.UserID), courseLabel(p.CourseName, p.CourseID)),
			CourseID: p.CourseID,
			OrderID:  p.OrderID,
		},
	})
	if err != nil {
		return fmt.Errorf("notify admins: %w", err)
	}
	return nil
}

func (h *ConsumerHandler) handleCourseCreated(ctx context.Context, event *pkgkafka.Event) error {
	var p coursePayload
	if err := event.UnmarshalData(&p); err != nil {
		return fmt.Errorf("decode course.created payload: %w", err)
	}
	if p.CourseID == "" {
		h.skip(ctx, event, "missing course_id")
		return nil
	}
	_, err := h.notifier.Notify(ctx, service.NotifyInput{
		ID:       notificationID(event, "all"),
		Audience: domain.AudienceAll,
		Title:    "New Course",
		CourseID: p.CourseID,
		Event: domain.NewCourse{
			Message:    fmt.Sprintf("A new course is available: %s", courseLabel(p.Name, p.CourseID)),
			CourseID:   p.CourseID,
			CourseName: p.Name,
		},
	})
	if err != nil {
		return fmt.Errorf("notify new course: %w", err)
	}
	return nil
}

func (h *ConsumerHandler) handleCourseUpdated(ctx context.Context, event *pkgkafka.Event) error {
	var p coursePayload
	if err := event.UnmarshalData(&p); err != nil {
		return fmt.Errorf("decode course.updated payload: %w", err)
	}
	if p.CourseID == "" {
		h.skip(ctx, event, "missing course_id")
		return nil
	}
	_, err := h.notifier.Notify(ctx, service.NotifyInput{
		ID:       notificationID(event, "all"),
		Audience: domain.AudienceAll,
		Title:    "Course Updated",
		CourseID: p.CourseID,
		Event: domain.CourseUpdated{
			Message:  fmt.Sprintf("%s has been updated", courseLabel(p.Name, p.CourseID)),
			CourseID: p.CourseID,
		},
	})
	if err != nil {
		return fmt.Errorf("notify course update: %w", err)
	}
	return nil
}

func (h *ConsumerHandler) handleLessonCreated(ctx context.Context, event *pkgkafka.Event) error {
	var p lessonCreatedPayload
	if err := event.UnmarshalData(&p); err != nil {
		return fmt.Errorf("decode lesson.created payload: %w", err)
	}
	if p.CourseID == "" {
		h.skip(ctx, event, "missing course_id")
		return nil
	}
	_, err := h.notifier.Notify(ctx, service.NotifyInput{
		ID:       notificationID(event, "all"),
		Audience: domain.AudienceAll,
		Title:    "New Lesson",
		CourseID: p.CourseID,
		Event: domain.NewLesson{
			Message:  fmt.Sprintf("New lesson %q added to %s", p.LessonTitle, courseLabel(p.CourseName, p.CourseID)),
			CourseID: p.CourseID,
			LessonID: p.LessonID,
		},
	})
	if err != nil {
		return fmt.Errorf("notify new lesson: %w", err)
	}
	return nil
}

func (h *ConsumerHandler) handleQuestionReplied(ctx context.Context, event *pkgkafka.Event) error {
	var p questionRepliedPayload
	if err := event.UnmarshalData(&p); err != nil {
		return fmt.Errorf("decode question.replied payload: %w", err)
	}
	if p.AskerID == "" {
		h.skip(ctx, event, "missing asker_id")
		return nil
	}
	_, err := h.notifier.Notify(ctx, service.NotifyInput{
		ID:       notificationID(event, "asker"),
		Audience: domain.AudienceUser,
		UserID:   p.AskerID,
		Title:    "New Question Reply",
		CourseID: p.CourseID,
		Event: domain.NewQuestionReply{
			Message:    fmt.Sprintf("%s replied to your question", nonEmpty(p.ReplierName, "Someone")),
			CourseID:   p.CourseID,
			QuestionID: p.QuestionID,
		},
	})
	if err != nil {
		return fmt.Errorf("notify question reply: %w", err)
	}
	return nil
}

func (h *ConsumerHandler) skip(ctx context.Context, event *pkgkafka.Event, reason string) {
	h.logger.WarnContext(ctx, "skipping event",
		slog.String("event_type", event.EventType),
		slog.String("event_id", event.EventID),
		slog.String("reason", reason),
	)
}

// notificationNamespace seeds the ids derived from Kafka event ids.
var notificationNamespace = uuid.MustParse("6f1d2a4e-8c3b-4f5a-9e7d-2b1c0a9f8e31")

// notificationID derives a stable notification id from the event id and
// the recipient, so a redelivered event stores nothing new. Events without
// an id get a random one.
func notificationID(event *pkgkafka.Event, recipient string) string {
	if event.EventID == "" {
		return ""
	}
	return uuid.NewSHA1(notificationNamespace, []byte(event.EventID+"/"+recipient)).String()
}

func courseLabel(name, id string) string {
	if name != "" {
		return name
	}
	return "course " + id
}

func nonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// ConsumerOptions configures NewConsumers.
type ConsumerOptions struct {
	Brokers     []string
	GroupID     string
	Idempotency pkgkafka.IdempotencyStore
	DLQ         *pkgkafka.DLQProducer
}

// NewConsumers creates one consumer per subscribed topic. When an
// idempotency store is given, redelivered events are skipped.
func NewConsumers(opts ConsumerOptions, handler *ConsumerHandler, logger *slog.Logger) []*pkgkafka.Consumer {
	handle := pkgkafka.Handler(handler.Handle)
	if opts.Idempotency != nil {
		handle = pkgkafka.IdempotentHandler(opts.Idempotency, handle, logger)
	}

	consumers := make([]*pkgkafka.Consumer, 0, len(Topics))
	for _, topic := range Topics {
		cfg := pkgkafka.ConsumerConfig{
			Brokers:  opts.Brokers,
			GroupID:  opts.GroupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
			DLQ:      opts.DLQ,
		}
		consumers = append(consumers, pkgkafka.NewConsumer(cfg, handle, logger))
	}
	return consumers
}
