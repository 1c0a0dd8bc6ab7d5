package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Duong-Anh-Duc/KH/internal/domain"
	"github.com/Duong-Anh-Duc/KH/internal/realtime"
	"github.com/Duong-Anh-Duc/KH/internal/repository"
	apperrors "github.com/Duong-Anh-Duc/KH/pkg/errors"
	"github.com/Duong-Anh-Duc/KH/pkg/pagination"
)

// EventPublisher emits notification lifecycle events to the message bus.
type EventPublisher interface {
	PublishNotificationCreated(ctx context.Context, n *domain.Notification) error
}

// Notifier records a notification and pushes it to connected clients.
type Notifier interface {
	Notify(ctx context.Context, input NotifyInput) (*domain.Notification, error)
}

// NotifyInput describes one notification. The realtime event supplies the
// message text and the event name stored on the record.
type NotifyInput struct {
	// ID is optional. When set, a second Notify with the same ID returns the
	// stored record without appending or publishing again.
	ID       string
	Audience domain.Audience
	UserID   string
	Title    string
	CourseID string
	Price    *int64
	Event    domain.Event
}

// NotificationService owns the notification history and its realtime push.
type NotificationService struct {
	repo   repository.NotificationRepository
	bus    realtime.Publisher
	events EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

// NewNotificationService creates a notification service. events may be nil
// when Kafka is disabled.
func NewNotificationService(
	repo repository.NotificationRepository,
	bus realtime.Publisher,
	events EventPublisher,
	logger *slog.Logger,
) *NotificationService {
	return &NotificationService{
		repo:   repo,
		bus:    bus,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// Notify appends a notification and then publishes its event to the
// audience room. The durable write always happens first; a failed publish is
// logged and never fails the call since clients recover the record on their
// next fetch.
func (s *NotificationService) Notify(ctx context.Context, input NotifyInput) (*domain.Notification, error) {
	if input.Event == nil {
		return nil, apperrors.InvalidInput("notification event is required")
	}
	if !input.Audience.IsValid() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid audience %q", input.Audience))
	}
	if input.Audience == domain.AudienceUser && input.UserID == "" {
		return nil, apperrors.InvalidInput("user id is required for a personal notification")
	}
	if input.Title == "" {
		return nil, apperrors.InvalidInput("title is required")
	}

	id := input.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := s.now().UTC()
	n := &domain.Notification{
		ID:        id,
		Audience:  input.Audience,
		Title:     input.Title,
		Message:   input.Event.Text(),
		Status:    domain.StatusUnread,
		CourseID:  input.CourseID,
		Price:     input.Price,
		Event:     string(input.Event.Name()),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if input.Audience == domain.AudienceUser {
		n.UserID = input.UserID
	}

	if err := s.repo.Create(ctx, n); err != nil {
		if input.ID != "" && errors.Is(err, apperrors.ErrAlreadyExists) {
			return s.existing(ctx, input.ID)
		}
		return nil, fmt.Errorf("append notification: %w", err)
	}

	if err := s.bus.Publish(ctx, n.Room(), input.Event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish realtime event",
			slog.String("notification_id", n.ID),
			slog.String("room", n.Room()),
			slog.String("event", n.Event),
			slog.String("error", err.Error()),
		)
	}

	if s.events != nil {
		if err := s.events.PublishNotificationCreated(ctx, n); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish notification.created event",
				slog.String("notification_id", n.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "notification created",
		slog.String("notification_id", n.ID),
		slog.String("audience", string(n.Audience)),
		slog.String("event", n.Event),
	)
	return n, nil
}

func (s *NotificationService) existing(ctx context.Context, id string) (*domain.Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load stored notification: %w", err)
	}
	s.logger.DebugContext(ctx, "notification already recorded", slog.String("notification_id", id))
	return n, nil
}

// ListForUser returns the user's own notifications plus broadcasts, newest
// first.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, params pagination.Params) (domain.NotificationPage, error) {
	if userID == "" {
		return domain.NotificationPage{}, apperrors.InvalidInput("user id is required")
	}
	return s.repo.ListForUser(ctx, userID, params)
}

// ListAll returns every notification, newest first.
func (s *NotificationService) ListAll(ctx context.Context, params pagination.Params) (domain.NotificationPage, error) {
	return s.repo.ListAll(ctx, params)
}

// MarkOwnRead marks one of the caller's personal notifications read.
// Notifications owned by someone else are reported as missing; broadcasts are
// shared records and only an administrator may change them.
func (s *NotificationService) MarkOwnRead(ctx context.Context, userID, id string) (*domain.Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.Audience != domain.AudienceUser {
		return nil, apperrors.Forbidden("shared notifications can only be updated by an administrator")
	}
	if n.UserID != userID {
		return nil, apperrors.NotFound("notification", id)
	}
	return s.MarkRead(ctx, id)
}

// MarkRead marks any notification read. Marking it again is a no-op.
func (s *NotificationService) MarkRead(ctx context.Context, id string) (*domain.Notification, error) {
	n, err := s.repo.MarkRead(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "notification marked read", slog.String("notification_id", id))
	return n, nil
}
