package service

import (
	"context"
	"io"
	"log/slog"

	"github.com/stretchr/testify/mock"

	"github.com/Duong-Anh-Duc/KH/internal/domain"
	"github.com/Duong-Anh-Duc/KH/pkg/pagination"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mock NotificationRepository ---

type mockNotificationRepo struct {
	mock.Mock
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *mockNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Notification), args.Error(1)
}

func (m *mockNotificationRepo) ListForUser(ctx context.Context, userID string, params pagination.Params) (domain.NotificationPage, error) {
	args := m.Called(ctx, userID, params)
	return args.Get(0).(domain.NotificationPage), args.Error(1)
}

func (m *mockNotificationRepo) ListAll(ctx context.Context, params pagination.Params) (domain.NotificationPage, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(domain.NotificationPage), args.Error(1)
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id string) (*domain.Notification, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Notification), args.Error(1)
}

func (m *mockNotificationRepo) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// --- Mock UserRepository ---

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) Create(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) Update(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}

// --- Mock SessionCache ---

type mockSessions struct {
	mock.Mock
}

func (m *mockSessions) Get(ctx context.Context, userID string) (*domain.Session, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *mockSessions) Set(ctx context.Context, s *domain.Session) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockSessions) Delete(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

// --- Mock LoginLimiter ---

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Check(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockLimiter) Fail(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockLimiter) Reset(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

// --- Mock realtime Publisher ---

type mockBus struct {
	mock.Mock
}

func (m *mockBus) Publish(ctx context.Context, room string, ev domain.Event) error {
	return m.Called(ctx, room, ev).Error(0)
}

// --- Mock EventPublisher ---

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishNotificationCreated(ctx context.Context, n *domain.Notification) error {
	return m.Called(ctx, n).Error(0)
}

// --- Mock Notifier ---

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, input NotifyInput) (*domain.Notification, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Notification), args.Error(1)
}
