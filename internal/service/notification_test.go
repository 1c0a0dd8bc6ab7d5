package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Duong-Anh-Duc/KH/internal/domain"
	"github.com/Duong-Anh-Duc/KH/internal/realtime"
	apperrors "github.com/Duong-Anh-Duc/KH/pkg/errors"
	"github.com/Duong-Anh-Duc/KH/pkg/pagination"
)

func newNotificationService(repo *mockNotificationRepo, bus *mockBus, events EventPublisher) *NotificationService {
	svc := NewNotificationService(repo, bus, events, newTestLogger())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestNotify_AppendsBeforePublishing(t *testing.T) {
	repo := new(mockNotificationRepo)
	bus := new(mockBus)
	events := new(mockEvents)
	svc := newNotificationService(repo, bus, events)
	ctx := context.Background()
	ev := domain.OrderSuccess{Message: "You bought Go 101", CourseID: "c1"}
	price := int64(1999)

	mock.InOrder(
		repo.On("Create", ctx, mock.MatchedBy(func(n *domain.Notification) bool {
			return n.UserID == "u1" &&
				n.Audience == domain.AudienceUser &&
				n.Status == domain.StatusUnread &&
				n.Message == "You bought Go 101" &&
				n.Event == "orderSuccess" &&
				n.CourseID == "c1" &&
				*n.Price == 1999 &&
				n.ID != ""
		})).Return(nil),
		bus.On("Publish", ctx, "user:u1", ev).Return(nil),
	)
	events.On("PublishNotificationCreated", ctx, mock.Anything).Return(nil)

	n, err := svc.Notify(ctx, NotifyInput{
		Audience: domain.AudienceUser,
		UserID:   "u1",
		Title:    "Order",
		CourseID: "c1",
		Price:    &price,
		Event:    ev,
	})

	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), n.CreatedAt)
	repo.AssertExpectations(t)
	bus.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestNotify_PublishFailureIsNotSurfaced(t *testing.T) {
	repo := new(mockNotificationRepo)
	bus := new(mockBus)
	svc := newNotificationService(repo, bus, nil)
	ctx := context.Background()

	repo.On("Create", ctx, mock.Anything).Return(nil)
	bus.On("Publish", ctx, domain.RoomAllUsers, mock.Anything).Return(errors.New("redis down"))

	n, err := svc.Notify(ctx, NotifyInput{
		Audience: domain.AudienceAll,
		Title:    "New course",
		Event:    domain.NewCourse{Message: "Rust for Gophers is out"},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.AudienceAll, n.Audience)
}

func TestNotify_StoreFailureSkipsPublish(t *testing.T) {
	repo := new(mockNotificationRepo)
	bus := new(mockBus)
	svc := newNotificationService(repo, bus, nil)
	ctx := context.Background()

	repo.On("Create", ctx, mock.Anything).Return(apperrors.UpstreamUnavailable(errors.New("db down")))

	_, err := svc.Notify(ctx, NotifyInput{
		Audience: domain.AudienceUser,
		UserID:   "u1",
		Title:    "t",
		Event:    domain.NewLesson{Message: "m"},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestNotify_SharedAudiencesDropUserID(t *testing.T) {
	repo := new(mockNotificationRepo)
	bus := new(mockBus)
	svc := newNotificationService(repo, bus, nil)
	ctx := context.Background()

	repo.On("Create", ctx, mock.MatchedBy(func(n *domain.Notification) bool { return n.UserID == "" })).Return(nil)
	bus.On("Publish", ctx, domain.RoomAdmin, mock.Anything).Return(nil)

	_, err := svc.Notify(ctx, NotifyInput{
		Audience: domain.AudienceAdmin,
		UserID:   "u1",
		Title:    "New order",
		Event:    domain.OrderSuccess{Message: "u1 bought c1"},
	})

	require.NoError(t, err)
	repo.AssertExpectations(t)
	bus.AssertExpectations(t)
}

func TestNotify_Validation(t *testing.T) {
	svc := newNotificationService(new(mockNotificationRepo), new(mockBus), nil)
	ev := domain.NewCourse{Message: "m"}

	tests := []struct {
		name  string
		input NotifyInput
	}{
		{"missing event", NotifyInput{Audience: domain.AudienceAll, Title: "t"}},
		{"bad audience", NotifyInput{Audience: "everyone", Title: "t", Event: ev}},
		{"personal without user", NotifyInput{Audience: domain.AudienceUser, Title: "t", Event: ev}},
		{"missing title", NotifyInput{Audience: domain.AudienceAll, Event: ev}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Notify(context.Background(), tt.input)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestListForUser_PassesParams(t *testing.T) {
	repo := new(mockNotificationRepo)
	svc := newNotificationService(repo, new(mockBus), nil)
	ctx := context.Background()
	params := pagination.Params{Limit: 10}
	page := domain.NotificationPage{Items: []domain.Notification{{ID: "n1"}}}

	repo.On("ListForUser", ctx, "u1", params).Return(page, nil)

	got, err := svc.ListForUser(ctx, "u1", params)
	require.NoError(t, err)
	assert.Equal(t, page, got)

	_, err = svc.ListForUser(ctx, "", params)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestMarkOwnRead(t *testing.T) {
	ctx := context.Background()
	own := &domain.Notification{ID: "n1", UserID: "u1", Audience: domain.AudienceUser, Status: domain.StatusUnread}
	foreign := &domain.Notification{ID: "n2", UserID: "u2", Audience: domain.AudienceUser}
	broadcast := &domain.Notification{ID: "n3", Audience: domain.AudienceAll}

	t.Run("owner", func(t *testing.T) {
		repo := new(mockNotificationRepo)
		svc := newNotificationService(repo, new(mockBus), nil)
		read := *own
		read.Status = domain.StatusRead
		repo.On("GetByID", ctx, "n1").Return(own, nil)
		repo.On("MarkRead", ctx, "n1").Return(&read, nil)

		n, err := svc.MarkOwnRead(ctx, "u1", "n1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRead, n.Status)
	})

	t.Run("someone else's", func(t *testing.T) {
		repo := new(mockNotificationRepo)
		svc := newNotificationService(repo, new(mockBus), nil)
		repo.On("GetByID", ctx, "n2").Return(foreign, nil)

		_, err := svc.MarkOwnRead(ctx, "u1", "n2")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		repo.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything)
	})

	t.Run("broadcast", func(t *testing.T) {
		repo := new(mockNotificationRepo)
		svc := newNotificationService(repo, new(mockBus), nil)
		repo.On("GetByID", ctx, "n3").Return(broadcast, nil)

		_, err := svc.MarkOwnRead(ctx, "u1", "n3")
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("missing", func(t *testing.T) {
		repo := new(mockNotificationRepo)
		svc := newNotificationService(repo, new(mockBus), nil)
		repo.On("GetByID", ctx, "nx").Return(nil, apperrors.NotFound("notification", "nx"))

		_, err := svc.MarkOwnRead(ctx, "u1", "nx")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestMarkRead_TwiceIsNotAnError(t *testing.T) {
	repo := new(mockNotificationRepo)
	svc := newNotificationService(repo, new(mockBus), nil)
	ctx := context.Background()
	read := &domain.Notification{ID: "n1", Status: domain.StatusRead}
	repo.On("MarkRead", ctx, "n1").Return(read, nil).Twice()

	first, err := svc.MarkRead(ctx, "n1")
	require.NoError(t, err)
	second, err := svc.MarkRead(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
	repo.AssertExpectations(t)
}

type recordingSender struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *recordingSender) ID() string { return "conn-1" }

func (s *recordingSender) Enqueue(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return true
}

func (s *recordingSender) events(t *testing.T) []domain.EventName {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]domain.EventName, 0, len(s.frames))
	for _, b := range s.frames {
		ev, err := domain.DecodeFrame(b)
		require.NoError(t, err)
		names = append(names, ev.Name())
	}
	return names
}

func TestNotify_ThenListForUser_NewestFirst(t *testing.T) {
	repo := &memoryNotificationRepo{}
	hub := realtime.NewHub(newTestLogger())
	conn := &recordingSender{}
	hub.Register(conn)
	require.NoError(t, hub.Join(conn.ID(), domain.UserRoom("u1")))
	require.NoError(t, hub.Join(conn.ID(), domain.RoomAllUsers))

	svc := NewNotificationService(repo, hub, nil, newTestLogger())
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	ctx := context.Background()

	older, err := svc.Notify(ctx, NotifyInput{
		Audience: domain.AudienceAll,
		Title:    "New Course",
		Event:    domain.NewCourse{Message: "Go 101 is out", CourseID: "c1"},
	})
	require.NoError(t, err)
	_, err = svc.Notify(ctx, NotifyInput{
		Audience: domain.AudienceUser,
		UserID:   "u2",
		Title:    "Order Confirmed",
		Event:    domain.OrderSuccess{Message: "not yours", CourseID: "c1"},
	})
	require.NoError(t, err)
	newer, err := svc.Notify(ctx, NotifyInput{
		Audience: domain.AudienceUser,
		UserID:   "u1",
		Title:    "Order Confirmed",
		Event:    domain.OrderSuccess{Message: "You bought Go 101", CourseID: "c1"},
	})
	require.NoError(t, err)

	page, err := svc.ListForUser(ctx, "u1", pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, newer.ID, page.Items[0].ID)
	assert.Equal(t, older.ID, page.Items[1].ID)
	assert.Empty(t, page.NextCursor)

	first, err := svc.ListForUser(ctx, "u1", pagination.Params{Limit: 1})
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	assert.Equal(t, newer.ID, first.Items[0].ID)
	require.NotEmpty(t, first.NextCursor)

	after, err := pagination.Decode(first.NextCursor)
	require.NoError(t, err)
	rest, err := svc.ListForUser(ctx, "u1", pagination.Params{Limit: 1, After: &after})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.Equal(t, older.ID, rest.Items[0].ID)

	assert.Equal(t, []domain.EventName{domain.EventNewCourse, domain.EventOrderSuccess}, conn.events(t))
}

func TestNotify_WithIDIsStoredOnce(t *testing.T) {
	repo := &memoryNotificationRepo{}
	bus := new(mockBus)
	svc := NewNotificationService(repo, bus, nil, newTestLogger())
	ctx := context.Background()
	bus.On("Publish", ctx, "user:u1", mock.Anything).Return(nil).Once()

	input := NotifyInput{
		ID:       "7b0c8a8e-2f4d-5c6e-9a1b-3c4d5e6f7a8b",
		Audience: domain.AudienceUser,
		UserID:   "u1",
		Title:    "Order Confirmed",
		Event:    domain.OrderSuccess{Message: "You bought Go 101", CourseID: "c1"},
	}
	first, err := svc.Notify(ctx, input)
	require.NoError(t, err)
	second, err := svc.Notify(ctx, input)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	page, err := repo.ListAll(ctx, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	bus.AssertExpectations(t)
}

func TestNotify_DuplicateWithoutIDIsAnError(t *testing.T) {
	repo := new(mockNotificationRepo)
	svc := newNotificationService(repo, new(mockBus), nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(apperrors.AlreadyExists("notification", "id", "x"))

	_, err := svc.Notify(context.Background(), NotifyInput{
		Audience: domain.AudienceAll,
		Title:    "New Course",
		Event:    domain.NewCourse{Message: "m"},
	})

	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}
