package service

import (
	"context"
	"sort"
	"sync"

	"github.com/Duong-Anh-Duc/KH/internal/domain"
	apperrors "github.com/Duong-Anh-Duc/KH/pkg/errors"
	"github.com/Duong-Anh-Duc/KH/pkg/pagination"
)

// memoryNotificationRepo keeps notifications in a slice with the same
// ordering and duplicate rules as the database repositories.
type memoryNotificationRepo struct {
	mu   sync.Mutex
	rows []domain.Notification
}

func (r *memoryNotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == n.ID {
			return apperrors.AlreadyExists("notification", "id", n.ID)
		}
	}
	r.rows = append(r.rows, *n)
	return nil
}

func (r *memoryNotificationRepo) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			n := row
			return &n, nil
		}
	}
	return nil, apperrors.NotFound("notification", id)
}

func (r *memoryNotificationRepo) ListForUser(_ context.Context, userID string, params pagination.Params) (domain.NotificationPage, error) {
	return r.list(params, func(n domain.Notification) bool { return n.VisibleTo(userID) }), nil
}

func (r *memoryNotificationRepo) ListAll(_ context.Context, params pagination.Params) (domain.NotificationPage, error) {
	return r.list(params, func(domain.Notification) bool { return true }), nil
}

func (r *memoryNotificationRepo) list(params pagination.Params, keep func(domain.Notification) bool) domain.NotificationPage {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rows []domain.Notification
	for _, n := range r.rows {
		if keep(n) && (params.After == nil || olderThan(n, *params.After)) {
			rows = append(rows, n)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return olderThan(rows[j], rows[i].Cursor()) })
	if !params.Unbounded() && len(rows) > params.Limit+1 {
		rows = rows[:params.Limit+1]
	}
	return pagination.NewPage(rows, params, domain.Notification.Cursor)
}

func olderThan(n domain.Notification, c pagination.Cursor) bool {
	if n.CreatedAt.Equal(c.CreatedAt) {
		return n.ID < c.ID
	}
	return n.CreatedAt.Before(c.CreatedAt)
}

func (r *memoryNotificationRepo) MarkRead(_ context.Context, id string) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].ID == id {
			r.rows[i].Status = domain.StatusRead
			n := r.rows[i]
			return &n, nil
		}
	}
	return nil, apperrors.NotFound("notification", id)
}

func (r *memoryNotificationRepo) Ping(context.Context) error { return nil }
