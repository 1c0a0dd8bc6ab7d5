package repository

import (
	"context"

	"github.com/Duong-Anh-Duc/KH/internal/domain"
	"github.com/Duong-Anh-Duc/KH/pkg/pagination"
)

// NotificationRepository is the durable, append-only notification history.
// Listings are newest first, ordered by (created_at DESC, id DESC).
type NotificationRepository interface {
	// Create appends a notification.
	Create(ctx context.Context, n *domain.Notification) error

	// GetByID retrieves a notification by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Notification, error)

	// ListForUser returns the user's own notifications plus broadcasts.
	ListForUser(ctx context.Context, userID string, params pagination.Params) (domain.NotificationPage, error)

	// ListAll returns every notification, for administrators.
	ListAll(ctx context.Context, params pagination.Params) (domain.NotificationPage, error)

	// MarkRead flips status to read and returns the stored record. Marking a
	// read notification again is a no-op.
	MarkRead(ctx context.Context, id string) (*domain.Notification, error)

	// Ping checks connectivity to the backing store.
	Ping(ctx context.Context) error
}

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user into the store.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by their email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Update modifies an existing user in the store.
	Update(ctx context.Context, user *domain.User) error
}
