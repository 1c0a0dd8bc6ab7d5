package http

import (
	"context"

	"github.com/Duong-Anh-Duc/KH/internal/auth"
	"github.com/Duong-Anh-Duc/KH/internal/domain"
	"github.com/Duong-Anh-Duc/KH/internal/service"
	"github.com/Duong-Anh-Duc/KH/pkg/pagination"
)

// AuthService is the account and session API the handlers call.
type AuthService interface {
	Register(ctx context.Context, input service.RegisterInput) (*domain.User, error)
	Login(ctx context.Context, input service.LoginInput) (*domain.Session, domain.TokenPair, error)
	Logout(ctx context.Context, userID string) error
	Refresh(ctx context.Context, refreshToken string) (*domain.Session, domain.TokenPair, error)
	Me(ctx context.Context, userID string) (*domain.Session, error)
	SetBanned(ctx context.Context, userID string, banned bool) (*domain.User, error)
}

// NotificationService is the notification API the handlers call.
type NotificationService interface {
	Notify(ctx context.Context, input service.NotifyInput) (*domain.Notification, error)
	ListForUser(ctx context.Context, userID string, params pagination.Params) (domain.NotificationPage, error)
	ListAll(ctx context.Context, params pagination.Params) (domain.NotificationPage, error)
	MarkOwnRead(ctx context.Context, userID, id string) (*domain.Notification, error)
	MarkRead(ctx context.Context, id string) (*domain.Notification, error)
}

// ProfileService is the self-service profile API the handlers call.
type ProfileService interface {
	UpdateInfo(ctx context.Context, userID string, input service.UpdateInfoInput) (*domain.Session, error)
	UpdatePassword(ctx context.Context, userID string, input service.UpdatePasswordInput) (*domain.Session, error)
	UpdateAvatar(ctx context.Context, userID, avatarURL string) (*domain.Session, error)
}

// AccessVerifier checks access tokens without touching the session store.
type AccessVerifier interface {
	VerifyAccess(token string) (*auth.AccessClaims, error)
}
