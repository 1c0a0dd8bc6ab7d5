package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Duong-Anh-Duc/KH/internal/auth"
	"github.com/Duong-Anh-Duc/KH/internal/domain"
	"github.com/Duong-Anh-Duc/KH/internal/repository"
	apperrors "github.com/Duong-Anh-Duc/KH/pkg/errors"
)

// Notification texts for profile changes.
const (
	titleInfoUpdated     = "Account Updated"
	titlePasswordUpdated = "Password Updated"
	titleAvatarUpdated   = "Avatar Updated"

	msgInfoUpdated     = "Your account information was updated successfully!"
	msgPasswordUpdated = "Your password was updated successfully!"
	msgAvatarUpdated   = "Your avatar was updated successfully!"
)

// ProfileService applies self-service profile changes. Every change rewrites
// the session, records a notification and pushes userUpdated to the user's
// own room.
type ProfileService struct {
	users    repository.UserRepository
	sessions SessionCache
	notifier Notifier
	logger   *slog.Logger
}

func NewProfileService(users repository.UserRepository, sessions SessionCache, notifier Notifier, logger *slog.Logger) *ProfileService {
	return &ProfileService{users: users, sessions: sessions, notifier: notifier, logger: logger}
}

type UpdateInfoInput struct {
	Name string
}

type UpdatePasswordInput struct {
	OldPassword string
	NewPassword string
}

// UpdateInfo changes the display name.
func (s *ProfileService) UpdateInfo(ctx context.Context, userID string, input UpdateInfoInput) (*domain.Session, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.InvalidInput("name is required")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Name = name
	return s.apply(ctx, user, titleInfoUpdated, msgInfoUpdated)
}

// UpdatePassword replaces the password after checking the old one.
func (s *ProfileService) UpdatePassword(ctx context.Context, userID string, input UpdatePasswordInput) (*domain.Session, error) {
	if input.OldPassword == "" || input.NewPassword == "" {
		return nil, apperrors.InvalidInput("old and new password are required")
	}
	if len(input.NewPassword) < minPasswordLength {
		return nil, apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	ok, err := auth.CheckPassword(user.PasswordHash, input.OldPassword)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.InvalidInput("old password is incorrect")
	}

	hash, err := auth.HashPassword(input.NewPassword)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash
	return s.apply(ctx, user, titlePasswordUpdated, msgPasswordUpdated)
}

// UpdateAvatar stores a new avatar URL.
func (s *ProfileService) UpdateAvatar(ctx context.Context, userID, avatarURL string) (*domain.Session, error) {
	avatarURL = strings.TrimSpace(avatarURL)
	if avatarURL == "" {
		return nil, apperrors.InvalidInput("avatar is required")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.AvatarURL = avatarURL
	return s.apply(ctx, user, titleAvatarUpdated, msgAvatarUpdated)
}

func (s *ProfileService) apply(ctx context.Context, user *domain.User, title, message string) (*domain.Session, error) {
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	sess := domain.NewSession(user)
	if err := s.sessions.Set(ctx, sess); err != nil {
		return nil, err
	}

	_, err := s.notifier.Notify(ctx, NotifyInput{
		Audience: domain.AudienceUser,
		UserID:   user.ID,
		Title:    title,
		Event:    domain.UserUpdated{Message: message, User: sess},
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "profile updated",
		slog.String("user_id", user.ID),
		slog.String("change", title),
	)
	return sess, nil
}
