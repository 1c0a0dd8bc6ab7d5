package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Duong-Anh-Duc/KH/internal/auth"
	"github.com/Duong-Anh-Duc/KH/internal/domain"
	"github.com/Duong-Anh-Duc/KH/internal/repository"
	apperrors "github.com/Duong-Anh-Duc/KH/pkg/errors"
)

// minPasswordLength is the minimum password length accepted on registration
// and password change.
const minPasswordLength = 6

// SessionCache is the session store as used by the services.
type SessionCache interface {
	Get(ctx context.Context, userID string) (*domain.Session, error)
	Set(ctx context.Context, s *domain.Session) error
	Delete(ctx context.Context, userID string) error
}

// LoginLimiter throttles repeated failed logins for one email.
type LoginLimiter interface {
	Check(ctx context.Context, email string) error
	Fail(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

// TokenIssuer mints and rotates token pairs.
type TokenIssuer interface {
	Issue(sess *domain.Session) (domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.Session, domain.TokenPair, error)
}

// AuthService implements registration, login and session lifecycle.
type AuthService struct {
	users    repository.UserRepository
	sessions SessionCache
	limiter  LoginLimiter
	tokens   TokenIssuer
	logger   *slog.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(
	users repository.UserRepository,
	sessions SessionCache,
	limiter LoginLimiter,
	tokens TokenIssuer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		limiter:  limiter,
		tokens:   tokens,
		logger:   logger,
	}
}

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// LoginInput holds the parameters for user login.
type LoginInput struct {
	Email    string
	Password string
}

// Register creates a verified standard user.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	user, err := newAccount(input, domain.RoleUser)
	if err != nil {
		return nil, err
	}

	_, err = s.users.GetByEmail(ctx, user.Email)
	switch {
	case err == nil:
		return nil, apperrors.AlreadyExists("user", "email", user.Email)
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", user.ID))
	return user, nil
}

// EnsureAdmin makes the account for input.Email an unbanned administrator,
// creating it when missing. An existing account keeps its password; its
// cached session is dropped so the new role applies from the next login.
func (s *AuthService) EnsureAdmin(ctx context.Context, input RegisterInput) (*domain.User, error) {
	fresh, err := newAccount(input, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, fresh.Email)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		if err := s.users.Create(ctx, fresh); err != nil {
			return nil, fmt.Errorf("create admin: %w", err)
		}
		s.logger.InfoContext(ctx, "admin created", slog.String("user_id", fresh.ID))
		return fresh, nil
	case err != nil:
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if user.Role == domain.RoleAdmin && !user.IsBanned {
		return user, nil
	}
	user.Role = domain.RoleAdmin
	user.IsBanned = false
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("promote user: %w", err)
	}
	if err := s.sessions.Delete(ctx, user.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to drop session after promotion",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.InfoContext(ctx, "user promoted to admin", slog.String("user_id", user.ID))
	return user, nil
}

// newAccount validates input and builds an unsaved, verified account.
func newAccount(input RegisterInput, role string) (*domain.User, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.InvalidInput("name is required")
	}
	if len(input.Password) < minPasswordLength {
		return nil, apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &domain.User{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(input.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsVerified:   true,
		Courses:      []domain.CourseRef{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Login checks credentials, stores a fresh session and mints a token pair.
// Unknown emails and wrong passwords fail identically and both count toward
// the lockout.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.Session, domain.TokenPair, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, domain.TokenPair{}, apperrors.InvalidInput("email and password are required")
	}

	if err := s.limiter.Check(ctx, email); err != nil {
		return nil, domain.TokenPair{}, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.recordFailure(ctx, email)
			return nil, domain.TokenPair{}, apperrors.InvalidCredentials()
		}
		return nil, domain.TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := auth.CheckPassword(user.PasswordHash, input.Password)
	if err != nil {
		return nil, domain.TokenPair{}, err
	}
	if !ok {
		s.recordFailure(ctx, email)
		return nil, domain.TokenPair{}, apperrors.InvalidCredentials()
	}

	if user.IsBanned {
		return nil, domain.TokenPair{}, apperrors.Forbidden("account is banned")
	}

	if err := s.limiter.Reset(ctx, email); err != nil {
		s.logger.WarnContext(ctx, "failed to reset login attempts", slog.String("error", err.Error()))
	}

	sess := domain.NewSession(user)
	if err := s.sessions.Set(ctx, sess); err != nil {
		return nil, domain.TokenPair{}, err
	}
	pair, err := s.tokens.Issue(sess)
	if err != nil {
		return nil, domain.TokenPair{}, err
	}

	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))
	return sess, pair, nil
}

func (s *AuthService) recordFailure(ctx context.Context, email string) {
	if err := s.limiter.Fail(ctx, email); err != nil {
		s.logger.WarnContext(ctx, "failed to record login attempt", slog.String("error", err.Error()))
	}
}

// Logout drops the user's session, which revokes every outstanding refresh
// token.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.sessions.Delete(ctx, userID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "user logged out", slog.String("user_id", userID))
	return nil
}

// Refresh rotates the token pair for a live session.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.Session, domain.TokenPair, error) {
	if refreshToken == "" {
		return nil, domain.TokenPair{}, apperrors.InvalidToken()
	}
	return s.tokens.Refresh(ctx, refreshToken)
}

// Me returns the caller's session record.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.Session, error) {
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.SessionExpired()
		}
		return nil, err
	}
	return sess, nil
}

// SetBanned changes a user's ban flag. Banning also deletes the live session
// so the next refresh fails.
func (s *AuthService) SetBanned(ctx context.Context, userID string, banned bool) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if banned && user.Role == domain.RoleAdmin {
		return nil, apperrors.Forbidden("administrators cannot be banned")
	}

	user.IsBanned = banned
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	if banned {
		if err := s.sessions.Delete(ctx, userID); err != nil {
			return nil, err
		}
	}

	s.logger.InfoContext(ctx, "user ban status changed",
		slog.String("user_id", userID),
		slog.Bool("banned", banned),
	)
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
