package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Duong-Anh-Duc/KH/internal/domain"
	"github.com/Duong-Anh-Duc/KH/pkg/database"
	apperrors "github.com/Duong-Anh-Duc/KH/pkg/errors"
)

const userColumns = `id, name, email, password_hash, avatar_url, role, is_banned, is_verified, courses, created_at, updated_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	pool database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(pool database.DBTX) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	ctx, end := database.TraceQuery(ctx, "CreateUser", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		u.ID,
		u.Name,
		u.Email,
		u.PasswordHash,
		u.AvatarURL,
		u.Role,
		u.IsBanned,
		u.IsVerified,
		courseIDs(u.Courses),
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return apperrors.UpstreamUnavailable(fmt.Errorf("insert user: %w", err))
	}
	return nil
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(ctx, "GetUser", query, "id", id)
}

// GetByEmail retrieves a user by their email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(ctx, "GetUserByEmail", query, "email", email)
}

// Update modifies an existing user in the database.
func (r *UserRepository) Update(ctx context.Context, u *domain.User) (err error) {
	u.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users
		SET name = $1, email = $2, password_hash = $3, avatar_url = $4, role = $5,
		    is_banned = $6, is_verified = $7, courses = $8, updated_at = $9
		WHERE id = $10`

	ctx, end := database.TraceQuery(ctx, "UpdateUser", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query,
		u.Name,
		u.Email,
		u.PasswordHash,
		u.AvatarURL,
		u.Role,
		u.IsBanned,
		u.IsVerified,
		courseIDs(u.Courses),
		u.UpdatedAt,
		u.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return apperrors.UpstreamUnavailable(fmt.Errorf("update user: %w", err))
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", u.ID)
	}
	return nil
}

func (r *UserRepository) scanUser(ctx context.Context, op, query, field, value string) (u *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	var (
		user    domain.User
		courses []string
	)
	err = r.pool.QueryRow(ctx, query, value).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.Role,
		&user.IsBanned,
		&user.IsVerified,
		&courses,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user", field+" "+value)
		}
		return nil, apperrors.UpstreamUnavailable(fmt.Errorf("scan user: %w", err))
	}

	user.Courses = make([]domain.CourseRef, 0, len(courses))
	for _, id := range courses {
		user.Courses = append(user.Courses, domain.CourseRef{CourseID: id})
	}
	return &user, nil
}

func courseIDs(refs []domain.CourseRef) []string {
	ids := make([]string, 0, len(refs))
	for _, c := range refs {
		ids = append(ids, c.CourseID)
	}
	return ids
}
