package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Duong-Anh-Duc/KH/internal/domain"
	"github.com/Duong-Anh-Duc/KH/pkg/database"
	apperrors "github.com/Duong-Anh-Duc/KH/pkg/errors"
	"github.com/Duong-Anh-Duc/KH/pkg/pagination"
)

const notificationColumns = `id, user_id, audience, title, message, status, course_id, price, event, created_at, updated_at`

// NotificationRepository implements repository.NotificationRepository using PostgreSQL.
type NotificationRepository struct {
	pool database.DBTX
}

// NewNotificationRepository creates a new PostgreSQL-backed notification repository.
func NewNotificationRepository(pool database.DBTX) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Create inserts a new notification into the database.
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) (err error) {
	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	ctx, end := database.TraceQuery(ctx, "CreateNotification", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		n.ID,
		nullString(n.UserID),
		string(n.Audience),
		n.Title,
		n.Message,
		string(n.Status),
		nullString(n.CourseID),
		n.Price,
		nullString(n.Event),
		n.CreatedAt,
		n.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("notification", "id", n.ID)
		}
		return apperrors.UpstreamUnavailable(fmt.Errorf("insert notification: %w", err))
	}
	return nil
}

// GetByID retrieves a notification by its ID.
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (n *domain.Notification, err error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetNotification", query)
	defer func() { end(err) }()

	n, err = scanNotification(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("notification", id)
		}
		return nil, apperrors.UpstreamUnavailable(fmt.Errorf("get notification: %w", err))
	}
	return n, nil
}

// ListForUser returns the user's notifications and broadcasts, newest first.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, params pagination.Params) (domain.NotificationPage, error) {
	where := []string{`(audience = 'all' OR (audience = 'user' AND user_id = $1))`}
	return r.list(ctx, "ListNotificationsForUser", where, []any{userID}, params)
}

// ListAll returns every notification, newest first.
func (r *NotificationRepository) ListAll(ctx context.Context, params pagination.Params) (domain.NotificationPage, error) {
	return r.list(ctx, "ListAllNotifications", nil, nil, params)
}

func (r *NotificationRepository) list(ctx context.Context, op string, where []string, args []any, params pagination.Params) (page domain.NotificationPage, err error) {
	query, args := buildListQuery(where, args, params)

	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return page, apperrors.UpstreamUnavailable(fmt.Errorf("list notifications: %w", err))
	}
	defer rows.Close()

	items := make([]domain.Notification, 0)
	for rows.Next() {
		n, scanErr := scanNotification(rows)
		if scanErr != nil {
			err = fmt.Errorf("scan notification row: %w", scanErr)
			return page, err
		}
		items = append(items, *n)
	}
	if err = rows.Err(); err != nil {
		return page, apperrors.UpstreamUnavailable(fmt.Errorf("iterate notification rows: %w", err))
	}

	return pagination.NewPage(items, params, domain.Notification.Cursor), nil
}

// buildListQuery appends the keyset predicate and limit to the base filter.
// A bounded page fetches one extra row to detect whether more remain.
func buildListQuery(where []string, args []any, params pagination.Params) (string, []any) {
	if params.After != nil {
		n := len(args)
		where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", n+1, n+2))
		args = append(args, params.After.CreatedAt, params.After.ID)
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + notificationColumns + ` FROM notifications`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")
	if !params.Unbounded() {
		args = append(args, params.Limit+1)
		b.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}
	return b.String(), args
}

// MarkRead sets status to read. updated_at only moves on the first call.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) (n *domain.Notification, err error) {
	query := `
		UPDATE notifications
		SET updated_at = CASE WHEN status = $2 THEN updated_at ELSE $3 END,
		    status = $2
		WHERE id = $1
		RETURNING ` + notificationColumns

	ctx, end := database.TraceQuery(ctx, "MarkNotificationRead", query)
	defer func() { end(err) }()

	n, err = scanNotification(r.pool.QueryRow(ctx, query, id, string(domain.StatusRead), time.Now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("notification", id)
		}
		return nil, apperrors.UpstreamUnavailable(fmt.Errorf("mark notification read: %w", err))
	}
	return n, nil
}

// Ping checks the database connection.
func (r *NotificationRepository) Ping(ctx context.Context) error {
	var one int
	return r.pool.QueryRow(ctx, "SELECT 1").Scan(&one)
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var (
		n                       domain.Notification
		userID, courseID, event *string
		audience, status        string
	)
	if err := row.Scan(
		&n.ID,
		&userID,
		&audience,
		&n.Title,
		&n.Message,
		&status,
		&courseID,
		&n.Price,
		&event,
		&n.CreatedAt,
		&n.UpdatedAt,
	); err != nil {
		return nil, err
	}
	n.UserID = deref(userID)
	n.CourseID = deref(courseID)
	n.Event = deref(event)
	n.Audience = domain.Audience(audience)
	n.Status = domain.NotificationStatus(status)
	return &n, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
