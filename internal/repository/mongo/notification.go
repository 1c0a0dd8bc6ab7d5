package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/Duong-Anh-Duc/KH/internal/domain"
	apperrors "github.com/Duong-Anh-Duc/KH/pkg/errors"
	"github.com/Duong-Anh-Duc/KH/pkg/pagination"
)

const collectionName = "notifications"

// notificationDoc is the stored shape of a notification.
type notificationDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id,omitempty"`
	Audience  string    `bson:"audience"`
	Title     string    `bson:"title"`
	Message   string    `bson:"message"`
	Status    string    `bson:"status"`
	CourseID  string    `bson:"course_id,omitempty"`
	Price     *int64    `bson:"price,omitempty"`
	Event     string    `bson:"event,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toDoc(n *domain.Notification) notificationDoc {
	return notificationDoc{
		ID:        n.ID,
		UserID:    n.UserID,
		Audience:  string(n.Audience),
		Title:     n.Title,
		Message:   n.Message,
		Status:    string(n.Status),
		CourseID:  n.CourseID,
		Price:     n.Price,
		Event:     n.Event,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func (d notificationDoc) toDomain() domain.Notification {
	return domain.Notification{
		ID:        d.ID,
		UserID:    d.UserID,
		Audience:  domain.Audience(d.Audience),
		Title:     d.Title,
		Message:   d.Message,
		Status:    domain.NotificationStatus(d.Status),
		CourseID:  d.CourseID,
		Price:     d.Price,
		Event:     d.Event,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

// NotificationRepository implements repository.NotificationRepository on a
// MongoDB collection.
type NotificationRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewNotificationRepository(client *mongo.Client, database string) *NotificationRepository {
	return &NotificationRepository{
		client: client,
		coll:   client.Database(database).Collection(collectionName),
	}
}

// EnsureIndexes creates the indexes the listing queries rely on.
func (r *NotificationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "audience", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create notification indexes: %w", err)
	}
	return nil
}

func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	if _, err := r.coll.InsertOne(ctx, toDoc(n)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.AlreadyExists("notification", "id", n.ID)
		}
		return apperrors.UpstreamUnavailable(fmt.Errorf("insert notification: %w", err))
	}
	return nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var doc notificationDoc
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("notification", id)
		}
		return nil, apperrors.UpstreamUnavailable(fmt.Errorf("find notification: %w", err))
	}
	n := doc.toDomain()
	return &n, nil
}

func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, params pagination.Params) (domain.NotificationPage, error) {
	return r.list(ctx, userFilter(userID), params)
}

func (r *NotificationRepository) ListAll(ctx context.Context, params pagination.Params) (domain.NotificationPage, error) {
	return r.list(ctx, bson.D{}, params)
}

func (r *NotificationRepository) list(ctx context.Context, base bson.D, params pagination.Params) (domain.NotificationPage, error) {
	cur, err := r.coll.Find(ctx, withCursor(base, params.After), findOptions(params))
	if err != nil {
		return domain.NotificationPage{}, apperrors.UpstreamUnavailable(fmt.Errorf("find notifications: %w", err))
	}
	defer func() { _ = cur.Close(ctx) }()

	var docs []notificationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return domain.NotificationPage{}, apperrors.UpstreamUnavailable(fmt.Errorf("decode notifications: %w", err))
	}

	items := make([]domain.Notification, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.toDomain())
	}
	return pagination.NewPage(items, params, domain.Notification.Cursor), nil
}

// MarkRead flips an unread record to read. An already-read record is
// returned unchanged.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) (*domain.Notification, error) {
	filter := bson.D{{Key: "_id", Value: id}, {Key: "status", Value: string(domain.StatusUnread)}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "status", Value: string(domain.StatusRead)},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}}

	var doc notificationDoc
	err := r.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return r.GetByID(ctx, id)
	}
	if err != nil {
		return nil, apperrors.UpstreamUnavailable(fmt.Errorf("mark notification read: %w", err))
	}
	n := doc.toDomain()
	return &n, nil
}

func (r *NotificationRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

// userFilter matches a user's own records plus broadcasts.
func userFilter(userID string) bson.D {
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "audience", Value: string(domain.AudienceAll)}},
		bson.D{
			{Key: "audience", Value: string(domain.AudienceUser)},
			{Key: "user_id", Value: userID},
		},
	}}}
}

// withCursor restricts base to records strictly after c in newest-first order.
func withCursor(base bson.D, c *pagination.Cursor) bson.D {
	if c == nil {
		return base
	}
	keyset := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "created_at", Value: bson.D{{Key: "$lt", Value: c.CreatedAt}}}},
		bson.D{
			{Key: "created_at", Value: c.CreatedAt},
			{Key: "_id", Value: bson.D{{Key: "$lt", Value: c.ID}}},
		},
	}}}
	if len(base) == 0 {
		return keyset
	}
	return bson.D{{Key: "$and", Value: bson.A{base, keyset}}}
}

func findOptions(params pagination.Params) *options.FindOptionsBuilder {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if !params.Unbounded() {
		opts.SetLimit(int64(params.Limit + 1))
	}
	return opts
}
