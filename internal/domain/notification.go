package domain

import (
	"time"

	"github.com/Duong-Anh-Duc/KH/pkg/pagination"
)

// Audience selects who a notification is addressed to.
type Audience string

const (
	AudienceUser  Audience = "user"
	AudienceAll   Audience = "all"
	AudienceAdmin Audience = "admin"
)

func (a Audience) IsValid() bool {
	switch a {
	case AudienceUser, AudienceAll, AudienceAdmin:
		return true
	}
	return false
}

// NotificationStatus is the read state of a notification.
type NotificationStatus string

const (
	StatusUnread NotificationStatus = "unread"
	StatusRead   NotificationStatus = "read"
)

// Notification is a durable user-visible message. UserID is empty for
// broadcast and admin notifications.
type Notification struct {
	ID        string             `json:"_id"`
	UserID    string             `json:"userId,omitempty"`
	Audience  Audience           `json:"audience"`
	Title     string             `json:"title"`
	Message   string             `json:"message"`
	Status    NotificationStatus `json:"status"`
	CourseID  string             `json:"courseId,omitempty"`
	Price     *int64             `json:"price,omitempty"`
	Event     string             `json:"event,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Cursor returns the keyset position of n in a newest-first listing.
func (n Notification) Cursor() pagination.Cursor {
	return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
}

// VisibleTo reports whether a standard user may see n in their own feed.
func (n *Notification) VisibleTo(userID string) bool {
	return n.Audience == AudienceAll || (n.Audience == AudienceUser && n.UserID == userID)
}

// Room returns the realtime room n is delivered to.
func (n *Notification) Room() string {
	switch n.Audience {
	case AudienceAll:
		return RoomAllUsers
	case AudienceAdmin:
		return RoomAdmin
	default:
		return UserRoom(n.UserID)
	}
}

// NotificationPage is one slice of a newest-first notification listing.
type NotificationPage = pagination.Page[Notification]
