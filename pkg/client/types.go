// Package client is a Go SDK for the e-learning API. It wraps the REST
// endpoints with transparent token refresh, keeps a realtime socket joined to
// the caller's rooms, and reconciles pushed events with the durable
// notification history into one feed.
package client

import (
	"encoding/json"
	"time"
)

// TokenPair is an access and refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// CourseRef references a course the user is enrolled in.
type CourseRef struct {
	CourseID string `json:"courseId"`
}

// Session is the identity of the logged-in user as the API reports it.
type Session struct {
	ID         string      `json:"_id"`
	Name       string      `json:"name"`
	Email      string      `json:"email"`
	AvatarURL  string      `json:"avatarUrl,omitempty"`
	Role       string      `json:"role"`
	IsBanned   bool        `json:"isBanned"`
	IsVerified bool        `json:"isVerified"`
	Courses    []CourseRef `json:"courses"`
}

func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == "admin"
}

// Notification is one entry of the feed.
type Notification struct {
	ID        string    `json:"_id"`
	UserID    string    `json:"userId,omitempty"`
	Audience  string    `json:"audience"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	CourseID  string    `json:"courseId,omitempty"`
	Price     *int64    `json:"price,omitempty"`
	Event     string    `json:"event,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Pending marks an optimistic entry built from a push event that has not
	// yet been replaced by a fetched list.
	Pending bool `json:"-"`
}

// Realtime event names.
const (
	EventOrderSuccess     = "orderSuccess"
	EventNewCourse        = "newCourse"
	EventNewLesson        = "newLesson"
	EventCourseUpdated    = "courseUpdated"
	EventNewQuestionReply = "newQuestionReply"
	EventUserUpdated      = "userUpdated"
)

// Event is a decoded realtime push.
type Event struct {
	Name     string
	Message  string
	CourseID string
	// User is set for userUpdated events.
	User *Session
	Data json.RawMessage
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type eventPayload struct {
	Message  string   `json:"message"`
	CourseID string   `json:"courseId"`
	User     *Session `json:"user"`
}

type envelope struct {
	Data any `json:"data"`
}

type sessionResponse struct {
	User *Session `json:"user"`
	TokenPair
}
