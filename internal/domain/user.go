package domain

import (
	"time"
)

// CourseRef is a reference to a course the user is enrolled in.
type CourseRef struct {
	CourseID string `json:"courseId"`
}

// User is the persisted account row.
type User struct {
	ID           string      `json:"_id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	AvatarURL    string      `json:"avatarUrl,omitempty"`
	Role         string      `json:"role"`
	IsBanned     bool        `json:"isBanned"`
	IsVerified   bool        `json:"isVerified"`
	Courses      []CourseRef `json:"courses"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// Session is the cached identity of a logged-in user. It is always written
// whole and never carries the password hash.
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

// NewSession projects a user row onto its session record.
func NewSession(u *User) *Session {
	courses := u.Courses
	if courses == nil {
		courses = []CourseRef{}
	}
	return &Session{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		AvatarURL:  u.AvatarURL,
		Role:       u.Role,
		IsBanned:   u.IsBanned,
		IsVerified: u.IsVerified,
		Courses:    courses,
	}
}

func (s *Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// TokenPair holds an access and refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
