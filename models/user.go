package models

import "time"

type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Role determines whether a user is subject to training tracking.
// Untracked accounts (shore-side contractors, service accounts) can browse
// content but never become eligible to acknowledge.
type Role string

const (
	RoleTracked   Role = "tracked"
	RoleUntracked Role = "untracked"
)

type User struct {
	ID             int        `json:"id"`
	Email          string     `json:"email"`
	HashedPassword []byte     `json:"-"`
	Role           Role       `json:"role"`
	IsAdmin        bool       `json:"is_admin"`
	Blocked        bool       `json:"blocked"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	LastActive     *time.Time `json:"last_active,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
