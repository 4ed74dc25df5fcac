package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Coarse authorization label
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Email          string
	Username       string // empty if user has no username
	FullName       string
	HashedPassword string
	IsActive       bool
	Role           Role
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Data required to create a user
// Password is a plain one, services hash it before it reaches storage
type NewUser struct {
	Email    string
	Username string
	FullName string
	Password string

	// Used by admin creation only; registration always creates active users with RoleUser
	Role     Role
	IsActive bool
}

// Partial user update, nil fields are left untouched
type UserUpdate struct {
	Email    *string
	Username *string
	FullName *string
	IsActive *bool
	Role     *Role
}

// Whether update changes fields only admins are allowed to change
func (u UserUpdate) TouchesPrivileged() bool {
	return u.IsActive != nil || u.Role != nil
}

// Emails are compared case insensitive, so they are stored lowercased
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
