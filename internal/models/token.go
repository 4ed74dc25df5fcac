package models

import (
	"time"

	"github.com/google/uuid"
)

// Type discriminator embedded into every signed token
type TokenType string

const (
	TokenTypeAccess        TokenType = "access"
	TokenTypeRefresh       TokenType = "refresh"
	TokenTypePasswordReset TokenType = "password_reset"
)

// Persisted refresh token record
// Only sha256 hash of the token is stored
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// Usable for refresh only if not revoked and not expired at 'now'
func (t RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by AuthService on login or refresh
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
