package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/accounts/internal/models"
)

type CreateUserParams struct {
	Email        string
	Username     string // empty stored as NULL
	FullName     string
	PasswordHash string
	Role         models.Role
	IsActive     bool
}

type ListUsersOpts struct {
	Offset int
	Limit  int
}

// User repository interface
type UserRepo interface {
	// Create user
	// If email or username is taken must return *apperrors.DuplicateError
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)

	// Get user by it's id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// List users ordered by creation time
	ListUsers(ctx context.Context, opts ListUsersOpts) ([]models.User, error)

	// Apply partial update, nil fields are not changed
	// Same errors as for CreateUser and GetUserByID
	UpdateUser(ctx context.Context, id uuid.UUID, update models.UserUpdate) (models.User, error)

	// Replace password hash
	SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error

	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Get token by its hash, even if it revoked or expired
	// If not found must return apperrors.ErrRefreshTokenNotFound
	Get(ctx context.Context, tokenHash string) (models.RefreshToken, error)

	// Mark token revoked. Revoking revoked token is not an error
	// If not found must return apperrors.ErrRefreshTokenNotFound
	Revoke(ctx context.Context, tokenHash string) error

	// Revoke token only if it is still active, so concurrent callers can't both succeed
	// Must return apperrors.ErrTokenRevoked if token is already revoked or unknown
	RevokeActive(ctx context.Context, tokenHash string) error

	// Revoke all not revoked tokens of the user, returns how many were revoked
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)

	// Delete tokens expired before 'before'
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Storage gives access to all repositories over one connection or transaction
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo

	// Run fn in transaction. Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
