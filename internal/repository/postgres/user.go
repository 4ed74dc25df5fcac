package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/accounts/internal/apperrors"
	"github.com/nkiryanov/accounts/internal/models"
	"github.com/nkiryanov/accounts/internal/repository"
)

type UserRepo struct {
	DB DBTX
}

// Columns in order expected by rowToUser
const userColumns = `id, created_at, updated_at, email, COALESCE(username, ''), full_name, password_hash, is_active, role`

const createUser = `-- name: CreateUser
INSERT INTO users (id, email, username, full_name, password_hash, is_active, role)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
RETURNING ` + userColumns

func (r *UserRepo) CreateUser(ctx context.Context, params repository.CreateUserParams) (models.User, error) {
	role := params.Role
	if role == "" {
		role = models.RoleUser
	}

	rows, _ := r.DB.Query(ctx, createUser,
		uuid.New(), params.Email, params.Username, params.FullName, params.PasswordHash, params.IsActive, string(role),
	)
	user, err := pgx.CollectOneRow(rows, rowToUser)
	if err != nil {
		return user, mapWriteError(err, params.Email, params.Username)
	}

	return user, nil
}

const getUserByID = `-- name: GetUserByID
SELECT ` + userColumns + `
FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, id)
	return collectUser(rows)
}

const getUserByEmail = `-- name: GetUserByEmail
SELECT ` + userColumns + `
FROM users
WHERE email = $1
`

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByEmail, email)
	return collectUser(rows)
}

const listUsers = `-- name: ListUsers
SELECT ` + userColumns + `
FROM users
ORDER BY created_at, id
LIMIT $1 OFFSET $2
`

func (r *UserRepo) ListUsers(ctx context.Context, opts repository.ListUsersOpts) ([]models.User, error) {
	rows, _ := r.DB.Query(ctx, listUsers, opts.Limit, opts.Offset)
	users, err := pgx.CollectRows(rows, rowToUser)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return users, nil
}

// Username: NULL parameter keeps the current value, empty string clears it
const updateUser = `-- name: UpdateUser
UPDATE users SET
	email = COALESCE($2, email),
	username = CASE WHEN $3::text IS NULL THEN username ELSE NULLIF($3::text, '') END,
	full_name = COALESCE($4, full_name),
	is_active = COALESCE($5, is_active),
	role = COALESCE($6, role),
	updated_at = NOW()
WHERE id = $1
RETURNING ` + userColumns

func (r *UserRepo) UpdateUser(ctx context.Context, id uuid.UUID, update models.UserUpdate) (models.User, error) {
	var role *string
	if update.Role != nil {
		s := string(*update.Role)
		role = &s
	}

	rows, _ := r.DB.Query(ctx, updateUser, id, update.Email, update.Username, update.FullName, update.IsActive, role)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, mapWriteError(err, deref(update.Email), deref(update.Username))
	}
}

const setPassword = `-- name: SetPassword
UPDATE users
SET password_hash = $2, updated_at = NOW()
WHERE id = $1
`

func (r *UserRepo) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	tag, err := r.DB.Exec(ctx, setPassword, id, passwordHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}

	return nil
}

const deleteUser = `-- name: DeleteUser
DELETE FROM users
WHERE id = $1
`

func (r *UserRepo) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, deleteUser, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}

	return nil
}

func collectUser(rows pgx.Rows) (models.User, error) {
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

// Translate constraint violations to domain errors
func mapWriteError(err error, email string, username string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("db error: %w", err)
	}

	switch {
	case pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == "users_username_key":
		return &apperrors.DuplicateError{Field: "username", Value: username}
	case pgErr.Code == pgerrcode.UniqueViolation:
		return &apperrors.DuplicateError{Field: "email", Value: email}
	case pgErr.Code == pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("unknown role: %w", apperrors.ErrValidation)
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	var role string
	err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt, &u.Email, &u.Username, &u.FullName, &u.HashedPassword, &u.IsActive, &role)
	u.Role = models.Role(role)
	return u, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
