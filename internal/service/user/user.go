package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nkiryanov/accounts/internal/apperrors"
	"github.com/nkiryanov/accounts/internal/logger"
	"github.com/nkiryanov/accounts/internal/models"
	"github.com/nkiryanov/accounts/internal/repository"
	"github.com/nkiryanov/accounts/internal/service/auth"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

type UserService struct {
	hasher   auth.PasswordHasher
	storage  repository.Storage
	validate *validator.Validate
	logger   logger.Logger
}

func NewService(hasher auth.PasswordHasher, storage repository.Storage, l logger.Logger) *UserService {
	if hasher == nil {
		hasher = auth.DefaultHasher
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &UserService{
		hasher:   hasher,
		storage:  storage,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   l,
	}
}

// Create user with any role and active flag
// Role defaults to user if empty
func (s *UserService) CreateUser(ctx context.Context, newUser models.NewUser) (models.User, error) {
	var user models.User

	newUser.Email = models.NormalizeEmail(newUser.Email)
	newUser.Username = strings.TrimSpace(newUser.Username)
	if newUser.Role == "" {
		newUser.Role = models.RoleUser
	}

	if err := s.validateProfile(newUser.Email, newUser.Username, newUser.FullName); err != nil {
		return user, err
	}
	if !newUser.Role.Valid() {
		return user, &apperrors.FieldError{Field: "role", Message: "unknown role"}
	}
	if err := auth.ValidatePassword(newUser.Password); err != nil {
		return user, err
	}

	hash, err := s.hasher.Hash(newUser.Password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password: %w", err)
	}

	user, err = s.storage.User().CreateUser(ctx, repository.CreateUserParams{
		Email:        newUser.Email,
		Username:     newUser.Username,
		FullName:     newUser.FullName,
		PasswordHash: hash,
		Role:         newUser.Role,
		IsActive:     newUser.IsActive,
	})
	if err != nil {
		return user, fmt.Errorf("can't create user: %w", err)
	}

	s.logger.Info("User created", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Get user on behalf of actor
// Non-admin may get only their own record
func (s *UserService) GetUser(ctx context.Context, actor models.User, id uuid.UUID) (models.User, error) {
	if !actor.IsAdmin() && actor.ID != id {
		return models.User{}, apperrors.ErrForbidden
	}

	user, err := s.storage.User().GetUserByID(ctx, id)
	if err != nil {
		return user, fmt.Errorf("can't get user: %w", err)
	}
	return user, nil
}

// List users page, zero limit means default, limit is capped by MaxListLimit
func (s *UserService) ListUsers(ctx context.Context, skip int, limit int) ([]models.User, error) {
	switch {
	case skip < 0:
		return nil, &apperrors.FieldError{Field: "skip", Message: "must not be negative"}
	case limit < 0:
		return nil, &apperrors.FieldError{Field: "limit", Message: "must not be negative"}
	case limit == 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	users, err := s.storage.User().ListUsers(ctx, repository.ListUsersOpts{Offset: skip, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("can't list users: %w", err)
	}
	return users, nil
}

// Update user on behalf of actor
// Non-admin may update only their own record and can't change role or active flag
func (s *UserService) UpdateUser(ctx context.Context, actor models.User, id uuid.UUID, update models.UserUpdate) (models.User, error) {
	var user models.User

	if !actor.IsAdmin() && (actor.ID != id || update.TouchesPrivileged()) {
		return user, apperrors.ErrForbidden
	}

	if update.Email != nil {
		email := models.NormalizeEmail(*update.Email)
		update.Email = &email
		if err := s.validateEmail(email); err != nil {
			return user, err
		}
	}
	if update.Username != nil {
		username := strings.TrimSpace(*update.Username)
		update.Username = &username
		if err := s.validateUsername(username); err != nil {
			return user, err
		}
	}
	if update.FullName != nil {
		if err := s.validateFullName(*update.FullName); err != nil {
			return user, err
		}
	}
	if update.Role != nil && !update.Role.Valid() {
		return user, &apperrors.FieldError{Field: "role", Message: "unknown role"}
	}

	user, err := s.storage.User().UpdateUser(ctx, id, update)
	if err != nil {
		return user, fmt.Errorf("can't update user: %w", err)
	}

	s.logger.Info("User updated", "user_id", user.ID, "actor_id", actor.ID)
	return user, nil
}

// Delete user on behalf of admin actor
// Admin can't delete their own account
func (s *UserService) DeleteUser(ctx context.Context, actor models.User, id uuid.UUID) error {
	switch {
	case !actor.IsAdmin():
		return apperrors.ErrForbidden
	case actor.ID == id:
		return apperrors.ErrSelfDeletion
	}

	if err := s.storage.User().DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("can't delete user: %w", err)
	}

	s.logger.Info("User deleted", "user_id", id, "actor_id", actor.ID)
	return nil
}

func (s *UserService) validateProfile(email string, username string, fullName string) error {
	if err := s.validateEmail(email); err != nil {
		return err
	}
	if err := s.validateUsername(username); err != nil {
		return err
	}
	return s.validateFullName(fullName)
}

func (s *UserService) validateEmail(email string) error {
	if err := s.validate.Var(email, "required,email,max=255"); err != nil {
		return &apperrors.FieldError{Field: "email", Message: "must be a valid email address"}
	}
	return nil
}

func (s *UserService) validateUsername(username string) error {
	if err := s.validate.Var(username, "omitempty,min=3,max=50"); err != nil {
		return &apperrors.FieldError{Field: "username", Message: "must be between 3 and 50 characters"}
	}
	return nil
}

func (s *UserService) validateFullName(fullName string) error {
	if err := s.validate.Var(fullName, "max=100"); err != nil {
		return &apperrors.FieldError{Field: "full_name", Message: "must be at most 100 characters"}
	}
	return nil
}
