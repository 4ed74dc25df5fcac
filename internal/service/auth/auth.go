package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/accounts/internal/apperrors"
	"github.com/nkiryanov/accounts/internal/logger"
	"github.com/nkiryanov/accounts/internal/models"
	"github.com/nkiryanov/accounts/internal/repository"
	"github.com/nkiryanov/accounts/internal/service/auth/codec"
	"github.com/nkiryanov/accounts/internal/service/auth/refresh"
)

const (
	defaultAccessTTL        = 15 * time.Minute
	defaultPasswordResetTTL = time.Hour

	// Background notification must not outlive shutdown for long
	notifyTimeout = 10 * time.Second
)

// Auth events for metrics
const (
	EventRegister       = "register"
	EventLogin          = "login"
	EventRefresh        = "refresh"
	EventLogout         = "logout"
	EventPasswordChange = "password_change"
	EventPasswordReset  = "password_reset"
)

type userCreator interface {
	CreateUser(ctx context.Context, newUser models.NewUser) (models.User, error)
}

type notifier interface {
	Welcome(ctx context.Context, user models.User) error
	PasswordReset(ctx context.Context, user models.User, token string, ttl time.Duration) error
}

type recorder interface {
	AuthEvent(event string, outcome string)
}

type Config struct {
	// Access token lifetime, 15 minutes if not set
	AccessTTL time.Duration

	// Password reset token lifetime, 1 hour if not set
	PasswordResetTTL time.Duration

	// Issue new refresh token (and revoke presented one) on every refresh
	RotateRefreshTokens bool

	// Leave refresh tokens valid when password is changed or reset
	KeepSessionsOnPasswordChange bool

	// Bcrypt hasher if not set
	Hasher PasswordHasher

	// No-op logger if not set
	Logger logger.Logger

	// Optional
	Metrics recorder
}

// Auth service
type AuthService struct {
	cfg Config

	codec   *codec.Codec
	refresh *refresh.Store
	storage repository.Storage

	users    userCreator
	notifier notifier

	// Compared against when user is unknown, so both login failures cost the same
	dummyHash string

	// Notifications that are still being enqueued
	background sync.WaitGroup
}

func NewService(cfg Config, c *codec.Codec, store *refresh.Store, storage repository.Storage, users userCreator, n notifier) (*AuthService, error) {
	if c == nil || store == nil || storage == nil || users == nil || n == nil {
		return nil, errors.New("codec, refresh store, storage, user service and notifier must not be nil")
	}

	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.PasswordResetTTL == 0 {
		cfg.PasswordResetTTL = defaultPasswordResetTTL
	}
	if cfg.Hasher == nil {
		cfg.Hasher = DefaultHasher
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}

	dummyHash, err := cfg.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("can't prepare password hasher: %w", err)
	}

	return &AuthService{
		cfg:       cfg,
		codec:     c,
		refresh:   store,
		storage:   storage,
		users:     users,
		notifier:  n,
		dummyHash: dummyHash,
	}, nil
}

// Register new active user with user role
// Welcome email is enqueued in background, its failure does not fail registration
func (s *AuthService) Register(ctx context.Context, newUser models.NewUser) (models.User, error) {
	newUser.Role = models.RoleUser
	newUser.IsActive = true

	user, err := s.users.CreateUser(ctx, newUser)
	if err != nil {
		s.event(EventRegister, err)
		return user, err
	}

	s.cfg.Logger.Info("User registered", "user_id", user.ID)
	s.event(EventRegister, nil)

	s.notify(ctx, "welcome", user.ID, func(ctx context.Context) error {
		return s.notifier.Welcome(ctx, user)
	})

	return user, nil
}

// Login with email and password
//
// Errors:
//   - apperrors.ErrInvalidCredentials if email is unknown or password does not match
//   - apperrors.ErrInactiveUser if user is deactivated
func (s *AuthService) Login(ctx context.Context, email string, password string) (models.TokenPair, error) {
	pair, err := s.login(ctx, email, password)
	s.event(EventLogin, err)
	return pair, err
}

func (s *AuthService) login(ctx context.Context, email string, password string) (models.TokenPair, error) {
	var pair models.TokenPair

	user, err := s.storage.User().GetUserByEmail(ctx, models.NormalizeEmail(email))
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrUserNotFound):
		_ = s.cfg.Hasher.Compare(s.dummyHash, password)
		return pair, apperrors.ErrInvalidCredentials
	default:
		return pair, fmt.Errorf("can't get user: %w", err)
	}

	if err := s.cfg.Hasher.Compare(user.HashedPassword, password); err != nil {
		return pair, apperrors.ErrInvalidCredentials
	}

	if !user.IsActive {
		return pair, apperrors.ErrInactiveUser
	}

	pair.Access, err = s.accessToken(user.ID)
	if err != nil {
		return pair, err
	}

	pair.Refresh, err = s.refresh.Issue(ctx, s.storage.Refresh(), user.ID)
	if err != nil {
		return pair, err
	}

	s.cfg.Logger.Info("User logged in", "user_id", user.ID)
	return pair, nil
}

// Exchange refresh token for new access token
// Presented refresh token is returned back unless rotation is enabled
//
// Errors:
//   - apperrors.ErrTokenInvalid if token is not a known refresh token or its user is gone
//   - apperrors.ErrTokenRevoked, apperrors.ErrTokenExpired
//   - apperrors.ErrInactiveUser if user was deactivated
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	var pair models.TokenPair

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		stored, err := s.refresh.Validate(ctx, storage.Refresh(), refreshToken)
		if errors.Is(err, apperrors.ErrRefreshTokenNotFound) {
			return fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
		}
		if err != nil {
			return err
		}

		user, err := storage.User().GetUserByID(ctx, stored.UserID)
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			return fmt.Errorf("%w: token owner is gone", apperrors.ErrTokenInvalid)
		case err != nil:
			return fmt.Errorf("can't get user: %w", err)
		case !user.IsActive:
			return apperrors.ErrInactiveUser
		}

		pair.Access, err = s.accessToken(user.ID)
		if err != nil {
			return err
		}

		if !s.cfg.RotateRefreshTokens {
			pair.Refresh = models.IssuedToken{Value: refreshToken, ExpiresAt: stored.ExpiresAt}
			return nil
		}

		// Only one of concurrent rotations of the same token wins
		if err := s.refresh.Consume(ctx, storage.Refresh(), refreshToken); err != nil {
			return err
		}
		pair.Refresh, err = s.refresh.Issue(ctx, storage.Refresh(), user.ID)
		return err
	})

	s.event(EventRefresh, err)
	if err != nil {
		return models.TokenPair{}, err
	}
	return pair, nil
}

// Revoke refresh token
// Never fails: unknown, revoked or broken tokens are ignored and storage failures are only logged
func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	err := s.refresh.Revoke(ctx, s.storage.Refresh(), refreshToken)
	if err != nil {
		s.cfg.Logger.Error("Failed to revoke refresh token on logout", "error", err)
	}
	s.event(EventLogout, err)
}

// Change password of authenticated user
// Unless sessions are kept on password change, all refresh tokens of the user are revoked
//
// Errors:
//   - apperrors.ErrInvalidCredentials if current password does not match
//   - apperrors.ErrValidation if new password is not acceptable
func (s *AuthService) UpdatePassword(ctx context.Context, user models.User, currentPassword string, newPassword string) error {
	err := s.updatePassword(ctx, user, currentPassword, newPassword)
	s.event(EventPasswordChange, err)
	return err
}

func (s *AuthService) updatePassword(ctx context.Context, user models.User, currentPassword string, newPassword string) error {
	if err := s.cfg.Hasher.Compare(user.HashedPassword, currentPassword); err != nil {
		return apperrors.ErrInvalidCredentials
	}

	if err := s.setPassword(ctx, user.ID, newPassword); err != nil {
		return err
	}

	s.cfg.Logger.Info("Password changed", "user_id", user.ID)
	return nil
}

// Send password reset email
// Unknown or inactive emails are silently ignored, so callers can't probe which emails exist
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.storage.User().GetUserByEmail(ctx, models.NormalizeEmail(email))
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		s.cfg.Logger.Debug("Password reset requested for unknown email")
		return nil
	case err != nil:
		return fmt.Errorf("can't get user: %w", err)
	case !user.IsActive:
		s.cfg.Logger.Debug("Password reset requested for inactive user", "user_id", user.ID)
		return nil
	}

	token, err := s.codec.Mint(user.Email, models.TokenTypePasswordReset, s.cfg.PasswordResetTTL)
	if err != nil {
		return fmt.Errorf("can't mint password reset token: %w", err)
	}

	s.notify(ctx, "password_reset", user.ID, func(ctx context.Context) error {
		return s.notifier.PasswordReset(ctx, user, token.Value, s.cfg.PasswordResetTTL)
	})

	return nil
}

// Set new password with token from password reset email
//
// Errors:
//   - apperrors.ErrTokenInvalid if token is broken, of other type or its user is gone
//   - apperrors.ErrTokenExpired
//   - apperrors.ErrInactiveUser if user was deactivated
//   - apperrors.ErrValidation if new password is not acceptable
func (s *AuthService) ResetPassword(ctx context.Context, token string, newPassword string) error {
	err := s.resetPassword(ctx, token, newPassword)
	s.event(EventPasswordReset, err)
	return err
}

func (s *AuthService) resetPassword(ctx context.Context, token string, newPassword string) error {
	claims, err := s.codec.Verify(token)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrTokenExpired):
		return err
	default:
		return fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
	}

	if claims.Type != models.TokenTypePasswordReset {
		return fmt.Errorf("%w: unexpected token type %q", apperrors.ErrTokenInvalid, claims.Type)
	}

	user, err := s.storage.User().GetUserByEmail(ctx, claims.Subject)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return fmt.Errorf("%w: token owner is gone", apperrors.ErrTokenInvalid)
	case err != nil:
		return fmt.Errorf("can't get user: %w", err)
	case !user.IsActive:
		return apperrors.ErrInactiveUser
	}

	if err := s.setPassword(ctx, user.ID, newPassword); err != nil {
		return err
	}

	s.cfg.Logger.Info("Password reset", "user_id", user.ID)
	return nil
}

// Resolve user by access token
// Any failure matches apperrors.ErrUnauthorized, except storage errors
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (models.User, error) {
	var none models.User

	claims, err := s.codec.Verify(accessToken)
	if err != nil {
		return none, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}

	if claims.Type != models.TokenTypeAccess {
		return none, fmt.Errorf("%w: unexpected token type %q", apperrors.ErrUnauthorized, claims.Type)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return none, fmt.Errorf("%w: bad subject", apperrors.ErrUnauthorized)
	}

	user, err := s.storage.User().GetUserByID(ctx, userID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return none, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	case err != nil:
		return none, fmt.Errorf("can't get user: %w", err)
	case !user.IsActive:
		return none, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, apperrors.ErrInactiveUser)
	}

	return user, nil
}

// Wait for background notifications to be enqueued
func (s *AuthService) Wait() {
	s.background.Wait()
}

func (s *AuthService) accessToken(userID uuid.UUID) (models.IssuedToken, error) {
	token, err := s.codec.Mint(userID.String(), models.TokenTypeAccess, s.cfg.AccessTTL)
	if err != nil {
		return token, fmt.Errorf("can't mint access token: %w", err)
	}
	return token, nil
}

func (s *AuthService) setPassword(ctx context.Context, userID uuid.UUID, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}

	hash, err := s.cfg.Hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("can't use this as password: %w", err)
	}

	return s.storage.InTx(ctx, func(storage repository.Storage) error {
		if err := storage.User().SetPassword(ctx, userID, hash); err != nil {
			return fmt.Errorf("can't set password: %w", err)
		}

		if s.cfg.KeepSessionsOnPasswordChange {
			return nil
		}

		count, err := s.refresh.RevokeAll(ctx, storage.Refresh(), userID)
		if err != nil {
			return err
		}
		s.cfg.Logger.Info("User sessions revoked", "user_id", userID, "count", count)
		return nil
	})
}

// Run notification detached from request, so slow queue never delays the response
func (s *AuthService) notify(ctx context.Context, kind string, userID uuid.UUID, send func(ctx context.Context) error) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		if err := send(ctx); err != nil {
			s.cfg.Logger.Error("Failed to enqueue email", "kind", kind, "user_id", userID, "error", err)
		}
	}()
}

func (s *AuthService) event(event string, err error) {
	if s.cfg.Metrics == nil {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.cfg.Metrics.AuthEvent(event, outcome)
}
