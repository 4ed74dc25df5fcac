// Package refresh keeps issued refresh tokens revocable
//
// Tokens are signed by the codec and only their sha256 hash is persisted.
// Every operation receives the repository explicitly, so callers decide
// whether it runs on the pool or inside their transaction.
package refresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/accounts/internal/apperrors"
	"github.com/nkiryanov/accounts/internal/models"
	"github.com/nkiryanov/accounts/internal/repository"
	"github.com/nkiryanov/accounts/internal/service/auth/codec"
)

const defaultTTL = 7 * 24 * time.Hour

type Config struct {
	// Refresh token lifetime
	// If not set than default is used
	TTL time.Duration
}

type Store struct {
	ttl   time.Duration
	codec *codec.Codec
	now   func() time.Time
}

func New(cfg Config, c *codec.Codec) *Store {
	if cfg.TTL == 0 {
		cfg.TTL = defaultTTL
	}

	return &Store{
		ttl:   cfg.TTL,
		codec: c,
		now:   time.Now,
	}
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Issue new refresh token for the user and persist it
// Each call creates an independent session
func (s *Store) Issue(ctx context.Context, repo repository.RefreshTokenRepo, userID uuid.UUID) (models.IssuedToken, error) {
	token, err := s.codec.Mint(userID.String(), models.TokenTypeRefresh, s.ttl)
	if err != nil {
		return token, fmt.Errorf("error while minting refresh token: %w", err)
	}

	_, err = repo.Save(ctx, models.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: Hash(token.Value),
		CreatedAt: s.now(),
		ExpiresAt: token.ExpiresAt,
		Revoked:   false,
	})
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while saving refresh token: %w", err)
	}

	return token, nil
}

// Validate token and return its stored record, UserID is the owner
//
// Errors:
//   - apperrors.ErrTokenInvalid if token is not a valid refresh token or belongs to other user
//   - apperrors.ErrRefreshTokenNotFound if token was never issued
//   - apperrors.ErrTokenRevoked if token was revoked
//   - apperrors.ErrTokenExpired if signed or stored expiration passed
func (s *Store) Validate(ctx context.Context, repo repository.RefreshTokenRepo, token string) (models.RefreshToken, error) {
	var none models.RefreshToken

	claims, err := s.codec.Verify(token)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrTokenExpired):
		return none, err
	default:
		return none, fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
	}

	if claims.Type != models.TokenTypeRefresh {
		return none, fmt.Errorf("%w: unexpected token type %q", apperrors.ErrTokenInvalid, claims.Type)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return none, fmt.Errorf("%w: bad subject", apperrors.ErrTokenInvalid)
	}

	stored, err := repo.Get(ctx, Hash(token))
	if err != nil {
		return none, fmt.Errorf("error while getting refresh token: %w", err)
	}

	switch {
	case stored.Revoked:
		return none, apperrors.ErrTokenRevoked
	case !s.now().Before(stored.ExpiresAt):
		return none, apperrors.ErrTokenExpired
	case stored.UserID != userID:
		return none, fmt.Errorf("%w: token owner mismatch", apperrors.ErrTokenInvalid)
	}

	return stored, nil
}

// Revoke token
// Unknown and already revoked tokens are not an error, only storage failures are returned
func (s *Store) Revoke(ctx context.Context, repo repository.RefreshTokenRepo, token string) error {
	err := repo.Revoke(ctx, Hash(token))
	if err != nil && !errors.Is(err, apperrors.ErrRefreshTokenNotFound) {
		return fmt.Errorf("error while revoking refresh token: %w", err)
	}

	return nil
}

// Revoke token that was validated before, for rotation
// Fails with apperrors.ErrTokenRevoked if somebody revoked it in between
func (s *Store) Consume(ctx context.Context, repo repository.RefreshTokenRepo, token string) error {
	err := repo.RevokeActive(ctx, Hash(token))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperrors.ErrTokenRevoked):
		return apperrors.ErrTokenRevoked
	default:
		return fmt.Errorf("error while consuming refresh token: %w", err)
	}
}

// Revoke every active token of the user
func (s *Store) RevokeAll(ctx context.Context, repo repository.RefreshTokenRepo, userID uuid.UUID) (int64, error) {
	count, err := repo.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("error while revoking user refresh tokens: %w", err)
	}

	return count, nil
}

// Hash of the token as it stored in repository
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
