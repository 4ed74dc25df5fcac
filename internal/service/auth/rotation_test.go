package auth_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/accounts/internal/apperrors"
	"github.com/nkiryanov/accounts/internal/logger"
	"github.com/nkiryanov/accounts/internal/models"
	"github.com/nkiryanov/accounts/internal/repository"
	"github.com/nkiryanov/accounts/internal/service/auth"
	"github.com/nkiryanov/accounts/internal/service/auth/codec"
	"github.com/nkiryanov/accounts/internal/service/auth/refresh"
	"github.com/nkiryanov/accounts/internal/service/user"
)

// Refresh token repo where every reader waits for the others before going on
// So all concurrent transactions see the row as it was before any of them wrote
type snapshotRefreshRepo struct {
	repository.RefreshTokenRepo

	mu      sync.Mutex
	tokens  map[string]models.RefreshToken
	readers sync.WaitGroup
}

func (r *snapshotRefreshRepo) Save(_ context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.TokenHash] = token
	return token, nil
}

func (r *snapshotRefreshRepo) Get(_ context.Context, tokenHash string) (models.RefreshToken, error) {
	r.mu.Lock()
	token, ok := r.tokens[tokenHash]
	r.mu.Unlock()

	r.readers.Done()
	r.readers.Wait()

	if !ok {
		return token, apperrors.ErrRefreshTokenNotFound
	}
	return token, nil
}

func (r *snapshotRefreshRepo) RevokeActive(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenHash]
	if !ok || token.Revoked {
		return apperrors.ErrTokenRevoked
	}
	token.Revoked = true
	r.tokens[tokenHash] = token
	return nil
}

type oneUserRepo struct {
	repository.UserRepo
	user models.User
}

func (r *oneUserRepo) GetUserByID(_ context.Context, id uuid.UUID) (models.User, error) {
	if id != r.user.ID {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return r.user, nil
}

type memStorage struct {
	users  *oneUserRepo
	tokens *snapshotRefreshRepo
}

func (s *memStorage) User() repository.UserRepo            { return s.users }
func (s *memStorage) Refresh() repository.RefreshTokenRepo { return s.tokens }
func (s *memStorage) InTx(_ context.Context, fn func(repository.Storage) error) error {
	return fn(s)
}

func TestAuthService_ConcurrentRotation(t *testing.T) {
	hasher := auth.BcryptHasher{Cost: bcrypt.MinCost}
	owner := models.User{ID: uuid.New(), Email: "nk@example.com", Role: models.RoleUser, IsActive: true}
	storage := &memStorage{
		users:  &oneUserRepo{user: owner},
		tokens: &snapshotRefreshRepo{tokens: make(map[string]models.RefreshToken)},
	}

	c, err := codec.New(codec.Config{SecretKey: secret})
	require.NoError(t, err)
	store := refresh.New(refresh.Config{}, c)

	s, err := auth.NewService(
		auth.Config{RotateRefreshTokens: true, Hasher: hasher, Logger: logger.NewNoOpLogger()},
		c, store, storage, user.NewService(hasher, storage, nil), &fakeNotifier{},
	)
	require.NoError(t, err)

	issued, err := store.Issue(t.Context(), storage.Refresh(), owner.ID)
	require.NoError(t, err)

	const callers = 2
	storage.tokens.readers.Add(callers)

	errs := make([]error, callers)
	pairs := make([]models.TokenPair, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pairs[i], errs[i] = s.Refresh(context.Background(), issued.Value)
		}()
	}
	wg.Wait()

	succeeded := 0
	for i, err := range errs {
		if err == nil {
			succeeded++
			require.NotEqual(t, issued.Value, pairs[i].Refresh.Value, "winner should get new refresh token")
			continue
		}
		require.ErrorIs(t, err, apperrors.ErrTokenRevoked, "loser should see token revoked")
	}
	require.Equal(t, 1, succeeded, "exactly one rotation of the same token should succeed")
}
