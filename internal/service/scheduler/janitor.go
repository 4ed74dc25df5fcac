package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/nkiryanov/accounts/internal/logger"
	"github.com/nkiryanov/accounts/internal/repository"
)

const DefaultRetention = 24 * time.Hour

type tokensDeletedRecorder interface {
	TokensDeleted(count int64)
}

// Janitor deletes refresh tokens expired more than retention ago
type Janitor struct {
	tokens    repository.RefreshTokenRepo
	retention time.Duration
	logger    logger.Logger
	metrics   tokensDeletedRecorder
	now       func() time.Time
}

func NewJanitor(tokens repository.RefreshTokenRepo, retention time.Duration, l logger.Logger, m tokensDeletedRecorder) *Janitor {
	if retention <= 0 {
		retention = DefaultRetention
	}

	return &Janitor{
		tokens:    tokens,
		retention: retention,
		logger:    l,
		metrics:   m,
		now:       time.Now,
	}
}

func (j *Janitor) Run(ctx context.Context) error {
	before := j.now().Add(-j.retention)

	count, err := j.tokens.DeleteExpired(ctx, before)
	if err != nil {
		return fmt.Errorf("can't delete expired refresh tokens: %w", err)
	}

	if j.metrics != nil {
		j.metrics.TokensDeleted(count)
	}
	j.logger.Info("Expired refresh tokens deleted", "count", count, "expired_before", before)

	return nil
}
