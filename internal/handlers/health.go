package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/nkiryanov/accounts/internal/handlers/render"
	"github.com/nkiryanov/accounts/internal/logger"
)

const healthTimeout = 2 * time.Second

// Dependency the service can't work without
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	checks map[string]Pinger
	logger logger.Logger
}

func NewHealth(checks map[string]Pinger, l logger.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: l}
}

func (h *HealthHandler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	statuses := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warn("Health check failed", "check", name, "error", err)
			statuses[name] = "unavailable"
			healthy = false
			continue
		}
		statuses[name] = "ok"
	}

	if !healthy {
		render.ErrorWithDetails(w, http.StatusServiceUnavailable, "Service unavailable", statuses)
		return
	}
	render.Success(w, http.StatusOK, "Service is healthy", statuses)
}
