package handlers

import (
	"net/http"

	"github.com/nkiryanov/accounts/internal/handlers/middleware"
	"github.com/nkiryanov/accounts/internal/handlers/render"
	"github.com/nkiryanov/accounts/internal/logger"
	"github.com/nkiryanov/accounts/internal/metrics"
	"github.com/nkiryanov/accounts/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type RouterConfig struct {
	Cookies CookieConfig

	// Checked by /healthz
	HealthChecks map[string]Pinger
}

func NewRouter(
	cfg RouterConfig,
	authService authService,
	userService userService,
	m *metrics.Metrics,
	logger logger.Logger,
) http.Handler {
	authH := NewAuth(authService, cfg.Cookies, logger)
	userH := NewUser(userService, logger)
	healthH := NewHealth(cfg.HealthChecks, logger)

	withAuth := middleware.Auth(authService, logger)
	withAdmin := func(h http.Handler) http.Handler {
		return withAuth(middleware.RequireRole(models.RoleAdmin)(h))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", authH.register)
	mux.HandleFunc("POST /api/auth/login", authH.login)
	mux.HandleFunc("POST /api/auth/refresh-token", authH.refresh)
	mux.HandleFunc("POST /api/auth/logout", authH.logout)
	mux.HandleFunc("POST /api/auth/password-reset", authH.requestPasswordReset)
	mux.HandleFunc("POST /api/auth/password-reset/confirm", authH.confirmPasswordReset)

	mux.Handle("GET /api/users/me", withAuth(http.HandlerFunc(userH.me)))
	mux.Handle("POST /api/users/change-password", withAuth(http.HandlerFunc(authH.changePassword)))
	mux.Handle("GET /api/users", withAdmin(http.HandlerFunc(userH.list)))
	mux.Handle("POST /api/users", withAdmin(http.HandlerFunc(userH.create)))
	mux.Handle("GET /api/users/{id}", withAuth(http.HandlerFunc(userH.get)))
	mux.Handle("PUT /api/users/{id}", withAuth(http.HandlerFunc(userH.update)))
	mux.Handle("DELETE /api/users/{id}", withAdmin(http.HandlerFunc(userH.delete)))

	mux.HandleFunc("GET /healthz", healthH.health)
	mux.Handle("GET /metrics", m.Handler())

	// Envelope for unknown routes instead of plain text
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		render.Error(w, http.StatusNotFound, "Not found")
	})

	return chain(mux,
		middleware.Logger(logger),
		middleware.Recover(logger),
		middleware.Metrics(m),
	)
}
