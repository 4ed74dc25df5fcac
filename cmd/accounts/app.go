package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/accounts/internal/config"
	"github.com/nkiryanov/accounts/internal/db"
	"github.com/nkiryanov/accounts/internal/handlers"
	"github.com/nkiryanov/accounts/internal/logger"
	"github.com/nkiryanov/accounts/internal/metrics"
	"github.com/nkiryanov/accounts/internal/repository/postgres"
	"github.com/nkiryanov/accounts/internal/service/auth"
	"github.com/nkiryanov/accounts/internal/service/auth/codec"
	"github.com/nkiryanov/accounts/internal/service/auth/refresh"
	"github.com/nkiryanov/accounts/internal/service/mail"
	"github.com/nkiryanov/accounts/internal/service/scheduler"
	"github.com/nkiryanov/accounts/internal/service/user"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger    logger.Logger
	auth      *auth.AuthService
	scheduler *scheduler.Scheduler
	pool      *pgxpool.Pool
	redis     *redis.Client
}

func NewServerApp(ctx context.Context, c *config.Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	redisOpts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)

	app, err := newServerApp(c, logger, pool, rdb)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, err
	}
	return app, nil
}

func newServerApp(c *config.Config, logger logger.Logger, pool *pgxpool.Pool, rdb *redis.Client) (*ServerApp, error) {
	m := metrics.New()
	storage := postgres.NewStorage(pool)

	// Initialize services
	tokenCodec, err := codec.New(codec.Config{SecretKey: c.Auth.SecretKey, Alg: c.Auth.JWTAlgorithm})
	if err != nil {
		return nil, fmt.Errorf("error while creating token codec: %w", err)
	}
	refreshStore := refresh.New(refresh.Config{TTL: c.Auth.RefreshTokenTTL}, tokenCodec)

	queue := mail.NewQueue(rdb, mail.WithQueueMetrics(m))
	notifier := mail.NewNotifier(queue, c.Mail.FrontendURL)

	userService := user.NewService(auth.DefaultHasher, storage, logger)
	authService, err := auth.NewService(auth.Config{
		AccessTTL:                    c.Auth.AccessTokenTTL,
		PasswordResetTTL:             c.Auth.PasswordResetTTL,
		RotateRefreshTokens:          c.Auth.RotateRefreshTokens,
		KeepSessionsOnPasswordChange: c.Auth.KeepSessionsOnPasswordChange,
		Logger:                       logger,
		Metrics:                      m,
	}, tokenCodec, refreshStore, storage, userService, notifier)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	// Background jobs
	sched := scheduler.New(logger)
	janitor := scheduler.NewJanitor(storage.Refresh(), c.Jobs.TokenRetention, logger, m)
	if err := sched.Add("refresh-token-cleanup", c.Jobs.TokenCleanupSchedule, janitor.Run); err != nil {
		return nil, err
	}

	router := handlers.NewRouter(
		handlers.RouterConfig{
			Cookies: handlers.CookieConfig{Secure: c.Auth.CookieSecure},
			HealthChecks: map[string]handlers.Pinger{
				"postgres": handlers.PingFunc(pool.Ping),
				"redis": handlers.PingFunc(func(ctx context.Context) error {
					return rdb.Ping(ctx).Err()
				}),
			},
		},
		authService,
		userService,
		m,
		logger,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    router,
		logger:     logger,
		auth:       authService,
		scheduler:  sched,
		pool:       pool,
		redis:      rdb,
	}, nil
}

// Run starts http server and background jobs, closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	jobsStopped := s.scheduler.Run(srvCtx)
	idleConnsClosed := make(chan struct{})

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-jobsStopped

	// Let pending notifications reach the queue
	s.auth.Wait()

	return err
}

func (s *ServerApp) Close() {
	s.pool.Close()
	if err := s.redis.Close(); err != nil {
		s.logger.Warn("Can't close redis client", "error", err)
	}
}
