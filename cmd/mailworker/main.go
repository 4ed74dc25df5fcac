// Mail worker sends emails queued by the accounts service
// Optionally it also runs promotion campaign on schedule
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/accounts/internal/config"
	"github.com/nkiryanov/accounts/internal/db"
	"github.com/nkiryanov/accounts/internal/logger"
	"github.com/nkiryanov/accounts/internal/metrics"
	"github.com/nkiryanov/accounts/internal/repository/postgres"
	"github.com/nkiryanov/accounts/internal/service/mail"
	"github.com/nkiryanov/accounts/internal/service/scheduler"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Getenv, os.Getwd, os.Args[1:]); err != nil {
		slog.Error("Mail worker stopped with error", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, getenv func(string) string, getwd func() (string, error), args []string) error {
	var metricsAddr string
	fs := pflag.NewFlagSet("mailworker", pflag.ContinueOnError)
	fs.StringVar(&metricsAddr, "metrics-address", "", "Serve /metrics on this address, disabled if empty")

	cfg, err := config.Load(fs, getenv, getwd, args)
	if err != nil {
		return err
	}
	if err := cfg.ValidateWorker(); err != nil {
		return err
	}

	l, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("error while initializing logger: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close() // nolint:errcheck

	m := metrics.New()
	queue := mail.NewQueue(rdb, mail.WithQueueMetrics(m))

	renderer, err := mail.NewRenderer(cfg.Mail.ProjectName)
	if err != nil {
		return err
	}
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		Username: cfg.Mail.SMTPUsername,
		Password: cfg.Mail.SMTPPassword,
		From:     cfg.Mail.From,
		FromName: cfg.Mail.FromName,
		StartTLS: cfg.Mail.SMTPStartTLS,
	})
	if err != nil {
		return err
	}

	jobsStopped, err := runPromotion(ctx, cfg, queue, l)
	if err != nil {
		return err
	}

	worker := mail.NewWorker(mail.WorkerConfig{CountWorkers: cfg.Mail.Workers}, queue, renderer, sender, l, m)
	l.Info("Mail worker started", "workers", cfg.Mail.Workers)
	workerStopped := worker.Run(ctx)

	if metricsAddr != "" {
		go serveMetrics(ctx, metricsAddr, m, l)
	}

	<-workerStopped
	<-jobsStopped
	return nil
}

// Schedule promotion campaign if it is enabled
// Returned channel is closed when scheduler is stopped
func runPromotion(ctx context.Context, cfg *config.Config, queue *mail.Queue, l logger.Logger) (<-chan struct{}, error) {
	if cfg.Jobs.PromotionSchedule == "" {
		stopped := make(chan struct{})
		close(stopped)
		return stopped, nil
	}

	pool, err := db.Connect(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	users := postgres.NewStorage(pool).User()
	notifier := mail.NewNotifier(queue, cfg.Mail.FrontendURL)
	promo := mail.Promotion{
		Title:   cfg.Jobs.PromotionTitle,
		Content: cfg.Jobs.PromotionContent,
		Link:    cfg.Jobs.PromotionLink,
	}

	sched := scheduler.New(l)
	err = sched.Add("promotion-campaign", cfg.Jobs.PromotionSchedule, func(ctx context.Context) error {
		queued, err := notifier.Promotion(ctx, users, promo)
		l.Info("Promotion emails queued", "count", queued)
		return err
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	schedStopped := sched.Run(ctx)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-schedStopped
		pool.Close()
	}()

	return stopped, nil
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, l logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(timeoutCtx)
	}()

	l.Info("Serving metrics", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("Metrics server error", "error", err)
	}
}
