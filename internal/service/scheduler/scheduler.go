// Package scheduler runs periodic jobs on cron schedules
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nkiryanov/accounts/internal/logger"
)

// Job is run by the scheduler, ctx is cancelled when scheduler stops
type Job func(ctx context.Context) error

type Scheduler struct {
	cron   *cron.Cron
	logger logger.Logger

	// Context of running jobs, set by Run
	ctx    context.Context
	cancel context.CancelFunc
}

func New(l logger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	adapter := cronLogger{l: l}

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		logger: l,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add job with standard cron spec or descriptor (@hourly, @every 10m)
func (s *Scheduler) Add(name string, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		s.logger.Debug("Job started", "job", name)

		if err := job(s.ctx); err != nil {
			s.logger.Error("Job failed", "job", name, "error", err, "duration", time.Since(start))
			return
		}

		s.logger.Info("Job finished", "job", name, "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("can't schedule %q job with spec %q: %w", name, spec, err)
	}

	s.logger.Info("Job scheduled", "job", name, "spec", spec)
	return nil
}

// Run jobs until ctx is done
// Returned channel is closed when running jobs are finished
func (s *Scheduler) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	s.cron.Start()

	go func() {
		defer close(idleStopped)
		<-ctx.Done()

		s.cancel()
		<-s.cron.Stop().Done()
		s.logger.Debug("Scheduler stopped")
	}()

	return idleStopped
}

type cronLogger struct {
	l logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
