package mail

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nkiryanov/accounts/internal/logger"
)

const (
	MaxAttempts = 3 // Sends of one message before it is dropped

	defaultCountWorkers = 4
	defaultPollTimeout  = time.Second
	defaultRetryDelay   = 5 * time.Second
)

type WorkerConfig struct {
	CountWorkers int
	PollTimeout  time.Duration
	RetryDelay   time.Duration
}

// Worker pulls messages from the queue, renders and sends them
// One poller moves messages from redis to a channel, consumers do the sending
type Worker struct {
	cfg      WorkerConfig
	queue    *Queue
	renderer *Renderer
	sender   Sender
	logger   logger.Logger
	metrics  recorder
}

func NewWorker(cfg WorkerConfig, queue *Queue, renderer *Renderer, sender Sender, l logger.Logger, m recorder) *Worker {
	if cfg.CountWorkers <= 0 {
		cfg.CountWorkers = defaultCountWorkers
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if m == nil {
		m = noopRecorder{}
	}

	return &Worker{
		cfg:      cfg,
		queue:    queue,
		renderer: renderer,
		sender:   sender,
		logger:   l,
		metrics:  m,
	}
}

// Run workers until ctx is done
// Returned channel is closed when all of them are stopped
func (w *Worker) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	msgChan := make(chan Message)

	pollerStopped := w.poll(ctx, msgChan)

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.CountWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(ctx, msgChan)
		}()
	}

	go func() {
		defer close(idleStopped)
		<-pollerStopped
		close(msgChan)
		wg.Wait()
		w.logger.Debug("Mail worker stopped")
	}()

	return idleStopped
}

func (w *Worker) poll(ctx context.Context, out chan<- Message) <-chan struct{} {
	idleStopped := make(chan struct{})
	w.logger.Debug("Starting mail poller", "workers", w.cfg.CountWorkers, "poll_timeout", w.cfg.PollTimeout)

	go func() {
		defer close(idleStopped)

		for {
			if ctx.Err() != nil {
				w.logger.Debug("Mail poller stopped by context")
				return
			}

			msg, err := w.queue.Dequeue(ctx, w.cfg.PollTimeout)
			switch {
			case err == nil:
			case errors.Is(err, ErrQueueEmpty):
				continue
			case errors.Is(err, ErrBadMessage):
				w.logger.Error("Dropping undecodable mail message", "error", err)
				continue
			case ctx.Err() != nil:
				continue
			default:
				w.logger.Error("Failed to dequeue mail message", "error", err)
				w.sleep(ctx, w.cfg.PollTimeout)
				continue
			}

			select {
			case out <- msg:
			case <-ctx.Done():
				// Taken from redis but nobody will handle it, put it back
				w.requeue(msg)
				return
			}
		}
	}()

	return idleStopped
}

func (w *Worker) consume(ctx context.Context, in <-chan Message) {
	for msg := range in {
		w.handle(ctx, msg)
	}
}

func (w *Worker) handle(ctx context.Context, msg Message) {
	log := w.logger.With("message_id", msg.ID, "template", msg.Template, "to", msg.To, "attempt", msg.Attempt+1)
	log.Info("Start sending email")

	email, err := w.renderer.Render(msg)
	if err != nil {
		// Rendering is deterministic, retry won't help
		log.Error("Failed to render email, dropping", "error", err)
		w.metrics.MailEvent(msg.Template, StageDropped)
		return
	}

	err = w.sender.Send(ctx, email)
	if err == nil {
		log.Info("Email sent")
		w.metrics.MailEvent(msg.Template, StageSent)
		return
	}

	// Interrupted by shutdown, it is not a delivery failure
	if ctx.Err() != nil {
		log.Warn("Sending interrupted, returning email to queue", "error", err)
		w.requeue(msg)
		w.metrics.MailEvent(msg.Template, StageRetried)
		return
	}

	msg.Attempt++
	if msg.Attempt >= MaxAttempts {
		log.Error("Failed to send email, attempts exhausted", "error", err)
		w.metrics.MailEvent(msg.Template, StageDropped)
		return
	}

	log.Warn("Failed to send email, will retry", "error", err, "retry_in", w.cfg.RetryDelay)
	w.sleep(ctx, w.cfg.RetryDelay)
	w.requeue(msg)
	w.metrics.MailEvent(msg.Template, StageRetried)
}

// Requeue must survive shutdown, so it never uses the worker context
func (w *Worker) requeue(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.queue.Enqueue(ctx, msg); err != nil {
		w.logger.Error("Failed to requeue email, message lost", "error", err, "message_id", msg.ID)
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
