package mail

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/accounts/internal/logger"
	"github.com/nkiryanov/accounts/internal/testutil"
)

// Sender that fails first 'failures' sends
type fakeSender struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []Email
}

func (s *fakeSender) Send(_ context.Context, email Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.calls <= s.failures {
		return errors.New("smtp is down")
	}
	s.sent = append(s.sent, email)
	return nil
}

func (s *fakeSender) snapshot() (int, []Email) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, append([]Email(nil), s.sent...)
}

type senderFunc func(ctx context.Context, email Email) error

func (f senderFunc) Send(ctx context.Context, email Email) error { return f(ctx, email) }

func newTestWorker(t *testing.T, sender Sender) (*Worker, *Queue, *countRecorder) {
	t.Helper()

	_, rdb := testutil.StartRedis(t)
	q := NewQueue(rdb)
	r, err := NewRenderer("Accounts")
	require.NoError(t, err)
	rec := newCountRecorder()

	w := NewWorker(WorkerConfig{CountWorkers: 2, PollTimeout: time.Second, RetryDelay: 10 * time.Millisecond}, q, r, sender, logger.NewNoOpLogger(), rec)
	return w, q, rec
}

// Run worker until cond is true or timeout, then stop it and wait
func runUntil(t *testing.T, w *Worker, cond func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(t.Context())
	stopped := w.Run(ctx)

	require.Eventually(t, cond, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("worker should stop after context cancel")
	}
}

func TestWorker(t *testing.T) {
	t.Run("sends queued emails", func(t *testing.T) {
		sender := &fakeSender{}
		w, q, rec := newTestWorker(t, sender)
		for _, to := range []string{"a@example.com", "b@example.com", "c@example.com"} {
			require.NoError(t, q.Enqueue(t.Context(), Message{To: to, Template: TemplateWelcome, Data: map[string]string{"username": "nk"}}))
		}

		runUntil(t, w, func() bool {
			_, sent := sender.snapshot()
			return len(sent) == 3
		})

		_, sent := sender.snapshot()
		var to []string
		for _, e := range sent {
			to = append(to, e.To)
			assert.Equal(t, "Welcome to Our Platform!", e.Subject)
		}
		assert.ElementsMatch(t, []string{"a@example.com", "b@example.com", "c@example.com"}, to)
		assert.Equal(t, 3, rec.count("welcome:sent"))
	})

	t.Run("retries failed send", func(t *testing.T) {
		sender := &fakeSender{failures: 2}
		w, q, rec := newTestWorker(t, sender)
		require.NoError(t, q.Enqueue(t.Context(), Message{To: "nk@example.com", Template: TemplateWelcome}))

		runUntil(t, w, func() bool {
			_, sent := sender.snapshot()
			return len(sent) == 1
		})

		calls, _ := sender.snapshot()
		assert.Equal(t, 3, calls, "email should be sent on third attempt")
		assert.Equal(t, 2, rec.count("welcome:retried"))
	})

	t.Run("requeues on shutdown without counting attempt", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		sender := senderFunc(func(context.Context, Email) error {
			cancel()
			return context.Canceled
		})
		w, q, rec := newTestWorker(t, sender)

		w.handle(ctx, Message{ID: "m1", To: "nk@example.com", Template: TemplateWelcome, Attempt: MaxAttempts - 1})

		msg, err := q.Dequeue(t.Context(), time.Second)
		require.NoError(t, err, "interrupted message should be returned to queue")
		assert.Equal(t, "m1", msg.ID)
		assert.Equal(t, MaxAttempts-1, msg.Attempt, "interrupted send should not count as attempt")
		assert.Zero(t, rec.count("welcome:dropped"))
	})

	t.Run("drops after max attempts", func(t *testing.T) {
		sender := &fakeSender{failures: 100}
		w, q, _ := newTestWorker(t, sender)
		require.NoError(t, q.Enqueue(t.Context(), Message{To: "nk@example.com", Template: TemplateWelcome}))

		runUntil(t, w, func() bool {
			calls, _ := sender.snapshot()
			return calls >= MaxAttempts
		})

		// Give worker a chance to requeue if it would
		time.Sleep(100 * time.Millisecond)
		calls, sent := sender.snapshot()
		assert.Equal(t, MaxAttempts, calls, "message should not be tried more than max attempts")
		assert.Empty(t, sent)
		n, err := q.Len(t.Context())
		require.NoError(t, err)
		assert.Zero(t, n, "dropped message should not stay in queue")
	})

	t.Run("drops unknown template without sending", func(t *testing.T) {
		sender := &fakeSender{}
		w, q, rec := newTestWorker(t, sender)
		require.NoError(t, q.Enqueue(t.Context(), Message{To: "nk@example.com", Template: "unknown"}))
		require.NoError(t, q.Enqueue(t.Context(), Message{To: "nk@example.com", Template: TemplateWelcome}))

		runUntil(t, w, func() bool {
			_, sent := sender.snapshot()
			return len(sent) == 1
		})

		calls, _ := sender.snapshot()
		assert.Equal(t, 1, calls)
		assert.Equal(t, 1, rec.count("unknown:dropped"))
	})

	t.Run("stops on empty queue", func(t *testing.T) {
		w, _, _ := newTestWorker(t, &fakeSender{})
		ctx, cancel := context.WithCancel(t.Context())
		stopped := w.Run(ctx)

		cancel()

		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			t.Fatal("worker should stop after context cancel")
		}
	})
}
