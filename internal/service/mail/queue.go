package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultQueueKey = "mail:queue"

var (
	// Nothing was queued during poll timeout
	ErrQueueEmpty = errors.New("mail queue is empty")

	// Queued payload could not be decoded
	ErrBadMessage = errors.New("bad mail message")
)

// Queue of mail jobs on a redis list
// Producers LPUSH, workers BRPOP, so jobs are handled in FIFO order
type Queue struct {
	rdb     redis.UniversalClient
	key     string
	metrics recorder
}

type QueueOption func(*Queue)

func WithQueueKey(key string) QueueOption {
	return func(q *Queue) {
		q.key = key
	}
}

func WithQueueMetrics(m recorder) QueueOption {
	return func(q *Queue) {
		if m != nil {
			q.metrics = m
		}
	}
}

func NewQueue(rdb redis.UniversalClient, opts ...QueueOption) *Queue {
	q := &Queue{
		rdb:     rdb,
		key:     DefaultQueueKey,
		metrics: noopRecorder{},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Put message to the queue
// ID and EnqueuedAt are set if empty
func (q *Queue) Enqueue(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("can't encode mail message: %w", err)
	}

	if err := q.rdb.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("can't enqueue mail message: %w", err)
	}

	q.metrics.MailEvent(msg.Template, StageEnqueued)
	return nil
}

// Wait up to timeout for the next message
// Returns ErrQueueEmpty on timeout and ErrBadMessage if payload is broken (it is removed from the queue anyway)
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (Message, error) {
	var msg Message

	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return msg, ErrQueueEmpty
	case err != nil:
		return msg, fmt.Errorf("can't dequeue mail message: %w", err)
	}

	// BRPOP replies with [key, value]
	if len(res) != 2 {
		return msg, fmt.Errorf("%w: unexpected reply %v", ErrBadMessage, res)
	}

	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return msg, fmt.Errorf("%w: %w", ErrBadMessage, err)
	}

	return msg, nil
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
