package mail

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/accounts/internal/models"
	"github.com/nkiryanov/accounts/internal/repository"
	"github.com/nkiryanov/accounts/internal/testutil"
)

// Only ListUsers is used by campaigns
type listUsersRepo struct {
	repository.UserRepo
	users []models.User
	err   error
}

func (r *listUsersRepo) ListUsers(_ context.Context, opts repository.ListUsersOpts) ([]models.User, error) {
	if r.err != nil {
		return nil, r.err
	}
	if opts.Offset >= len(r.users) {
		return nil, nil
	}
	end := min(opts.Offset+opts.Limit, len(r.users))
	return r.users[opts.Offset:end], nil
}

func drain(t *testing.T, q *Queue) []Message {
	t.Helper()

	var msgs []Message
	for {
		msg, err := q.Dequeue(t.Context(), time.Second)
		if errors.Is(err, ErrQueueEmpty) {
			return msgs
		}
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}
}

func TestNotifier(t *testing.T) {
	user := models.User{Email: "nk@example.com", Username: "nkiryanov", IsActive: true}

	t.Run("welcome", func(t *testing.T) {
		_, rdb := testutil.StartRedis(t)
		q := NewQueue(rdb)
		n := NewNotifier(q, "http://localhost:3000/")

		require.NoError(t, n.Welcome(t.Context(), user))

		msgs := drain(t, q)
		require.Len(t, msgs, 1)
		assert.Equal(t, "nk@example.com", msgs[0].To)
		assert.Equal(t, TemplateWelcome, msgs[0].Template)
		assert.Equal(t, "nkiryanov", msgs[0].Data["username"])
		assert.Equal(t, "http://localhost:3000/login", msgs[0].Data["login_url"], "trailing slash should be trimmed")
	})

	t.Run("password reset", func(t *testing.T) {
		_, rdb := testutil.StartRedis(t)
		q := NewQueue(rdb)
		n := NewNotifier(q, "http://localhost:3000")

		require.NoError(t, n.PasswordReset(t.Context(), user, "a.b+c", time.Hour))

		msgs := drain(t, q)
		require.Len(t, msgs, 1)
		assert.Equal(t, TemplatePasswordReset, msgs[0].Template)
		assert.Equal(t, "1", msgs[0].Data["valid_hours"])

		u, err := url.Parse(msgs[0].Data["reset_url"])
		require.NoError(t, err)
		assert.Equal(t, "/reset-password", u.Path)
		assert.Equal(t, "a.b+c", u.Query().Get("token"), "token should survive url encoding")
	})

	t.Run("display name fallback", func(t *testing.T) {
		assert.Equal(t, "nkiryanov", displayName(models.User{Email: "nk@example.com", Username: "nkiryanov", FullName: "Nikita"}))
		assert.Equal(t, "Nikita", displayName(models.User{Email: "nk@example.com", FullName: "Nikita"}))
		assert.Equal(t, "nk@example.com", displayName(models.User{Email: "nk@example.com"}))
	})

	t.Run("promotion to active users", func(t *testing.T) {
		_, rdb := testutil.StartRedis(t)
		q := NewQueue(rdb)
		n := NewNotifier(q, "http://localhost:3000")
		n.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }

		var users []models.User
		for i := range 2*campaignPageSize + 5 {
			users = append(users, models.User{Email: fmt.Sprintf("u%d@example.com", i), IsActive: i%10 != 0})
		}

		queued, err := n.Promotion(t.Context(), &listUsersRepo{users: users}, Promotion{Title: "Sale", Content: "Half price", Link: "http://localhost:3000/sale"})

		require.NoError(t, err)
		assert.Equal(t, 184, queued, "inactive users (every tenth) should be skipped")
		msgs := drain(t, q)
		require.Len(t, msgs, 184)
		assert.Equal(t, TemplatePromotion, msgs[0].Template)
		assert.Equal(t, "u1@example.com", msgs[0].To)
		assert.Equal(t, "Sale", msgs[0].Data["promotion_title"])
		assert.Equal(t, "2025-03-01 10:00:00", msgs[0].Data["current_time"])
		assert.Equal(t, "http://localhost:3000", msgs[0].Data["frontend_url"])
	})

	t.Run("promotion list failure", func(t *testing.T) {
		_, rdb := testutil.StartRedis(t)
		n := NewNotifier(NewQueue(rdb), "http://localhost:3000")

		_, err := n.Promotion(t.Context(), &listUsersRepo{err: errors.New("db is down")}, Promotion{Title: "Sale"})

		require.Error(t, err)
	})
}
