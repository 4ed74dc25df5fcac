package mail

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nkiryanov/accounts/internal/models"
	"github.com/nkiryanov/accounts/internal/repository"
)

const campaignPageSize = 100

// Notifier enqueues user facing emails, it never sends them itself
type Notifier struct {
	queue       *Queue
	frontendURL string
	now         func() time.Time
}

func NewNotifier(queue *Queue, frontendURL string) *Notifier {
	return &Notifier{
		queue:       queue,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		now:         time.Now,
	}
}

func (n *Notifier) Welcome(ctx context.Context, user models.User) error {
	return n.queue.Enqueue(ctx, Message{
		To:       user.Email,
		Template: TemplateWelcome,
		Data: map[string]string{
			"username":  displayName(user),
			"login_url": n.frontendURL + "/login",
		},
	})
}

func (n *Notifier) PasswordReset(ctx context.Context, user models.User, token string, ttl time.Duration) error {
	hours := int(ttl.Hours())
	if hours < 1 {
		hours = 1
	}

	return n.queue.Enqueue(ctx, Message{
		To:       user.Email,
		Template: TemplatePasswordReset,
		Data: map[string]string{
			"username":    displayName(user),
			"reset_url":   n.frontendURL + "/reset-password?token=" + url.QueryEscape(token),
			"valid_hours": strconv.Itoa(hours),
		},
	})
}

type Promotion struct {
	Title   string
	Content string
	Link    string
}

// Enqueue promotion for every active user, returns how many emails were queued
// Stops on first enqueue error
func (n *Notifier) Promotion(ctx context.Context, users repository.UserRepo, promo Promotion) (int, error) {
	sentAt := n.now().UTC().Format("2006-01-02 15:04:05")
	queued := 0

	for offset := 0; ; offset += campaignPageSize {
		page, err := users.ListUsers(ctx, repository.ListUsersOpts{Offset: offset, Limit: campaignPageSize})
		if err != nil {
			return queued, fmt.Errorf("can't list users for promotion: %w", err)
		}

		for _, user := range page {
			if !user.IsActive {
				continue
			}

			err := n.queue.Enqueue(ctx, Message{
				To:       user.Email,
				Template: TemplatePromotion,
				Data: map[string]string{
					"username":          displayName(user),
					"current_time":      sentAt,
					"promotion_title":   promo.Title,
					"promotion_content": promo.Content,
					"promotion_link":    promo.Link,
					"frontend_url":      n.frontendURL,
				},
			})
			if err != nil {
				return queued, err
			}
			queued++
		}

		if len(page) < campaignPageSize {
			return queued, nil
		}
	}
}

// Username is optional, fall back to full name and then to email
func displayName(user models.User) string {
	switch {
	case user.Username != "":
		return user.Username
	case user.FullName != "":
		return user.FullName
	default:
		return user.Email
	}
}
