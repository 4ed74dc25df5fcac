package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer(t *testing.T) {
	r, err := NewRenderer("Accounts")
	require.NoError(t, err)

	t.Run("welcome", func(t *testing.T) {
		email, err := r.Render(Message{
			To:       "nk@example.com",
			Template: TemplateWelcome,
			Data:     map[string]string{"username": "nkiryanov", "login_url": "http://localhost:3000/login"},
		})

		require.NoError(t, err)
		assert.Equal(t, "nk@example.com", email.To)
		assert.Equal(t, "Welcome to Our Platform!", email.Subject)
		assert.Contains(t, email.HTML, "nkiryanov")
		assert.Contains(t, email.HTML, "http://localhost:3000/login")
		assert.Contains(t, email.HTML, "Accounts", "project name should be added by default")
	})

	t.Run("password reset", func(t *testing.T) {
		email, err := r.Render(Message{
			To:       "nk@example.com",
			Template: TemplatePasswordReset,
			Data:     map[string]string{"username": "nk", "reset_url": "http://localhost:3000/reset-password?token=abc", "valid_hours": "1"},
		})

		require.NoError(t, err)
		assert.Equal(t, "Password Reset Request", email.Subject)
		assert.Contains(t, email.HTML, "reset-password?token=abc")
	})

	t.Run("promotion", func(t *testing.T) {
		email, err := r.Render(Message{
			To:       "nk@example.com",
			Template: TemplatePromotion,
			Data:     map[string]string{"promotion_title": "Spring sale", "promotion_content": "Half price"},
		})

		require.NoError(t, err)
		assert.Equal(t, "Special Promotion Just For You!", email.Subject)
		assert.Contains(t, email.HTML, "Spring sale")
		assert.Contains(t, email.HTML, "Half price")
	})

	t.Run("escapes data", func(t *testing.T) {
		email, err := r.Render(Message{
			To:       "nk@example.com",
			Template: TemplateWelcome,
			Data:     map[string]string{"username": "<script>alert(1)</script>"},
		})

		require.NoError(t, err)
		assert.NotContains(t, email.HTML, "<script>")
	})

	t.Run("unknown template", func(t *testing.T) {
		_, err := r.Render(Message{To: "nk@example.com", Template: "unknown"})

		require.Error(t, err)
	})
}
