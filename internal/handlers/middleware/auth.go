package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nkiryanov/accounts/internal/apperrors"
	"github.com/nkiryanov/accounts/internal/handlers/render"
	"github.com/nkiryanov/accounts/internal/handlers/userctx"
	"github.com/nkiryanov/accounts/internal/models"
)

// Cookie the access token may be sent with when Authorization header is absent
const AccessTokenCookie = "access_token"

type authService interface {
	Authenticate(ctx context.Context, accessToken string) (models.User, error)
}

type errorLogger interface {
	Error(msg string, args ...any)
}

// Auth resolves request user by access token and puts it to request context
// Requests without valid token get 401
func Auth(as authService, l errorLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := accessToken(r)
			if token == "" {
				unauthorized(w)
				return
			}

			user, err := as.Authenticate(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, apperrors.ErrUnauthorized):
				unauthorized(w)
				return
			default:
				l.Error("Failed to authenticate request", "error", err)
				render.Error(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets through only users with the role, must be used after Auth
func RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := userctx.FromContext(r.Context())
			if !ok {
				unauthorized(w)
				return
			}
			if user.Role != role {
				render.Error(w, http.StatusForbidden, "Not enough privileges")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Bearer token from Authorization header, otherwise access token cookie
func accessToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}

	if cookie, err := r.Cookie(AccessTokenCookie); err == nil {
		return cookie.Value
	}

	return ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	render.Error(w, http.StatusUnauthorized, "Could not validate credentials")
}
