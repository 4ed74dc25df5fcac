package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/accounts/internal/handlers/middleware"
	"github.com/nkiryanov/accounts/internal/models"
	"github.com/nkiryanov/accounts/internal/testutil"
)

func TestAuthHandler(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	register := func(t *testing.T, e testEnv) {
		t.Helper()
		resp := request(t, http.MethodPost, e.url+"/api/auth/register",
			`{"email": "nk@example.com", "username": "nkiryanov", "password": "password123"}`, "")
		require.Equal(t, http.StatusCreated, resp.code, "user should be registered: %s", resp.body)
	}

	t.Run("register", func(t *testing.T) {
		t.Run("register ok", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				resp := request(t, http.MethodPost, e.url+"/api/auth/register",
					`{"email": "NK@Example.com ", "username": "nkiryanov", "full_name": "N K", "password": "password123"}`, "")

				require.Equal(t, http.StatusCreated, resp.code, resp.body)
				body := resp.json(t)
				require.Equal(t, "success", body["status"])
				require.Equal(t, "User registered successfully", body["message"])

				data := body["data"].(map[string]any)
				assert.Equal(t, "nk@example.com", data["email"], "email should be normalized")
				assert.Equal(t, "nkiryanov", data["username"])
				assert.Equal(t, "N K", data["full_name"])
				assert.Equal(t, "user", data["role"])
				assert.Equal(t, true, data["is_active"])
				assert.NotEmpty(t, data["id"])
				assert.NotContains(t, data, "password_hash", "password hash must never be exposed")
			})
		})

		t.Run("register without username", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				resp := request(t, http.MethodPost, e.url+"/api/auth/register",
					`{"email": "nk@example.com", "password": "password123"}`, "")

				require.Equal(t, http.StatusCreated, resp.code, resp.body)
				data := resp.json(t)["data"].(map[string]any)
				assert.Nil(t, data["username"], "empty username should be null")
			})
		})

		t.Run("register twice", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				register(t, e)

				resp := request(t, http.MethodPost, e.url+"/api/auth/register",
					`{"email": "nk@example.com", "username": "other", "password": "password123"}`, "")

				require.Equal(t, http.StatusBadRequest, resp.code)
				require.JSONEq(t, `
					{
						"status": "error",
						"message": "User with this email already exists",
						"errors": {"type": "duplicate_entry", "field": "email", "value": "nk@example.com"}
					}`, resp.body)
			})
		})

		t.Run("register short password", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				resp := request(t, http.MethodPost, e.url+"/api/auth/register",
					`{"email": "nk@example.com", "password": "12345"}`, "")

				require.Equal(t, http.StatusUnprocessableEntity, resp.code, resp.body)
				require.Contains(t, resp.body, "password")
			})
		})

		t.Run("register bad email", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				resp := request(t, http.MethodPost, e.url+"/api/auth/register",
					`{"email": "not-an-email", "password": "password123"}`, "")

				require.Equal(t, http.StatusUnprocessableEntity, resp.code, resp.body)
				require.Contains(t, resp.body, "email")
			})
		})

		t.Run("register broken json", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				resp := request(t, http.MethodPost, e.url+"/api/auth/register", `{"email": `, "")

				require.Equal(t, http.StatusBadRequest, resp.code, resp.body)
			})
		})
	})

	t.Run("login", func(t *testing.T) {
		t.Run("login ok", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				register(t, e)

				resp := request(t, http.MethodPost, e.url+"/api/auth/login",
					`{"email": "nk@example.com", "password": "password123"}`, "")

				require.Equal(t, http.StatusOK, resp.code, resp.body)
				body := resp.json(t)
				assert.NotEmpty(t, body["access_token"])
				assert.NotEmpty(t, body["refresh_token"])
				assert.Equal(t, "bearer", body["token_type"])
				assert.InDelta(t, 15*60, body["expires_in"], 1, "expires_in should be access TTL in seconds")

				require.Len(t, resp.cookies, 1)
				cookie := resp.cookies[0]
				assert.Equal(t, middleware.AccessTokenCookie, cookie.Name)
				assert.Equal(t, body["access_token"], cookie.Value)
				assert.True(t, cookie.HttpOnly, "access cookie should be HttpOnly")
				assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
				assert.Equal(t, "/", cookie.Path)
			})
		})

		t.Run("wrong password every time", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				register(t, e)

				for range 3 {
					resp := request(t, http.MethodPost, e.url+"/api/auth/login",
						`{"email": "nk@example.com", "password": "wrong-password"}`, "")

					require.Equal(t, http.StatusUnauthorized, resp.code)
					require.JSONEq(t, `{"status": "error", "message": "Incorrect email or password"}`, resp.body)
					require.Equal(t, "Bearer", resp.header.Get("WWW-Authenticate"))
				}
			})
		})

		t.Run("unknown email", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				resp := request(t, http.MethodPost, e.url+"/api/auth/login",
					`{"email": "ghost@example.com", "password": "password123"}`, "")

				require.Equal(t, http.StatusUnauthorized, resp.code)
				require.JSONEq(t, `{"status": "error", "message": "Incorrect email or password"}`, resp.body)
			})
		})

		t.Run("inactive user", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				u, err := e.users.CreateUser(t.Context(), models.NewUser{Email: "off@example.com", Password: "password123"})
				require.NoError(t, err)
				require.False(t, u.IsActive)

				resp := request(t, http.MethodPost, e.url+"/api/auth/login",
					`{"email": "off@example.com", "password": "password123"}`, "")

				require.Equal(t, http.StatusUnauthorized, resp.code)
				require.JSONEq(t, `{"status": "error", "message": "Inactive user"}`, resp.body)
			})
		})
	})

	t.Run("refresh", func(t *testing.T) {
		t.Run("refresh ok", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				register(t, e)
				pair := e.login(t, "nk@example.com", "password123")

				resp := request(t, http.MethodPost, e.url+"/api/auth/refresh-token",
					`{"refresh_token": "`+pair.Refresh.Value+`"}`, "")

				require.Equal(t, http.StatusOK, resp.code, resp.body)
				body := resp.json(t)
				assert.NotEmpty(t, body["access_token"])
				assert.Equal(t, pair.Refresh.Value, body["refresh_token"], "refresh token should be kept without rotation")
				assert.Equal(t, "bearer", body["token_type"])
				require.Len(t, resp.cookies, 1)
			})
		})

		t.Run("refresh with access token", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				register(t, e)
				pair := e.login(t, "nk@example.com", "password123")

				resp := request(t, http.MethodPost, e.url+"/api/auth/refresh-token",
					`{"refresh_token": "`+pair.Access.Value+`"}`, "")

				require.Equal(t, http.StatusUnauthorized, resp.code, resp.body)
			})
		})

		t.Run("refresh garbage", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				resp := request(t, http.MethodPost, e.url+"/api/auth/refresh-token", `{"refresh_token": "garbage"}`, "")

				require.Equal(t, http.StatusUnauthorized, resp.code, resp.body)
			})
		})
	})

	t.Run("logout", func(t *testing.T) {
		t.Run("logout revokes refresh token", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				register(t, e)
				pair := e.login(t, "nk@example.com", "password123")
				body := `{"refresh_token": "` + pair.Refresh.Value + `"}`

				resp := request(t, http.MethodPost, e.url+"/api/auth/logout", body, "")

				require.Equal(t, http.StatusOK, resp.code)
				require.JSONEq(t, `{"status": "success", "message": "Successfully logged out"}`, resp.body)
				require.Len(t, resp.cookies, 1)
				assert.Equal(t, middleware.AccessTokenCookie, resp.cookies[0].Name)
				assert.Equal(t, -1, resp.cookies[0].MaxAge, "access cookie should be cleared")

				resp = request(t, http.MethodPost, e.url+"/api/auth/refresh-token", body, "")
				require.Equal(t, http.StatusUnauthorized, resp.code, "revoked refresh token must not work")
			})
		})

		t.Run("logout twice", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				register(t, e)
				pair := e.login(t, "nk@example.com", "password123")
				body := `{"refresh_token": "` + pair.Refresh.Value + `"}`

				request(t, http.MethodPost, e.url+"/api/auth/logout", body, "")
				resp := request(t, http.MethodPost, e.url+"/api/auth/logout", body, "")

				require.Equal(t, http.StatusOK, resp.code)
			})
		})

		t.Run("logout with broken body", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				resp := request(t, http.MethodPost, e.url+"/api/auth/logout", `{"refresh`, "")

				require.Equal(t, http.StatusOK, resp.code)
				require.JSONEq(t, `{"status": "success", "message": "Successfully logged out"}`, resp.body)
			})
		})
	})

	t.Run("password reset", func(t *testing.T) {
		t.Run("reset flow", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				register(t, e)

				resp := request(t, http.MethodPost, e.url+"/api/auth/password-reset", `{"email": "nk@example.com"}`, "")
				require.Equal(t, http.StatusOK, resp.code, resp.body)
				require.JSONEq(t, `{"status": "success", "message": "If the email exists, a password reset email has been sent"}`, resp.body)
				e.auth.Wait()
				require.NotEmpty(t, e.notifier.resetToken, "reset token should be sent")

				resp = request(t, http.MethodPost, e.url+"/api/auth/password-reset/confirm",
					`{"token": "`+e.notifier.resetToken+`", "new_password": "new-password"}`, "")
				require.Equal(t, http.StatusOK, resp.code, resp.body)
				require.JSONEq(t, `{"status": "success", "message": "Password updated successfully"}`, resp.body)

				resp = request(t, http.MethodPost, e.url+"/api/auth/login",
					`{"email": "nk@example.com", "password": "new-password"}`, "")
				require.Equal(t, http.StatusOK, resp.code, "user should log in with new password")
			})
		})

		t.Run("unknown email looks the same", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				resp := request(t, http.MethodPost, e.url+"/api/auth/password-reset", `{"email": "ghost@example.com"}`, "")
				e.auth.Wait()

				require.Equal(t, http.StatusOK, resp.code)
				require.JSONEq(t, `{"status": "success", "message": "If the email exists, a password reset email has been sent"}`, resp.body)
				require.Empty(t, e.notifier.resetToken, "nothing should be sent for unknown email")
			})
		})

		t.Run("confirm bad token", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				resp := request(t, http.MethodPost, e.url+"/api/auth/password-reset/confirm",
					`{"token": "garbage", "new_password": "new-password"}`, "")

				require.Equal(t, http.StatusBadRequest, resp.code)
				require.JSONEq(t, `{"status": "error", "message": "Invalid or expired token"}`, resp.body)
			})
		})
	})

	t.Run("change password", func(t *testing.T) {
		t.Run("change ok", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				register(t, e)
				pair := e.login(t, "nk@example.com", "password123")

				resp := request(t, http.MethodPost, e.url+"/api/users/change-password",
					`{"current_password": "password123", "new_password": "new-password"}`, pair.Access.Value)

				require.Equal(t, http.StatusOK, resp.code, resp.body)
				require.JSONEq(t, `{"status": "success", "message": "Password updated successfully"}`, resp.body)

				resp = request(t, http.MethodPost, e.url+"/api/auth/refresh-token",
					`{"refresh_token": "`+pair.Refresh.Value+`"}`, "")
				require.Equal(t, http.StatusUnauthorized, resp.code, "sessions should be revoked after password change")
			})
		})

		t.Run("wrong current password", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				register(t, e)
				pair := e.login(t, "nk@example.com", "password123")

				resp := request(t, http.MethodPost, e.url+"/api/users/change-password",
					`{"current_password": "nope-nope", "new_password": "new-password"}`, pair.Access.Value)

				require.Equal(t, http.StatusBadRequest, resp.code)
				require.JSONEq(t, `{"status": "error", "message": "Incorrect password"}`, resp.body)
			})
		})

		t.Run("anonymous", func(t *testing.T) {
			withServer(pg.Pool, t, func(e testEnv) {
				resp := request(t, http.MethodPost, e.url+"/api/users/change-password",
					`{"current_password": "password123", "new_password": "new-password"}`, "")

				require.Equal(t, http.StatusUnauthorized, resp.code)
			})
		})
	})
}
