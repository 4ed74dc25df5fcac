package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nkiryanov/accounts/internal/apperrors"
	"github.com/nkiryanov/accounts/internal/handlers/middleware"
	"github.com/nkiryanov/accounts/internal/handlers/render"
	"github.com/nkiryanov/accounts/internal/handlers/userctx"
	"github.com/nkiryanov/accounts/internal/logger"
	"github.com/nkiryanov/accounts/internal/models"
)

type authService interface {
	// Has to return *apperrors.DuplicateError if email or username is taken
	Register(ctx context.Context, newUser models.NewUser) (models.User, error)

	// Has to return apperrors.ErrInvalidCredentials or apperrors.ErrInactiveUser on failure
	Login(ctx context.Context, email string, password string) (models.TokenPair, error)

	Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error)

	// Never fails
	Logout(ctx context.Context, refreshToken string)

	UpdatePassword(ctx context.Context, user models.User, currentPassword string, newPassword string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token string, newPassword string) error

	// Has to return error matching apperrors.ErrUnauthorized if token is not acceptable
	Authenticate(ctx context.Context, accessToken string) (models.User, error)
}

type CookieConfig struct {
	// Send access token cookie over https only
	Secure bool
}

type AuthHandler struct {
	auth    authService
	logger  logger.Logger
	cookies CookieConfig
	now     func() time.Time
}

func NewAuth(auth authService, cookies CookieConfig, l logger.Logger) *AuthHandler {
	return &AuthHandler{
		auth:    auth,
		logger:  l,
		cookies: cookies,
		now:     time.Now,
	}
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	type RegisterRequest struct {
		Email    string `json:"email" validate:"required,email,max=255"`
		Username string `json:"username" validate:"omitempty,min=3,max=50"`
		FullName string `json:"full_name" validate:"max=100"`
		Password string `json:"password" validate:"required,password"`
	}

	data, err := render.BindAndValidate[RegisterRequest](w, r)
	if err != nil {
		return
	}

	user, err := h.auth.Register(r.Context(), models.NewUser{
		Email:    data.Email,
		Username: data.Username,
		FullName: data.FullName,
		Password: data.Password,
	})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	render.Success(w, http.StatusCreated, "User registered successfully", newUserResponse(user))
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	type LoginRequest struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	data, err := render.BindAndValidate[LoginRequest](w, r)
	if err != nil {
		return
	}

	pair, err := h.auth.Login(r.Context(), data.Email, data.Password)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	h.setAccessCookie(w, pair.Access)
	render.JSON(w, newTokenResponse(pair, h.now()))
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	type RefreshRequest struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	data, err := render.BindAndValidate[RefreshRequest](w, r)
	if err != nil {
		return
	}

	pair, err := h.auth.Refresh(r.Context(), data.RefreshToken)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	h.setAccessCookie(w, pair.Access)
	render.JSON(w, newTokenResponse(pair, h.now()))
}

// Logout always succeeds, even broken body does not change the answer
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	var data struct {
		RefreshToken string `json:"refresh_token"`
	}

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&data); err != nil {
		h.logger.Debug("Logout with unreadable body", "error", err)
	}
	if data.RefreshToken != "" {
		h.auth.Logout(r.Context(), data.RefreshToken)
	}

	h.clearAccessCookie(w)
	render.Success(w, http.StatusOK, "Successfully logged out", nil)
}

func (h *AuthHandler) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	type PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	data, err := render.BindAndValidate[PasswordResetRequest](w, r)
	if err != nil {
		return
	}

	if err := h.auth.RequestPasswordReset(r.Context(), data.Email); err != nil {
		renderError(w, h.logger, err)
		return
	}

	render.Success(w, http.StatusOK, "If the email exists, a password reset email has been sent", nil)
}

func (h *AuthHandler) confirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	type PasswordResetConfirmRequest struct {
		Token       string `json:"token" validate:"required"`
		NewPassword string `json:"new_password" validate:"required,password"`
	}

	data, err := render.BindAndValidate[PasswordResetConfirmRequest](w, r)
	if err != nil {
		return
	}

	err = h.auth.ResetPassword(r.Context(), data.Token, data.NewPassword)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrTokenInvalid), errors.Is(err, apperrors.ErrTokenExpired):
		render.Error(w, http.StatusBadRequest, "Invalid or expired token")
		return
	default:
		renderError(w, h.logger, err)
		return
	}

	render.Success(w, http.StatusOK, "Password updated successfully", nil)
}

func (h *AuthHandler) changePassword(w http.ResponseWriter, r *http.Request) {
	type ChangePasswordRequest struct {
		CurrentPassword string `json:"current_password" validate:"required"`
		NewPassword     string `json:"new_password" validate:"required,password"`
	}

	data, err := render.BindAndValidate[ChangePasswordRequest](w, r)
	if err != nil {
		return
	}

	user := userctx.MustFromContext(r.Context())
	err = h.auth.UpdatePassword(r.Context(), user, data.CurrentPassword, data.NewPassword)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		render.Error(w, http.StatusBadRequest, "Incorrect password")
		return
	default:
		renderError(w, h.logger, err)
		return
	}

	render.Success(w, http.StatusOK, "Password updated successfully", nil)
}

func (h *AuthHandler) setAccessCookie(w http.ResponseWriter, token models.IssuedToken) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    token.Value,
		Path:     "/",
		Expires:  token.ExpiresAt,
		MaxAge:   int(token.ExpiresAt.Sub(h.now()).Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearAccessCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
