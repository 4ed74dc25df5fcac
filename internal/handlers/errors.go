package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/accounts/internal/apperrors"
	"github.com/nkiryanov/accounts/internal/handlers/render"
	"github.com/nkiryanov/accounts/internal/logger"
)

// Render domain error as error envelope
// Unknown errors are logged and hidden behind 500
func renderError(w http.ResponseWriter, l logger.Logger, err error) {
	var fieldErr *apperrors.FieldError
	var dupErr *apperrors.DuplicateError

	switch {
	case errors.As(err, &fieldErr):
		render.FieldError(w, fieldErr)
	case errors.As(err, &dupErr):
		render.Duplicate(w, dupErr)
	case errors.Is(err, apperrors.ErrValidation):
		render.Error(w, http.StatusUnprocessableEntity, "Request validation failed")
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		unauthorized(w, "Incorrect email or password")
	case errors.Is(err, apperrors.ErrInactiveUser):
		unauthorized(w, "Inactive user")
	case errors.Is(err, apperrors.ErrTokenExpired):
		unauthorized(w, "Token has expired")
	case errors.Is(err, apperrors.ErrTokenRevoked):
		unauthorized(w, "Token has been revoked")
	case errors.Is(err, apperrors.ErrTokenInvalid), errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		unauthorized(w, "Invalid token")
	case errors.Is(err, apperrors.ErrUnauthorized):
		unauthorized(w, "Could not validate credentials")
	case errors.Is(err, apperrors.ErrForbidden):
		render.Error(w, http.StatusForbidden, "Not enough privileges")
	case errors.Is(err, apperrors.ErrUserNotFound):
		render.Error(w, http.StatusNotFound, "User not found")
	case errors.Is(err, apperrors.ErrSelfDeletion):
		render.Error(w, http.StatusBadRequest, "Admins cannot delete themselves")
	default:
		l.Error("Unexpected error while handling request", "error", err)
		render.Error(w, http.StatusInternalServerError, "Internal server error")
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	render.Error(w, http.StatusUnauthorized, message)
}
