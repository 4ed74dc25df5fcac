package apperrors

import (
	"errors"
)

var (
	ErrValidation = errors.New("validation failed")

	ErrDuplicateEntry = errors.New("duplicate entry")
	ErrUserNotFound   = errors.New("user not found")
	ErrSelfDeletion   = errors.New("admins cannot delete themselves")

	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrInactiveUser       = errors.New("inactive user")
	ErrUnauthorized       = errors.New("could not validate credentials")
	ErrForbidden          = errors.New("not enough privileges")

	// Malformed and signature errors are always returned together with ErrTokenInvalid
	ErrTokenInvalid          = errors.New("token is invalid")
	ErrTokenMalformed        = errors.New("token is malformed")
	ErrTokenSignatureInvalid = errors.New("token signature is invalid")
	ErrTokenExpired          = errors.New("token is expired")
	ErrTokenRevoked          = errors.New("token is revoked")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
)

// DuplicateError reports which unique field caused the conflict.
// errors.Is(err, ErrDuplicateEntry) is true for it.
type DuplicateError struct {
	Field string
	Value string
}

func (e *DuplicateError) Error() string {
	return e.Field + " already exists"
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateEntry
}

// FieldError is a validation failure of one input field.
// errors.Is(err, ErrValidation) is true for it.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *FieldError) Is(target error) bool {
	return target == ErrValidation
}
