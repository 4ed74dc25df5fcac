package auth

import (
	"fmt"
	"unicode/utf8"

	"github.com/nkiryanov/accounts/internal/apperrors"
)

const MinPasswordLength = 6

func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return &apperrors.FieldError{
			Field:   "password",
			Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength),
		}
	}
	return nil
}
