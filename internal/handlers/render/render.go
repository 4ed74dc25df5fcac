package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/nkiryanov/accounts/internal/apperrors"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error types reported in 'errors.type'
const (
	ValidationErrorType = "validation_failed"
	DecodingErrorType   = "decoding_failed"
	DuplicateErrorType  = "duplicate_entry"
)

// Limit of request body size
const maxBodySize = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	configureValidator(validate)
}

type Struct any

// Envelope of every response except token ones
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

type FieldErrors struct {
	Type   string            `json:"type"`
	Fields map[string]string `json:"fields,omitempty"`
	Detail string            `json:"detail,omitempty"`
}

type DuplicateErrors struct {
	Type  string `json:"type"`
	Field string `json:"field"`
	Value string `json:"value"`
}

// Render raw data as json with status 200
func JSON(w http.ResponseWriter, data any) {
	jsonWithStatus(w, data, http.StatusOK)
}

// Render success envelope
func Success(w http.ResponseWriter, code int, message string, data any) {
	jsonWithStatus(w, Envelope{Status: StatusSuccess, Message: message, Data: data}, code)
}

// Render error envelope
func Error(w http.ResponseWriter, code int, message string) {
	jsonWithStatus(w, Envelope{Status: StatusError, Message: message}, code)
}

// Render error envelope with details
func ErrorWithDetails(w http.ResponseWriter, code int, message string, details any) {
	jsonWithStatus(w, Envelope{Status: StatusError, Message: message, Errors: details}, code)
}

// Render json DecodeError
func DecodeError(w http.ResponseWriter, err error) {
	var detail string

	// Try to provide more specific error message based on error type
	var typeErr *json.UnmarshalTypeError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &typeErr):
		detail = fmt.Sprintf("Invalid data type for field '%s'", typeErr.Field)
	case errors.As(err, &maxErr):
		detail = "Request body is too large"
	case errors.Is(err, io.EOF):
		detail = "Request body is empty"
	default:
		detail = fmt.Sprintf("Failed to parse JSON: %s", err.Error())
	}

	ErrorWithDetails(w, http.StatusBadRequest, "Invalid request body", FieldErrors{Type: DecodingErrorType, Detail: detail})
}

// Render ValidationErrors
func ValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	fields := make(map[string]string, len(errs))

	// Create user-friendly error messages based on validation tag
	for _, fieldError := range errs {
		var message string
		switch fieldError.Tag() {
		case "required":
			message = "This field is required"
		case "min":
			message = fmt.Sprintf("Value is too short (minimum %s)", fieldError.Param())
		case "max":
			message = fmt.Sprintf("Value is too long (maximum %s)", fieldError.Param())
		case "email":
			message = "Value is not a valid email address"
		case "password":
			message = fmt.Sprintf("Password must be at least %d characters", passwordMinLength)
		case "oneof":
			message = fmt.Sprintf("Value must be one of: %s", fieldError.Param())
		default:
			message = "Invalid value"
		}

		fields[fieldError.Field()] = message
	}

	ErrorWithDetails(w, http.StatusUnprocessableEntity, "Request validation failed", FieldErrors{Type: ValidationErrorType, Fields: fields})
}

// Render validation error found by service layer
func FieldError(w http.ResponseWriter, err *apperrors.FieldError) {
	ErrorWithDetails(w, http.StatusUnprocessableEntity, "Request validation failed", FieldErrors{
		Type:   ValidationErrorType,
		Fields: map[string]string{err.Field: err.Message},
	})
}

// Render unique constraint violation
func Duplicate(w http.ResponseWriter, err *apperrors.DuplicateError) {
	ErrorWithDetails(w, http.StatusBadRequest, fmt.Sprintf("User with this %s already exists", err.Field), DuplicateErrors{
		Type:  DuplicateErrorType,
		Field: err.Field,
		Value: err.Value,
	})
}

// BindAndValidate decodes JSON request body into type T and validates it using struct tags.
// Returns the decoded value and writes appropriate error responses for decoding or validation failures.
func BindAndValidate[T Struct](w http.ResponseWriter, r *http.Request) (T, error) {
	var value T

	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&value)
	if err != nil {
		DecodeError(w, err)
		return value, err
	}

	err = validate.Struct(value)
	if err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			ValidationErrors(w, errs)
		} else {
			Error(w, http.StatusInternalServerError, "Internal server error")
		}
		return value, err
	}

	return value, nil
}

// renderJSONWithStatus sends data as json and enforces status code
func jsonWithStatus(w http.ResponseWriter, data any, code int) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)

	if err := enc.Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}
