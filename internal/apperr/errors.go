// Package apperr holds the error taxonomy shared by the store, token,
// cache and HTTP layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("no record found for given details")
	ErrInvalidIdentifier  = errors.New("invalid identifier")
	ErrInvalidCredentials = errors.New("invalid credentials, please check and try again")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTokenExpired       = errors.New("token expired")
	ErrTransientStore     = errors.New("store unavailable")
	ErrValidation         = errors.New("validation error")
	ErrDuplicateKey       = errors.New("duplicate key")
)

type FieldError struct {
	Field    string `json:"field"`
	Location string `json:"location"`
	Message  string `json:"messages"`
}

// DuplicateKeyError names the unique field that collided.
type DuplicateKeyError struct {
	Field string
}

func DuplicateKey(field string) error {
	return &DuplicateKeyError{Field: field}
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s is already in use by another account", e.Field)
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

type ValidationError struct {
	Errors []FieldError
}

func Validation(fields ...FieldError) error {
	return &ValidationError{Errors: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation error: %d fields", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Transient wraps a raw store failure so callers can tell it apart from NotFound.
func Transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransientStore, err)
}

func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateKey),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrInvalidIdentifier):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Message is the stable, caller-facing text for err. Raw store detail never
// leaves through here. The checks run in the same order as Status.
func Message(err error) string {
	var dup *DuplicateKeyError
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return ErrInvalidCredentials.Error()
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrTokenExpired), errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrNotFound):
		return ErrNotFound.Error()
	case errors.As(err, &dup):
		return dup.Error()
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidIdentifier):
		return "Validation Error"
	default:
		return "internal server error"
	}
}

// Fields returns the structured entries for duplicate-key and validation
// class errors. Anything that does not render as 400 has none.
func Fields(err error) []FieldError {
	if Status(err) != http.StatusBadRequest {
		return nil
	}
	var dup *DuplicateKeyError
	if errors.As(err, &dup) {
		return []FieldError{{Field: dup.Field, Location: "body", Message: dup.Error()}}
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Errors
	}
	if errors.Is(err, ErrInvalidIdentifier) {
		return []FieldError{{Field: "id", Location: "params", Message: "Please enter valid User ID"}}
	}
	return nil
}
