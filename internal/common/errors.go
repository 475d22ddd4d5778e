package common

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound = errors.New("requested resource not found")
)

// Kind is the machine-readable error category written to the "error" field
// of every error response.
type Kind string

const (
	KindValidation     Kind = "validation_error"
	KindAuthentication Kind = "authentication_error"
	KindDatabase       Kind = "database_error"
	KindInternal       Kind = "internal_error"
)

// Validation codes carried in Details["code"].
const (
	CodeFormat           = "format"
	CodeUniqueConstraint = "unique_constraint"
)

// Error is the only error type the auth service hands to the HTTP boundary.
// Err holds the underlying cause for logging and is never serialized.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func NewValidationError(field, code, message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: message,
		Details: map[string]any{"field": field, "code": code},
	}
}

func NewAuthenticationError(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

func NewDatabaseError(message string, cause error) *Error {
	return &Error{Kind: KindDatabase, Message: message, Err: cause}
}

func NewInternalError(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: cause}
}

// AsError extracts the *Error from err's chain. Anything else is reported as
// an internal error so raw causes never reach a client.
func AsError(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("An unexpected error occurred", err)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch AsError(err).Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
