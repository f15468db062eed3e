// Package apperror provides domain-specific error types for Tessera.
// These errors carry an HTTP status code and a user-safe message. The Echo
// error handler maps them to appropriate HTTP responses automatically.
//
// NEVER return raw database or infrastructure errors to the client. Always
// wrap them in an apperror type or return a generic internal error.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the base error type for all domain errors. It carries an
// HTTP status code, a machine-readable error type, and a human-readable
// message safe to show to the client.
type AppError struct {
	// Code is the HTTP status code (e.g., 404, 422, 500).
	Code int `json:"-"`

	// Type is a machine-readable error classifier (e.g., "not_found").
	Type string `json:"type"`

	// Message is a human-readable description safe for the client.
	Message string `json:"message"`

	// Next is an optional path the client should navigate to instead of
	// retrying the current step (e.g. "/register" after a session desync).
	Next string `json:"next,omitempty"`

	// Internal holds the underlying error for logging. Never exposed to client.
	Internal error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// WithNext returns a copy of the error carrying a navigation hint.
func (e *AppError) WithNext(path string) *AppError {
	cp := *e
	cp.Next = path
	return &cp
}

// Error type classifiers. Tests and handlers compare against these rather
// than hard-coding strings.
const (
	TypeNotFound           = "not_found"
	TypeBadRequest         = "bad_request"
	TypeUnauthorized       = "unauthorized"
	TypeConflict           = "conflict"
	TypePrecondition       = "precondition_failed"
	TypeValidation         = "validation_error"
	TypeVerificationFailed = "verification_failed"
	TypeLocked             = "locked"
	TypeInternal           = "internal_error"
)

// --- Constructors for common error types ---

// NewNotFound creates a 404 Not Found error.
func NewNotFound(message string) *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Type:    TypeNotFound,
		Message: message,
	}
}

// NewBadRequest creates a 400 Bad Request error.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Type:    TypeBadRequest,
		Message: message,
	}
}

// NewUnauthorized creates a 401 Unauthorized error.
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeUnauthorized,
		Message: message,
	}
}

// NewConflict creates a 409 Conflict error.
func NewConflict(message string) *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Type:    TypeConflict,
		Message: message,
	}
}

// NewPrecondition creates a 409 error for requests that arrive out of
// order: a flow step called without the session state it depends on.
func NewPrecondition(message string) *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Type:    TypePrecondition,
		Message: message,
	}
}

// NewValidation creates a 422 Unprocessable Entity error for validation failures.
// The step can be retried; no state advances.
func NewValidation(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnprocessableEntity,
		Type:    TypeValidation,
		Message: message,
	}
}

// NewVerificationFailed creates a 401 error for a factor that did not match.
// Always retryable unless a lockout policy says otherwise.
func NewVerificationFailed(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeVerificationFailed,
		Message: message,
	}
}

// NewLocked creates a 423 Locked error. The current login attempt has no
// retry path; the client must restart login from the email step.
func NewLocked(message string) *AppError {
	return &AppError{
		Code:    http.StatusLocked,
		Type:    TypeLocked,
		Message: message,
	}
}

// errMissingContext is the shared internal error for nil precondition checks.
var errMissingContext = errors.New("missing required context")

// NewMissingContext creates a 500 error for handler nil-context guards
// (e.g. flow session not loaded, dependency not wired).
func NewMissingContext() *AppError {
	return NewInternal(errMissingContext)
}

// NewInternal creates a 500 Internal Server Error. The real error is stored
// in Internal for logging but the client only sees a generic message.
// Store failures land here and are not retryable from the session side.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     TypeInternal,
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// Is reports whether err is an AppError of the given type.
func Is(err error, errType string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == errType
}

// SafeMessage returns the client-safe error message from an error. If the
// error is an AppError, returns its Message field (which is safe to expose).
// For any other error type, returns a generic message to prevent leaking
// internal details like table names, query structure, or stack traces.
func SafeMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "an unexpected error occurred"
}

// SafeCode returns the HTTP status code from an AppError, or 500 for
// any other error type.
func SafeCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
