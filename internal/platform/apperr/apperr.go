// Copyright (c) 2026 Veridian Labs. All rights reserved.

/*
Package apperr defines the centralized error handling framework for Veridian.

It provides a rich error type that bridges the gap between low-level Domain/Storage
errors and high-level HTTP responses.

Architecture:

  - AppError: A struct containing machine-readable ErrorCode and user-friendly messages.
  - Taxonomy: Dedicated constructors for every business-rule violation the
    identity core can produce (invalid format, duplicate, invalid state, ...).
  - Mapping: Explicit mapping from AppError to standard HTTP Status Codes.

Every error that leaves the service layer should be wrapped as an [AppError] to ensure
consistent API responses.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// # Error Codes

// Machine-readable identifiers for every recoverable failure kind.
const (
	CodeInvalidFormat        = "INVALID_FORMAT"
	CodeDuplicate            = "DUPLICATE"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeInactiveAccount      = "INACTIVE_ACCOUNT"
	CodeNoApplicationAccess  = "NO_APPLICATION_ACCESS"
	CodeUnexpectedAppContext = "UNEXPECTED_APPLICATION_CONTEXT"
	CodeInvalidToken         = "INVALID_TOKEN"
	CodeTokenReuseDetected   = "TOKEN_REUSE_DETECTED"
	CodeInvalidState         = "INVALID_STATE"
	CodeNotFound             = "NOT_FOUND"
	CodeValidation           = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeInternal             = "INTERNAL_ERROR"
)

// AppError is the canonical error type for the Veridian API.
//
// It carries an HTTP status code, a machine-readable code, a client-safe
// message, and an optional slice of field-level validation errors.
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to clients
// to avoid leaking internal implementation details (e.g., SQL queries or
// credential material).
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "INVALID_STATE").
	Code string `json:"code"`
	// Message is a human-readable description safe to return to the client.
	Message string `json:"error"`
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int `json:"-"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
	// Details holds per-field validation errors for VALIDATION_ERROR responses.
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the JSON field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// Error implements the error interface. It returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// Messages flattens the error into the list of human-readable strings the
// orchestration boundary hands to external callers. Field-level details are
// rendered as "field: message" lines after the top-level message.
func (e *AppError) Messages() []string {
	out := []string{e.Message}
	for _, d := range e.Details {
		out = append(out, d.Field+": "+d.Message)
	}
	return out
}

// # Identity Taxonomy

// InvalidFormat creates a 400 [AppError] for value-object construction failures.
func InvalidFormat(msg string) *AppError {
	return &AppError{Code: CodeInvalidFormat, Message: msg, HTTPStatus: http.StatusBadRequest}
}

// Duplicate creates a 409 [AppError] for email/code/role-name collisions.
func Duplicate(msg string) *AppError {
	return &AppError{Code: CodeDuplicate, Message: msg, HTTPStatus: http.StatusConflict}
}

// InvalidCredentials creates the single generic 401 returned for any
// authentication failure. The message never reveals whether the email exists.
func InvalidCredentials() *AppError {
	return &AppError{
		Code:       CodeInvalidCredentials,
		Message:    "Invalid email or password",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// InactiveAccount creates a 403 [AppError] for logins against deactivated users.
func InactiveAccount() *AppError {
	return &AppError{
		Code:       CodeInactiveAccount,
		Message:    "Account is deactivated",
		HTTPStatus: http.StatusForbidden,
	}
}

// NoApplicationAccess creates a 403 [AppError] when a regular user has no
// active membership in the requested application.
func NoApplicationAccess() *AppError {
	return &AppError{
		Code:       CodeNoApplicationAccess,
		Message:    "No access to the requested application",
		HTTPStatus: http.StatusForbidden,
	}
}

// UnexpectedApplicationContext creates a 400 [AppError] when a system admin
// supplies a tenant context on login.
func UnexpectedApplicationContext() *AppError {
	return &AppError{
		Code:       CodeUnexpectedAppContext,
		Message:    "System administrators must not supply an application context",
		HTTPStatus: http.StatusBadRequest,
	}
}

// InvalidToken creates a 401 [AppError] for unknown or expired refresh tokens.
func InvalidToken() *AppError {
	return &AppError{
		Code:       CodeInvalidToken,
		Message:    "Invalid or expired token",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// TokenReuseDetected creates a 401 [AppError] for replayed refresh tokens.
// Callers revoke the full rotation chain before returning it.
func TokenReuseDetected() *AppError {
	return &AppError{
		Code:       CodeTokenReuseDetected,
		Message:    "Token has already been used",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// InvalidState creates a 409 [AppError] for aggregate-invariant violations
// (double activation, deleting a default role, duplicate membership).
func InvalidState(msg string) *AppError {
	return &AppError{Code: CodeInvalidState, Message: msg, HTTPStatus: http.StatusConflict}
}

// # Client Errors (4xx)

// NotFound creates a 404 [AppError] for a named resource.
//
// Example:
//
//	apperr.NotFound("Application") // Returns "Application not found"
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
	}
}

// Unauthorized creates a 401 [AppError].
func Unauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, HTTPStatus: http.StatusUnauthorized}
}

// Forbidden creates a 403 [AppError].
func Forbidden(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Message: msg, HTTPStatus: http.StatusForbidden}
}

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// # Server Errors (5xx)

// Internal creates a 500 [AppError] wrapping an unexpected server-side error.
// The cause is stored for logging but is never sent to the client. Corrupt
// stored credentials and failed persistence transactions both surface through
// this constructor so that nothing internal leaks.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// # Helpers

// IsCode reports whether err is an [*AppError] carrying the given code.
func IsCode(err error, code string) bool {
	ae := As(err)
	return ae != nil && ae.Code == code
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// Wrapf attaches a formatted cause to an existing [*AppError] without
// changing its client-visible fields.
func Wrapf(base *AppError, format string, args ...any) *AppError {
	clone := *base
	clone.Cause = fmt.Errorf(format, args...)
	return &clone
}
