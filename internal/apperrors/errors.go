// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskHive Contributors

// Package apperrors defines the error taxonomy shared across the service.
// Every rejection carries a stable machine-readable code; the HTTP boundary
// maps codes to status lines and callers branch on codes, never on messages.
package apperrors

import (
	"net/http"

	"github.com/samber/oops"
)

// Stable error codes surfaced to callers.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeConflict          = "CONFLICT"
	CodeToken             = "TOKEN_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeForbidden         = "FORBIDDEN"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeBusinessLogic     = "BUSINESS_LOGIC_ERROR"
)

// Validation creates an error for malformed or missing caller input.
// The message is safe to show to the caller.
func Validation(message string) error {
	return oops.Code(CodeValidation).Errorf("%s", message)
}

// ValidationWithDetails creates a validation error carrying the individual
// rule violations (e.g. the password strength report).
func ValidationWithDetails(message string, details []string) error {
	return oops.Code(CodeValidation).
		With("details", details).
		Errorf("%s", message)
}

// Unauthorized creates an error for failed authentication. The same message
// is used regardless of cause so callers cannot enumerate accounts.
func Unauthorized(message string) error {
	return oops.Code(CodeUnauthorized).Errorf("%s", message)
}

// Conflict creates an error for a duplicate unique key.
func Conflict(message string) error {
	return oops.Code(CodeConflict).Errorf("%s", message)
}

// Token creates an error for a missing, invalid, or expired token.
func Token(message string) error {
	return oops.Code(CodeToken).Errorf("%s", message)
}

// NotFound creates an error for a missing entity.
func NotFound(message string) error {
	return oops.Code(CodeNotFound).Errorf("%s", message)
}

// Forbidden creates an error for an ownership or permission rejection.
func Forbidden(message string) error {
	return oops.Code(CodeForbidden).Errorf("%s", message)
}

// BusinessLogic wraps an unexpected internal failure. The cause is retained
// for logging but the caller-facing message stays generic.
func BusinessLogic(message string, cause error) error {
	builder := oops.Code(CodeBusinessLogic)
	if cause != nil {
		return builder.With("message", message).Wrap(cause)
	}
	return builder.Errorf("%s", message)
}

// CodeOf extracts the taxonomy code from an error. Errors without a code are
// treated as business-logic failures.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := oopsErr.Code().(string); ok && code != "" {
			return code
		}
	}
	return CodeBusinessLogic
}

// Details extracts the rule-violation list attached to a validation error.
// Returns nil when the error carries no details.
func Details(err error) []string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	details, ok := oopsErr.Context()["details"].([]string)
	if !ok {
		return nil
	}
	return details
}

// HTTPStatus maps a taxonomy code to its HTTP status.
func HTTPStatus(code string) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeToken:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the caller-safe message for an error. Business-logic
// failures get a generic message; their causes are for logs only.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if CodeOf(err) == CodeBusinessLogic {
		return "An unexpected error occurred"
	}
	return err.Error()
}
