package domain

import "errors"

// Common errors used throughout the application.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConflict         = errors.New("conflict")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidState     = errors.New("invalid state")
	// ErrInconsistent marks a multi-entity workflow that stopped half way.
	ErrInconsistent = errors.New("inconsistent state")
)

// IsRecoverable reports whether err is an expected workflow outcome that the
// caller answers with a notice and a redirect rather than an error page.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrInvalidInput)
}

// Error codes for standardized API error responses.
const (
	ErrCodeResourceNotFound = "RESOURCE_NOT_FOUND"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// StandardError represents a standardized error response from the API.
type StandardError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StandardErrorResponse wraps a StandardError for JSON responses.
type StandardErrorResponse struct {
	Error StandardError `json:"error"`
}
