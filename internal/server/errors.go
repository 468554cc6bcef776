package server

import (
	"errors"
	"fmt"

	"github.com/joshdurbin/strava-stats/internal/query"
)

// ErrorCode classifies MCP tool errors for structured error handling
type ErrorCode string

const (
	// ErrInvalidInput indicates a query that could not be interpreted
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrUpstreamError indicates Strava or the credential store failed
	ErrUpstreamError ErrorCode = "UPSTREAM_ERROR"
	// ErrInternalError indicates an unexpected internal error
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// ToolError represents a structured tool error with code, message, and optional details
type ToolError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *ToolError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidInputError creates an error for invalid input parameters
func NewInvalidInputError(msg string) *ToolError {
	return &ToolError{Code: ErrInvalidInput, Message: msg}
}

// NewInvalidInputErrorWithDetails creates an error for invalid input with additional details
func NewInvalidInputErrorWithDetails(msg, details string) *ToolError {
	return &ToolError{Code: ErrInvalidInput, Message: msg, Details: details}
}

// NewUpstreamError creates an error for a failed Strava fetch or token lookup
func NewUpstreamError(err error) *ToolError {
	return &ToolError{
		Code:    ErrUpstreamError,
		Message: "Fetching activities failed",
		Details: err.Error(),
	}
}

// NewInternalError creates an error for unexpected internal failures
func NewInternalError(msg string) *ToolError {
	return &ToolError{Code: ErrInternalError, Message: msg}
}

// NewInternalErrorWithCause creates an internal error wrapping another error
func NewInternalErrorWithCause(msg string, err error) *ToolError {
	return &ToolError{
		Code:    ErrInternalError,
		Message: msg,
		Details: err.Error(),
	}
}

// resolveError maps an error from the resolver onto a ToolError. Anything
// past interpretation comes from fetching.
func resolveError(err error) *ToolError {
	var perr *query.ParseError
	if errors.As(err, &perr) {
		return NewInvalidInputErrorWithDetails(perr.Err.Error(), perr.Query)
	}
	return NewUpstreamError(err)
}
