package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeDiscovery         = "DISCOVERY_ERROR"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeSubmission        = "SUBMISSION_ERROR"
	ErrCodeTransport         = "TRANSPORT_ERROR"
	ErrCodeTimeout           = "TIMEOUT_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeUnrecognizedField = "UNRECOGNIZED_FIELD"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// ClientError is the structured error type for all client operations.
type ClientError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ClientError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// NewError creates a new ClientError.
func NewError(code, message string) *ClientError {
	return &ClientError{Code: code, Message: message}
}

// NewErrorf creates a new ClientError with a formatted message.
func NewErrorf(code, format string, args ...any) *ClientError {
	return &ClientError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches the offending node ID to the error.
func (e *ClientError) WithNode(nodeID string) *ClientError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *ClientError) WithCause(err error) *ClientError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *ClientError) WithDetails(details map[string]any) *ClientError {
	e.Details = details
	return e
}

// IsCode reports whether err is (or wraps) a ClientError with the given code.
func IsCode(err error, code string) bool {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
