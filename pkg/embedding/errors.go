package embedding

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies embedding API failures.
type ErrorType string

const (
	ErrorTypeAuth     ErrorType = "auth"
	ErrorTypeEndpoint ErrorType = "endpoint"
	ErrorTypeModel    ErrorType = "model"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Error represents a structured embedding error with classification.
type Error struct {
	Type      ErrorType
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ClassifyError categorizes an error from the embedding API so callers can
// decide whether a failed batch is worth re-driving.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var embErr *Error
	if errors.As(err, &embErr) {
		return embErr
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	switch {
	case strings.Contains(errStr, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key"):
		return &Error{Type: ErrorTypeAuth, Message: "authentication failed", Retryable: false, Cause: err}
	case strings.Contains(lower, "model") && strings.Contains(lower, "not found"):
		return &Error{Type: ErrorTypeModel, Message: "model not found", Retryable: false, Cause: err}
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"):
		return &Error{Type: ErrorTypeEndpoint, Message: "connection failed", Retryable: true, Cause: err}
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return &Error{Type: ErrorTypeEndpoint, Message: "request timeout", Retryable: true, Cause: err}
	case strings.Contains(errStr, "429") || strings.Contains(lower, "rate limit"):
		return &Error{Type: ErrorTypeUnknown, Message: "rate limited", Retryable: true, Cause: err}
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504"):
		return &Error{Type: ErrorTypeEndpoint, Message: "server error", Retryable: true, Cause: err}
	default:
		return &Error{Type: ErrorTypeUnknown, Message: "embedding error", Retryable: false, Cause: err}
	}
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var embErr *Error
	if errors.As(err, &embErr) {
		return embErr.Retryable
	}
	return false
}
