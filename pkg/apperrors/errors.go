package apperrors

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when a run callback arrives for a run that
	// is not in the state the callback requires.
	ErrInvalidState = errors.New("invalid run state")

	// ErrServiceUnavailable marks configuration errors: a required embedding
	// or vector-index binding is missing. Never retried automatically.
	ErrServiceUnavailable = errors.New("service unavailable")
)
