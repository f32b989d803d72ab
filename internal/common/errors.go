// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Archive errors.
	ErrFetchExhausted = errors.New("archive fetch retries exhausted")
	ErrServerBusy     = errors.New("archive server busy")

	// Classifier errors.
	ErrOracleUnavailable = errors.New("classification oracle unavailable")

	// Validation errors.
	ErrMissingHypothesis = errors.New("hypothesis text is required")
	ErrMissingJobID      = errors.New("job id is required")
	ErrNoCommunities     = errors.New("no communities to search")
	ErrNotEntitled       = errors.New("caller is not entitled to run")

	// Storage errors.
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsValidation reports whether the error belongs to the fail-fast validation
// class, the only class besides retry exhaustion that may mark a job failed.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingHypothesis) ||
		errors.Is(err, ErrMissingJobID) ||
		errors.Is(err, ErrNoCommunities) ||
		errors.Is(err, ErrNotEntitled)
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrServerBusy) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
