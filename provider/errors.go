package provider

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for provider operations.
var (
	// ErrUnknownProvider indicates the requested provider is not registered.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrUnavailable indicates the reasoning engine is unavailable.
	ErrUnavailable = errors.New("reasoning engine unavailable")

	// ErrContextTooLong indicates the input exceeds the context window.
	ErrContextTooLong = errors.New("context exceeds maximum length")

	// ErrRateLimited indicates the request was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidRequest indicates the request is malformed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrTimeout indicates the request timed out.
	ErrTimeout = errors.New("request timed out")

	// ErrCredentialsNotFound indicates credentials are missing.
	ErrCredentialsNotFound = errors.New("credentials not found")

	// ErrEmptyResponse indicates the engine returned no completion.
	ErrEmptyResponse = errors.New("empty completion")
)

// Error wraps provider errors with context.
type Error struct {
	Provider  string // Provider name ("groq", "openai", etc.)
	Op        string // Operation that failed ("complete", "classify")
	Err       error  // Underlying error
	Retryable bool   // Whether the caller may resubmit
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new provider error.
func NewError(provider, op string, err error, retryable bool) *Error {
	return &Error{
		Provider:  provider,
		Op:        op,
		Err:       err,
		Retryable: retryable,
	}
}

// FromContext converts a context error into a provider error. Deadline
// expiry becomes ErrTimeout and is retryable; cancellation is not.
// Returns nil if err is not a context error.
func FromContext(provider, op string, err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(provider, op, fmt.Errorf("%w: %w", ErrTimeout, err), true)
	case errors.Is(err, context.Canceled):
		return NewError(provider, op, err, false)
	}
	return nil
}

// IsRetryable checks if an error is likely transient and worth resubmitting.
func IsRetryable(err error) bool {
	var provErr *Error
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}

	// Check for known retryable sentinel errors
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IsTimeout checks if an error is an upstream timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsAuthError checks if an error is authentication-related.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrCredentialsNotFound)
}
