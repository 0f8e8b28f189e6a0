package llm

import (
	"errors"
	"time"
)

// ErrorType classifies provider failures for the retry layer.
type ErrorType string

const (
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeRequestTooLarge ErrorType = "request_too_large"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeProvider        ErrorType = "provider"
)

// Error normalizes vendor SDK failures so callers never have to inspect
// provider-specific error types. Retryable and RetryAfter drive the
// backoff in WrapWithRetry.
type Error struct {
	Type        ErrorType
	Message     string
	Retryable   bool
	RetryAfter  *time.Duration
	StatusCode  int
	ProviderErr error
}

func (e *Error) Error() string {
	if e.ProviderErr != nil {
		return e.Message + ": " + e.ProviderErr.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.ProviderErr
}

// IsRetryableError reports whether err is a transient provider failure.
func IsRetryableError(err error) bool {
	var lerr *Error
	return errors.As(err, &lerr) && lerr.Retryable
}

// ExtractRetryAfter returns the provider's requested backoff, if any.
func ExtractRetryAfter(err error) *time.Duration {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.RetryAfter
	}
	return nil
}

// NewRateLimitError builds a retryable rate-limit error. retryAfter may be
// nil when the provider gave no hint.
func NewRateLimitError(message string, retryAfter *time.Duration, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRateLimit,
		Message:     message,
		Retryable:   true,
		RetryAfter:  retryAfter,
		ProviderErr: providerErr,
	}
}

// NewRequestTooLargeError builds a retryable request-too-large error; the
// retry layer treats it like any other transient failure.
func NewRequestTooLargeError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRequestTooLarge,
		Message:     message,
		Retryable:   true,
		ProviderErr: providerErr,
	}
}

// NewProviderError builds a non-retryable provider error.
func NewProviderError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeProvider,
		Message:     message,
		ProviderErr: providerErr,
	}
}
