package services

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ValidationError is recovered inside ChatService and never reaches the client
// as a failure.
type ValidationError struct{ Message string }

func (e *ValidationError) Error() string { return e.Message }

// ConfigurationError reports a required setting that is missing.
type ConfigurationError struct{ Key string }

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not configured", e.Key)
}

// ProviderError wraps any failure reported by an upstream provider.
type ProviderError struct {
	Provider  string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ResponseShapeError means the upstream answered with a schema the adapter
// cannot read, usually SDK or endpoint version skew.
type ResponseShapeError struct {
	Provider   string
	Diagnostic string
}

func (e *ResponseShapeError) Error() string {
	return fmt.Sprintf("%s: unexpected response shape: %s", e.Provider, e.Diagnostic)
}

// ProviderTimeoutError means an attempt did not finish within the guard's
// per-attempt timeout.
type ProviderTimeoutError struct {
	Provider string
	Timeout  time.Duration
}

func (e *ProviderTimeoutError) Error() string {
	return fmt.Sprintf("%s: no reply within %s", e.Provider, e.Timeout)
}

func (e *ProviderTimeoutError) Unwrap() error { return context.DeadlineExceeded }

// IsRetryable reports whether err is worth a second attempt.
func IsRetryable(err error) bool {
	var timeoutErr *ProviderTimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Retryable
	}
	return false
}

// retryableStatus marks upstream HTTP statuses that may succeed on retry.
func retryableStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}
