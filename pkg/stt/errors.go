package stt

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-nova/pkg/fault"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoBaseURL is returned when the backend URL is missing.
	ErrNoBaseURL = errors.New("stt: base URL required")

	// ErrEmptyAudio is returned when asked to transcribe nothing.
	ErrEmptyAudio = errors.New("stt: empty audio")
)

// APIError represents an error response from a transcription service.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error body returned by the service.
	Message string

	// Provider identifies which provider returned the error.
	Provider string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("stt [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// Unwrap classifies every API error as a network failure.
func (e *APIError) Unwrap() error {
	return fault.ErrNetwork
}

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("stt [%s]: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
