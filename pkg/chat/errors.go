package chat

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-nova/pkg/fault"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoBaseURL is returned when the backend URL is missing.
	ErrNoBaseURL = errors.New("chat: base URL required")

	// ErrEmptyMessage is returned when asked to send nothing.
	ErrEmptyMessage = errors.New("chat: empty message")

	// ErrNoFrames is returned when a stream ends without a single frame.
	ErrNoFrames = fault.New(fault.ProtocolParseError, "chat.stream", errors.New("empty stream"))

	// ErrSuperseded is returned by Send when a newer exchange replaced it.
	ErrSuperseded = errors.New("chat: exchange superseded")
)

// APIError represents a non-success response from the backend.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("chat [%s]: API error %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// IsRetryable returns true for rate limiting and server errors.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode < 600)
}

// Unwrap classifies API errors as network failures.
func (e *APIError) Unwrap() error {
	return fault.ErrNetwork
}
