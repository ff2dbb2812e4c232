package stt

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-nova/internal/httpc"
)

// Config holds STT provider configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// BaseURL is the Nova backend root, e.g. http://127.0.0.1:8000.
	BaseURL string

	// RecognizerURL is the websocket URL of a Vosk-protocol server.
	RecognizerURL string

	// SampleRate of audio sent to the recognizer.
	SampleRate int

	// Timeout bounds one transcription request.
	Timeout time.Duration

	// HTTPClient overrides the shared client.
	HTTPClient *http.Client

	// Logger for provider diagnostics.
	Logger *slog.Logger
}

// Option is a functional option for configuring STT providers.
type Option func(*Config)

// WithBaseURL sets the backend root URL.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithRecognizerURL sets the continuous recognizer endpoint.
func WithRecognizerURL(url string) Option {
	return func(c *Config) {
		c.RecognizerURL = url
	}
}

// WithSampleRate sets the recognizer sample rate.
func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithLogger sets the structured logger for the provider.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		SampleRate: 16000,
		Timeout:    20 * time.Second,
		HTTPClient: httpc.Client,
		Logger:     slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
