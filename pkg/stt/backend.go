package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/teslashibe/go-nova/pkg/fault"
)

const providerBackend = "backend"

// Backend transcribes recordings through the Nova backend's /stt endpoint.
type Backend struct {
	config *Config
	client *http.Client
	logger *slog.Logger
}

// NewBackend creates a backend transcriber.
func NewBackend(opts ...Option) (*Backend, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}

	return &Backend{
		config: cfg,
		client: cfg.HTTPClient,
		logger: cfg.Logger.With("component", "stt.backend"),
	}, nil
}

// Name returns "backend".
func (b *Backend) Name() string {
	return providerBackend
}

// Transcribe uploads wav as multipart field "file" and returns the text.
func (b *Backend) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if len(wav) == 0 {
		return "", WrapError(providerBackend, ErrEmptyAudio)
	}

	if b.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.Timeout)
		defer cancel()
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", WrapError(providerBackend, fmt.Errorf("create form file: %w", err))
	}
	if _, err := part.Write(wav); err != nil {
		return "", WrapError(providerBackend, fmt.Errorf("write audio: %w", err))
	}
	if err := mw.Close(); err != nil {
		return "", WrapError(providerBackend, fmt.Errorf("close multipart: %w", err))
	}

	url := strings.TrimRight(b.config.BaseURL, "/") + "/stt"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", WrapError(providerBackend, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := b.client.Do(req)
	if err != nil {
		return "", WrapError(providerBackend, transportError(ctx, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", WrapError(providerBackend, transportError(ctx, err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(data)),
			Provider:   providerBackend,
		}
	}

	text, err := parseTranscript(data)
	if err != nil {
		return "", WrapError(providerBackend, err)
	}

	b.logger.Debug("transcribed", "bytes", len(wav), "chars", len(text))
	return text, nil
}

// parseTranscript accepts {"text": ...} or {"transcript": ...}.
func parseTranscript(data []byte) (string, error) {
	var out struct {
		Text       *string `json:"text"`
		Transcript *string `json:"transcript"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fault.New(fault.ProtocolParseError, "stt.parse", err)
	}
	switch {
	case out.Text != nil:
		return strings.TrimSpace(*out.Text), nil
	case out.Transcript != nil:
		return strings.TrimSpace(*out.Transcript), nil
	default:
		return "", nil
	}
}

// transportError keeps cancellation intact and tags everything else as a network failure.
func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled {
		return err
	}
	if fault.KindOf(err) == fault.Timeout {
		return fault.New(fault.Timeout, "stt.request", err)
	}
	return fault.New(fault.NetworkFailure, "stt.request", err)
}

var _ Provider = (*Backend)(nil)
