package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"
)

const providerBackend = "backend"

// Backend synthesizes speech with the Nova backend's /speak endpoint.
type Backend struct {
	config *Config
	client *http.Client
	logger *slog.Logger
}

// NewBackend creates a backend provider.
func NewBackend(opts ...Option) (*Backend, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}

	return &Backend{
		config: cfg,
		client: cfg.HTTPClient,
		logger: cfg.Logger.With("component", "tts.backend"),
	}, nil
}

type speakRequest struct {
	Text      string `json:"text"`
	VoiceID   string `json:"voice_id,omitempty"`
	VoiceName string `json:"voice_name,omitempty"`
	Voice     string `json:"voice,omitempty"`
}

// Synthesize posts text to /speak and returns the audio file.
func (b *Backend) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, WrapError(providerBackend, ErrEmptyText)
	}
	start := time.Now()

	if b.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(speakRequest{
		Text:      text,
		VoiceID:   b.config.VoiceID,
		VoiceName: b.config.VoiceName,
		Voice:     b.config.Voice,
	})
	if err != nil {
		return nil, WrapError(providerBackend, fmt.Errorf("marshal payload: %w", err))
	}

	url := b.url("/speak")
	resp, err := doWithRetry(ctx, b.client, b.config, b.logger, providerBackend,
		func(r io.Reader) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, r)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")
			return req, nil
		}, body, b.parseError)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerBackend, classify(err))
	}

	enc := EncodingWAV
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		if e := EncodingFromContentType(mt); e != EncodingUnknown {
			enc = e
		}
	}

	latency := time.Since(start)
	b.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency.Milliseconds(),
	)

	return &AudioResult{
		Audio:     audio,
		Format:    AudioFormat{Encoding: enc, Channels: 1},
		CharCount: len(text),
		Latency:   latency,
	}, nil
}

// Health probes /health.
func (b *Backend) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url("/health"), nil)
	if err != nil {
		return WrapError(providerBackend, err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return WrapError(providerBackend, classify(err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return b.parseError(resp)
	}
	return nil
}

// Close is a no-op; the shared client outlives the provider.
func (b *Backend) Close() error {
	return nil
}

func (b *Backend) url(path string) string {
	return strings.TrimRight(b.config.BaseURL, "/") + path
}

func (b *Backend) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := strings.TrimSpace(string(body))
	var errResp struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil {
		switch {
		case errResp.Detail != "":
			message = errResp.Detail
		case errResp.Error != "":
			message = errResp.Error
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Provider:   providerBackend,
	}
}

// Verify Backend implements Provider at compile time.
var _ Provider = (*Backend)(nil)
