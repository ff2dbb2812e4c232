package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/teslashibe/go-nova/internal/httpc"
	"github.com/teslashibe/go-nova/pkg/fault"
)

// StreamRequest is the body of POST /chat/stream.
type StreamRequest struct {
	Message        string `json:"message"`
	Msg            string `json:"msg"`
	ConversationID string `json:"conversation_id,omitempty"`
	Speak          bool   `json:"speak"`
	Voice          string `json:"voice,omitempty"`
	SystemPrompt   string `json:"system_prompt,omitempty"`
	Hint           string `json:"hint,omitempty"`
}

// CompleteResponse is the reply of POST /chat.
type CompleteResponse struct {
	ConversationID string
	Text           string
	ToolCalls      []json.RawMessage
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client for bounded requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.client = c
	}
}

// WithStreamingClient sets the client for streamed requests.
func WithStreamingClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.streaming = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// Client talks to the Nova backend chat endpoints.
type Client struct {
	baseURL   string
	client    *http.Client
	streaming *http.Client
	logger    *slog.Logger
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrNoBaseURL
	}
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    httpc.Client,
		streaming: httpc.Streaming,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "chat.client")
	return c, nil
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Stream opens POST /chat/stream. The caller must close the returned body;
// cancelling ctx aborts the read.
func (c *Client) Stream(ctx context.Context, r StreamRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal stream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streaming.Do(req)
	if err != nil {
		return nil, transportError(ctx, "chat.stream", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readAPIError(resp, "/chat/stream")
	}
	return resp.Body, nil
}

// Complete sends a non-streaming POST /chat.
func (c *Client) Complete(ctx context.Context, message, conversationID string) (*CompleteResponse, error) {
	payload := map[string]string{"message": message}
	if conversationID != "" {
		payload["conversation_id"] = conversationID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, "chat.complete", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp, "/chat")
	}

	var out struct {
		ConversationID string            `json:"conversation_id"`
		Assistant      *string           `json:"assistant"`
		Response       *string           `json:"response"`
		Text           *string           `json:"text"`
		ToolCalls      []json.RawMessage `json:"tool_calls"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fault.New(fault.ProtocolParseError, "chat.complete", err)
	}

	result := &CompleteResponse{ConversationID: out.ConversationID, ToolCalls: out.ToolCalls}
	switch {
	case out.Assistant != nil:
		result.Text = *out.Assistant
	case out.Response != nil:
		result.Text = *out.Response
	case out.Text != nil:
		result.Text = *out.Text
	}
	return result, nil
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return transportError(ctx, "chat.health", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp, "/health")
	}
	return nil
}

func readAPIError(resp *http.Response, endpoint string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(data))
	var detail struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(data, &detail) == nil && detail.Detail != "" {
		msg = detail.Detail
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg, Endpoint: endpoint}
}

func transportError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if fault.KindOf(err) == fault.Timeout {
		return fault.New(fault.Timeout, op, err)
	}
	return fault.New(fault.NetworkFailure, op, err)
}
