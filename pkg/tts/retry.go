package tts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-nova/pkg/fault"
)

// doWithRetry sends a request built by newReq, retrying transport errors and
// retryable API statuses. The returned response has status 200.
func doWithRetry(
	ctx context.Context,
	client *http.Client,
	cfg *Config,
	logger *slog.Logger,
	provider string,
	newReq func(body io.Reader) (*http.Request, error),
	body []byte,
	parseError func(*http.Response) error,
) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := newReq(bytes.NewReader(body))
		if err != nil {
			return nil, WrapError(provider, err)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = WrapError(provider, classify(err))
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := parseError(resp)
		resp.Body.Close()
		var ae *APIError
		if !errors.As(apiErr, &ae) || !ae.IsRetryable() {
			return nil, apiErr
		}
		lastErr = apiErr
		logger.Warn("retrying request",
			"attempt", attempt+1,
			"status", resp.StatusCode,
		)
	}

	return nil, lastErr
}

func classify(err error) error {
	if fault.KindOf(err) == fault.Timeout {
		return fault.New(fault.Timeout, "tts.request", err)
	}
	return fault.New(fault.NetworkFailure, "tts.request", err)
}
