package voice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-nova/internal/observe"
	"github.com/teslashibe/go-nova/pkg/audioio"
	"github.com/teslashibe/go-nova/pkg/mic"
	"github.com/teslashibe/go-nova/pkg/stt"
)

// Acquirer hands out microphone handles. *mic.Manager implements it.
type Acquirer interface {
	Acquire(ctx context.Context) (*mic.Handle, error)
}

// Capturer records and transcribes one command.
type Capturer interface {
	Run(ctx context.Context, keepalive *mic.Handle) (string, error)
}

// Capture records the utterance that follows a wake phrase.
type Capture struct {
	cfg     Config
	mic     Acquirer
	stt     stt.Provider
	metrics *observe.Metrics
	logger  *slog.Logger
}

// NewCapture creates a command capture.
func NewCapture(cfg Config, m Acquirer, p stt.Provider, metrics *observe.Metrics, logger *slog.Logger) *Capture {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{
		cfg:     cfg,
		mic:     m,
		stt:     p,
		metrics: metrics,
		logger:  logger.With("component", "voice.capture"),
	}
}

// Run records up to MaxDuration and returns the trimmed transcript.
// keepalive is used when non-nil; otherwise a handle is acquired for the
// recording and released before Run returns.
func (c *Capture) Run(ctx context.Context, keepalive *mic.Handle) (string, error) {
	h := keepalive
	if h == nil {
		var err error
		h, err = c.mic.Acquire(ctx)
		if err != nil {
			return "", err
		}
		defer h.Release()
	}

	start := time.Now()
	recCtx, cancel := context.WithTimeout(ctx, c.cfg.MaxDuration)
	clip, err := h.RecordUntil(recCtx, c.cfg.MaxDuration, c.endpointer())
	cancel()
	if err != nil && !(errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
		return "", err
	}
	c.metrics.RecordCapture(ctx, time.Since(start))

	if clip.Empty() {
		c.logger.Debug("nothing recorded")
		return "", nil
	}

	started := time.Now()
	text, err := c.stt.Transcribe(ctx, clip.WAV())
	if err != nil {
		return "", err
	}
	c.metrics.RecordSTT(ctx, time.Since(started))

	text = strings.TrimSpace(text)
	c.logger.Debug("command captured", "audio", clip.Duration(), "chars", len(text))
	return text, nil
}

// endpointer returns a slice callback that reports true once speech has been
// heard and EndSilence of quiet has followed it.
func (c *Capture) endpointer() func(audioio.AudioChunk) bool {
	if c.cfg.EndSilence <= 0 {
		return nil
	}
	var heard bool
	var quiet time.Duration
	return func(chunk audioio.AudioChunk) bool {
		if chunk.RMS() >= c.cfg.SpeechLevel {
			heard = true
			quiet = 0
			return false
		}
		if !heard {
			return false
		}
		quiet += chunk.Duration()
		return quiet >= c.cfg.EndSilence
	}
}

var _ Capturer = (*Capture)(nil)
