package wake

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-nova/pkg/fault"
	"github.com/teslashibe/go-nova/pkg/mic"
	"github.com/teslashibe/go-nova/pkg/stt"
)

// ChunkedDetector records fixed-length chunks and transcribes each one.
//
// Cooldown and re-trigger state survive Stop/Start so a fresh loop started
// right after a wake does not fire on the tail of the same utterance.
type ChunkedDetector struct {
	cfg     Config
	mic     Acquirer
	stt     stt.Provider
	matcher *Matcher
	onWake  func()
	onError func(error)
	logger  *slog.Logger
	now     func() time.Time

	mu            sync.Mutex
	running       bool
	gen           uint64
	cancel        context.CancelFunc
	handle        *mic.Handle
	lastWake      time.Time
	cooldownUntil time.Time
}

// NewChunkedDetector creates a chunked detector.
func NewChunkedDetector(deps Deps) (*ChunkedDetector, error) {
	if deps.Mic == nil {
		return nil, errors.New("wake: mic is required")
	}
	if deps.STT == nil {
		return nil, errors.New("wake: stt provider is required")
	}
	cfg := deps.Config.withDefaultPhrases()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, err := NewMatcher(cfg.Phrases)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ChunkedDetector{
		cfg:     cfg,
		mic:     deps.Mic,
		stt:     deps.STT,
		matcher: m,
		onWake:  deps.OnWake,
		onError: deps.OnError,
		logger:  logger.With("component", "wake.chunked"),
		now:     time.Now,
	}, nil
}

// Strategy returns StrategyChunked.
func (d *ChunkedDetector) Strategy() Strategy {
	return StrategyChunked
}

// Running reports whether the loop is active.
func (d *ChunkedDetector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Start acquires a microphone handle and starts the loop.
func (d *ChunkedDetector) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = true
	d.gen++
	gen := d.gen
	d.mu.Unlock()

	h, err := d.mic.Acquire(ctx)
	if err != nil {
		d.mu.Lock()
		if d.gen == gen {
			d.running = false
		}
		d.mu.Unlock()
		return err
	}

	d.mu.Lock()
	if d.gen != gen {
		// Stopped while acquiring.
		d.mu.Unlock()
		h.Release()
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.handle = h
	d.mu.Unlock()

	d.logger.Debug("listening", "handle", h.ID())
	go d.loop(loopCtx, gen, h)
	return nil
}

// Stop ends the loop and releases the handle.
func (d *ChunkedDetector) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.gen++
	cancel, h := d.cancel, d.handle
	d.cancel, d.handle = nil, nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if h != nil {
		h.Release()
	}
}

func (d *ChunkedDetector) loop(ctx context.Context, gen uint64, h *mic.Handle) {
	defer h.Release()

	for ctx.Err() == nil {
		clip, err := h.Record(ctx, d.cfg.ChunkDuration)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			d.fail(gen, err)
			return
		}

		if d.inCooldown() {
			sleep(ctx, d.cfg.Pace)
			continue
		}

		text, err := d.stt.Transcribe(ctx, clip.WAV())
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if fault.Is(err, fault.PermissionDenied) {
				d.fail(gen, err)
				return
			}
			d.logger.Debug("transcription failed, backing off", "error", err)
			sleep(ctx, d.cfg.Backoff)
			continue
		}

		if !isNonSpeech(text) && d.matcher.Match(text) {
			if d.trigger(gen, text) {
				return
			}
		}
		sleep(ctx, d.cfg.Pace)
	}
}

// trigger records the wake, ends the loop and emits. It reports whether the
// loop should exit.
func (d *ChunkedDetector) trigger(gen uint64, text string) bool {
	now := d.now()

	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		return true
	}
	if !d.lastWake.IsZero() && now.Sub(d.lastWake) < d.cfg.RetriggerGap {
		d.mu.Unlock()
		return false
	}
	d.lastWake = now
	d.cooldownUntil = now.Add(d.cfg.Cooldown)
	d.mu.Unlock()

	d.logger.Info("wake phrase detected", "text", text)
	d.Stop()
	if d.onWake != nil {
		d.onWake()
	}
	return true
}

func (d *ChunkedDetector) inCooldown() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now().Before(d.cooldownUntil)
}

func (d *ChunkedDetector) fail(gen uint64, err error) {
	d.mu.Lock()
	current := d.gen == gen
	d.mu.Unlock()
	if !current {
		return
	}

	d.logger.Warn("wake loop ended", "error", err, "kind", fault.KindOf(err))
	d.Stop()
	if d.onError != nil {
		d.onError(err)
	}
}

var _ Detector = (*ChunkedDetector)(nil)
