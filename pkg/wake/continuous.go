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

// ContinuousDetector feeds the microphone to a streaming recognizer and
// matches every interim and final result.
type ContinuousDetector struct {
	cfg        Config
	mic        Acquirer
	recognizer stt.Recognizer
	matcher    *Matcher
	onWake     func()
	onError    func(error)
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	running  bool
	gen      uint64
	cancel   context.CancelFunc
	handle   *mic.Handle
	lastEmit time.Time
}

// NewContinuousDetector creates a continuous detector.
func NewContinuousDetector(deps Deps) (*ContinuousDetector, error) {
	if deps.Mic == nil {
		return nil, errors.New("wake: mic is required")
	}
	if deps.Recognizer == nil {
		return nil, errors.New("wake: recognizer is required")
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

	return &ContinuousDetector{
		cfg:        cfg,
		mic:        deps.Mic,
		recognizer: deps.Recognizer,
		matcher:    m,
		onWake:     deps.OnWake,
		onError:    deps.OnError,
		logger:     logger.With("component", "wake.continuous"),
		now:        time.Now,
	}, nil
}

// Strategy returns StrategyContinuous.
func (d *ContinuousDetector) Strategy() Strategy {
	return StrategyContinuous
}

// Running reports whether a session loop is active.
func (d *ContinuousDetector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Start acquires a microphone handle and begins recognition.
func (d *ContinuousDetector) Start(ctx context.Context) error {
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
		d.mu.Unlock()
		h.Release()
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.handle = h
	d.mu.Unlock()

	go d.loop(loopCtx, gen, h)
	return nil
}

// Stop ends recognition and releases the handle.
func (d *ContinuousDetector) Stop() {
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

// loop runs recognition sessions back to back until stopped.
func (d *ContinuousDetector) loop(ctx context.Context, gen uint64, h *mic.Handle) {
	defer h.Release()

	for {
		err := d.recognizer.Recognize(ctx, h.Chunks(), func(r stt.Result) {
			d.onResult(gen, r)
		})
		if ctx.Err() != nil {
			return
		}
		if streamClosed(h) {
			d.fail(gen, mic.ErrStreamLost)
			return
		}
		if err != nil {
			d.logger.Debug("recognizer session ended", "error", err, "kind", fault.KindOf(err))
		}
		if !sleep(ctx, d.cfg.Backoff) {
			return
		}
		d.logger.Debug("restarting recognizer session")
	}
}

func (d *ContinuousDetector) onResult(gen uint64, r stt.Result) {
	if !d.matcher.Match(r.Text) {
		return
	}
	now := d.now()

	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		return
	}
	if !d.lastEmit.IsZero() && now.Sub(d.lastEmit) < d.cfg.RecognizerDedupe {
		d.mu.Unlock()
		return
	}
	d.lastEmit = now
	d.mu.Unlock()

	d.logger.Info("wake phrase detected", "text", r.Text, "final", r.Final)
	if d.onWake != nil {
		d.onWake()
	}
}

func (d *ContinuousDetector) fail(gen uint64, err error) {
	d.mu.Lock()
	current := d.gen == gen
	d.mu.Unlock()
	if !current {
		return
	}

	d.logger.Warn("wake loop ended", "error", err)
	d.Stop()
	if d.onError != nil {
		d.onError(err)
	}
}

// streamClosed reports whether the handle's subscription has ended. A slice
// that happens to be pending is dropped.
func streamClosed(h *mic.Handle) bool {
	select {
	case _, ok := <-h.Chunks():
		return !ok
	default:
		return false
	}
}

var _ Detector = (*ContinuousDetector)(nil)
