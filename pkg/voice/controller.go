package voice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-nova/internal/observe"
	"github.com/teslashibe/go-nova/pkg/chat"
	"github.com/teslashibe/go-nova/pkg/fault"
	"github.com/teslashibe/go-nova/pkg/mic"
	"github.com/teslashibe/go-nova/pkg/wake"
)

// NoticeNoSpeech is posted when a capture yields no words.
const NoticeNoSpeech = "I didn't catch that."

// Errors returned by the controller.
var (
	ErrBusy   = errors.New("voice: exchange already in progress")
	ErrMuted  = errors.New("voice: microphone muted")
	ErrNoText = errors.New("voice: empty text")
)

// Responder runs chat exchanges. *chat.Consumer implements it.
type Responder interface {
	Send(ctx context.Context, text string) (chat.Reply, error)
	Stop()
}

// Deps are the controller's collaborators.
type Deps struct {
	Config   Config
	Mic      Acquirer
	Detector wake.Detector
	Capture  Capturer
	Chat     Responder
	Metrics  *observe.Metrics
	Logger   *slog.Logger
}

// Status is a snapshot of the controller.
type Status struct {
	Phase     Phase     `json:"phase"`
	Muted     bool      `json:"muted"`
	Capturing bool      `json:"capturing"`
	Listening bool      `json:"listening"`
	Strategy  string    `json:"strategy"`
	ResumeAt  time.Time `json:"resume_at,omitzero"`
}

// Controller is the voice phase state machine.
//
// Observers are called with the controller's lock held; they must not call
// back into the Controller.
type Controller struct {
	cfg      Config
	mic      Acquirer
	detector wake.Detector
	capture  Capturer
	chat     Responder
	metrics  *observe.Metrics
	logger   *slog.Logger

	gate ResumeGate
	wg   sync.WaitGroup

	mu            sync.Mutex
	ctx           context.Context
	phase         Phase
	muted         bool
	capturing     bool
	starting      bool
	keepalive     *mic.Handle
	cancelCapture context.CancelFunc
	aborted       bool

	// OnPhase receives every phase change.
	OnPhase func(from, to Phase)

	// OnNotice receives short user-visible notices.
	OnNotice func(text string)
}

// NewController creates a controller in IDLE_LISTENING. It starts muted;
// call Unmute to open the microphone.
func NewController(deps Deps) (*Controller, error) {
	if deps.Mic == nil || deps.Detector == nil || deps.Capture == nil || deps.Chat == nil {
		return nil, errors.New("voice: mic, detector, capture and chat are required")
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:      deps.Config,
		mic:      deps.Mic,
		detector: deps.Detector,
		capture:  deps.Capture,
		chat:     deps.Chat,
		metrics:  deps.Metrics,
		logger:   logger.With("component", "voice.controller"),
		ctx:      context.Background(),
		phase:    PhaseIdleListening,
		muted:    true,
	}, nil
}

// Run drives the resume scheduler until ctx ends, then stops the detector,
// releases the microphone and waits for in-flight work.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	ticker := time.NewTicker(c.cfg.ResumePoll)
	defer ticker.Stop()

	c.logger.Info("voice controller running", "strategy", c.detector.Strategy())
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case <-ticker.C:
			c.maybeResume()
		}
	}
}

func (c *Controller) shutdown() {
	c.detector.Stop()
	c.chat.Stop()

	c.mu.Lock()
	c.abortCaptureLocked()
	c.muted = true
	c.releaseKeepaliveLocked()
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("voice controller stopped")
}

// maybeResume restarts the detector when every resume condition holds.
func (c *Controller) maybeResume() {
	c.mu.Lock()
	ok := !c.muted &&
		!c.capturing &&
		!c.starting &&
		c.phase == PhaseIdleListening &&
		c.gate.Allows(time.Now()) &&
		!c.detector.Running()
	if !ok {
		c.mu.Unlock()
		return
	}
	c.starting = true
	ctx := c.ctx
	reopen := c.keepalive == nil
	c.mu.Unlock()

	if reopen && !c.reopenKeepalive(ctx) {
		return
	}

	err := c.detector.Start(ctx)

	c.mu.Lock()
	c.starting = false
	c.mu.Unlock()

	if err != nil {
		if ctx.Err() == nil {
			c.gate.Block(c.cfg.ErrorDisplayDelay)
			c.fail(err)
		}
		return
	}
	c.logger.Debug("wake detection resumed")
}

// reopenKeepalive replaces a keepalive dropped after the device failed. It
// reports whether detection may start; on false starting is already cleared.
func (c *Controller) reopenKeepalive(ctx context.Context) bool {
	h, err := c.mic.Acquire(ctx)

	c.mu.Lock()
	if err != nil {
		c.starting = false
		c.mu.Unlock()
		if ctx.Err() == nil {
			c.gate.Block(c.cfg.ErrorDisplayDelay)
			c.fail(err)
		}
		return false
	}
	if c.muted || c.keepalive != nil {
		c.starting = false
		c.mu.Unlock()
		h.Release()
		return false
	}
	c.keepalive = h
	c.mu.Unlock()
	c.logger.Info("microphone stream reopened")
	return true
}

// Wake arms a capture. It is ignored outside IDLE_LISTENING.
func (c *Controller) Wake() {
	c.mu.Lock()
	if c.phase != PhaseIdleListening || c.muted {
		c.logger.Debug("wake ignored", "phase", c.phase, "muted", c.muted)
		c.mu.Unlock()
		return
	}
	if err := c.transitionLocked(PhaseArmed); err != nil {
		c.mu.Unlock()
		return
	}
	c.gate.Block(c.cfg.SafetyBlock)
	ctx := c.ctx
	c.wg.Add(1)
	c.mu.Unlock()

	c.detector.Stop()
	c.metrics.RecordWake(ctx, string(c.detector.Strategy()))
	c.logger.Info("wake phrase detected")

	go func() {
		defer c.wg.Done()
		c.armed(ctx)
	}()
}

func (c *Controller) armed(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(c.cfg.SettleDelay):
	}

	c.mu.Lock()
	if c.phase != PhaseArmed {
		c.mu.Unlock()
		return
	}
	if c.muted {
		c.mu.Unlock()
		c.toIdle(PhaseArmed)
		return
	}
	if err := c.transitionLocked(PhaseCapturingCommand); err != nil {
		c.mu.Unlock()
		return
	}
	capCtx, cancel := context.WithCancel(ctx)
	c.capturing = true
	c.aborted = false
	c.cancelCapture = cancel
	keepalive := c.keepalive
	c.mu.Unlock()

	text, err := c.capture.Run(capCtx, keepalive)
	cancel()

	c.mu.Lock()
	c.capturing = false
	c.cancelCapture = nil
	aborted := c.aborted
	c.aborted = false
	c.gate.SetAt(time.Now().Add(c.cfg.ResponseCooldown))
	c.mu.Unlock()

	switch {
	case ctx.Err() != nil:
		return
	case aborted:
		c.logger.Debug("capture aborted")
		c.toIdle(PhaseCapturingCommand)
	case err != nil:
		c.fail(err)
	case text == "":
		c.notice(NoticeNoSpeech)
		c.toIdle(PhaseCapturingCommand)
	default:
		c.mu.Lock()
		err := c.transitionLocked(PhaseResponding)
		c.mu.Unlock()
		if err == nil {
			c.respond(ctx, text)
		}
	}
}

// respond runs one exchange and returns to idle once it is final.
func (c *Controller) respond(ctx context.Context, text string) {
	c.logger.Info("responding", "chars", len(text))
	_, err := c.chat.Send(ctx, text)
	if errors.Is(err, chat.ErrSuperseded) {
		return
	}
	if err != nil && ctx.Err() == nil {
		c.logger.Warn("exchange failed", "error", err)
	}
	c.toIdle(PhaseResponding)
}

// SubmitText sends typed input. It is only accepted in IDLE_LISTENING.
func (c *Controller) SubmitText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrNoText
	}

	c.mu.Lock()
	if c.phase != PhaseIdleListening {
		c.mu.Unlock()
		return ErrBusy
	}
	if err := c.transitionLocked(PhaseResponding); err != nil {
		c.mu.Unlock()
		return err
	}
	ctx := c.ctx
	c.wg.Add(1)
	c.mu.Unlock()

	c.detector.Stop()
	go func() {
		defer c.wg.Done()
		c.respond(ctx, text)
	}()
	return nil
}

// StopResponse aborts the current exchange, if any.
func (c *Controller) StopResponse() {
	c.chat.Stop()
}

// PlaybackStarted lowers the resume gate to now when it is later.
func (c *Controller) PlaybackStarted() {
	c.gate.Unblock(time.Now())
}

// DetectorFailed reports a terminal detector error.
func (c *Controller) DetectorFailed(err error) {
	c.fail(err)
}

// Unmute opens the keepalive stream and lets detection resume.
func (c *Controller) Unmute(ctx context.Context) error {
	c.mu.Lock()
	if !c.muted {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	h, err := c.mic.Acquire(ctx)
	if err != nil {
		c.fail(err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.muted {
		h.Release()
		return nil
	}
	c.keepalive = h
	c.muted = false
	c.gate.Open()
	c.logger.Info("microphone unmuted")
	return nil
}

// Mute stops detection, aborts a capture in progress and releases the
// keepalive stream.
func (c *Controller) Mute() {
	c.detector.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.muteLocked()
	c.logger.Info("microphone muted")
}

func (c *Controller) muteLocked() {
	c.muted = true
	c.abortCaptureLocked()
	if !c.capturing {
		c.releaseKeepaliveLocked()
	}
}

// abortCaptureLocked cancels a capture in progress and marks it aborted so
// its result is discarded.
func (c *Controller) abortCaptureLocked() {
	if c.cancelCapture != nil {
		c.aborted = true
		c.cancelCapture()
	}
}

func (c *Controller) releaseKeepaliveLocked() {
	if c.keepalive != nil {
		c.keepalive.Release()
		c.keepalive = nil
	}
}

// fail posts a notice for err and returns to idle after the display delay.
// A permission failure also mutes until the user unmutes again.
func (c *Controller) fail(err error) {
	kind := fault.KindOf(err)
	c.logger.Error("voice error", "kind", kind, "error", err)

	c.mu.Lock()
	ctx := c.ctx
	from := c.phase
	switch {
	case kind == fault.PermissionDenied:
		c.muteLocked()
	case kind == fault.DeviceUnavailable && !c.capturing:
		// The stream behind the keepalive is gone; maybeResume reopens it.
		c.releaseKeepaliveLocked()
	}
	c.wg.Add(1)
	c.mu.Unlock()

	c.detector.Stop()
	c.metrics.RecordVoiceError(ctx, kind.String())
	c.notice(fault.Notice(err))

	go func() {
		defer c.wg.Done()
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ErrorDisplayDelay):
		}
		c.gate.Unblock(time.Now())
		c.toIdle(from)
	}()
}

// toIdle returns to IDLE_LISTENING if the phase is still from.
func (c *Controller) toIdle(from Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != from || from == PhaseIdleListening {
		return
	}
	if err := c.transitionLocked(PhaseIdleListening); err != nil {
		c.logger.Warn("cannot return to idle", "error", err)
	}
	if c.muted && !c.capturing {
		c.releaseKeepaliveLocked()
	}
}

func (c *Controller) transitionLocked(to Phase) error {
	from := c.phase
	if err := checkTransition(from, to); err != nil {
		c.logger.Warn("rejected transition", "error", err)
		return err
	}
	c.phase = to
	c.metrics.RecordTransition(c.ctx, from.String(), to.String())
	c.logger.Debug("phase", "from", from, "to", to)
	if c.OnPhase != nil {
		c.OnPhase(from, to)
	}
	return nil
}

func (c *Controller) notice(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.OnNotice != nil {
		c.OnNotice(text)
	}
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Phase:     c.phase,
		Muted:     c.muted,
		Capturing: c.capturing,
		Listening: c.detector.Running(),
		Strategy:  string(c.detector.Strategy()),
		ResumeAt:  c.gate.At(),
	}
}

// Gate exposes the resume gate for inspection.
func (c *Controller) Gate() *ResumeGate {
	return &c.gate
}
