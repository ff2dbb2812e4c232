package gesture

import (
	"context"
	"log/slog"
	"time"

	"github.com/teslashibe/go-nova/internal/observe"
)

// Source yields the hand in the next frame, or nil when none is visible.
type Source interface {
	Next(ctx context.Context) (*Landmarks, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Landmarks, error)

// Next calls f.
func (f SourceFunc) Next(ctx context.Context) (*Landmarks, error) {
	return f(ctx)
}

// Runner reads frames from a Source and publishes tracker output.
type Runner struct {
	src     Source
	tracker *Tracker
	cfg     Config
	metrics *observe.Metrics
	logger  *slog.Logger
	backoff time.Duration

	// OnSample receives every frame's cursor and pinch state.
	OnSample func(CursorSample, PinchState)
}

// NewRunner creates a runner over src.
func NewRunner(cfg Config, src Source, metrics *observe.Metrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		src:     src,
		tracker: NewTracker(cfg),
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With("component", "gesture.runner"),
		backoff: 900 * time.Millisecond,
	}
}

// Run processes frames at up to cfg.FPS until ctx ends. Frame errors are
// logged and retried after a backoff; a lost hand is reported as invisible.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(r.cfg.FPS))
	defer ticker.Stop()

	var failures int
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		hand, err := r.src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			if failures == 1 || failures%30 == 0 {
				r.logger.Warn("frame failed", "error", err, "failures", failures)
			}
			r.step(ctx, time.Now(), nil)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.backoff):
			}
			continue
		}
		failures = 0
		r.step(ctx, time.Now(), hand)
	}
}

func (r *Runner) step(ctx context.Context, now time.Time, hand *Landmarks) {
	cursor, pinch := r.tracker.Update(now, hand)
	if pinch.JustPressed {
		r.metrics.RecordPress(ctx)
		r.logger.Debug("pinch", "x", cursor.X, "y", cursor.Y)
	}
	if r.OnSample != nil {
		r.OnSample(cursor, pinch)
	}
}
