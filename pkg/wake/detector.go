// Package wake listens for the wake phrase.
//
// Two strategies share the Detector interface. ContinuousDetector streams the
// microphone into a long-lived recognizer session and reacts to interim
// results. ChunkedDetector records short fixed-length chunks and transcribes
// each one. Select picks one of them at startup.
package wake

import (
	"context"
	"log/slog"
	"time"

	"github.com/teslashibe/go-nova/pkg/mic"
	"github.com/teslashibe/go-nova/pkg/stt"
)

// Strategy names a detection strategy.
type Strategy string

const (
	StrategyContinuous Strategy = "continuous"
	StrategyChunked    Strategy = "chunked"
)

// RuntimeHostShell is the runtime in which no native recognizer is available.
const RuntimeHostShell = "host-shell"

const probeTimeout = 3 * time.Second

// Detector is an always-listening wake phrase recognizer.
type Detector interface {
	// Start begins listening. It returns once the microphone is held.
	// Starting a running detector is a no-op.
	Start(ctx context.Context) error

	// Stop ends listening and releases the microphone. It does not block
	// and may be called any number of times.
	Stop()

	// Running reports whether a listening loop is active.
	Running() bool

	// Strategy identifies the implementation.
	Strategy() Strategy
}

// Acquirer hands out microphone handles. *mic.Manager implements it.
type Acquirer interface {
	Acquire(ctx context.Context) (*mic.Handle, error)
}

// Deps are the collaborators a detector needs.
type Deps struct {
	Config Config
	Mic    Acquirer

	// STT transcribes chunks for the chunked strategy.
	STT stt.Provider

	// Recognizer backs the continuous strategy. When nil, Select builds a
	// Vosk recognizer from Env.RecognizerURL.
	Recognizer stt.Recognizer

	// OnWake is called once per detected wake phrase.
	OnWake func()

	// OnError reports a failure that ended the listening loop.
	OnError func(error)

	Logger *slog.Logger
}

// Env describes the host the detector runs in.
type Env struct {
	Runtime       string
	RecognizerURL string
	SampleRate    int
}

// Select probes the environment and returns the detector to use.
// The host-shell runtime, a missing recognizer URL and a failed recognizer
// probe all fall back to the chunked strategy.
func Select(ctx context.Context, env Env, deps Deps) (Detector, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "wake.select")

	chunked := func(reason string) (Detector, error) {
		logger.Info("using chunked wake detection", "reason", reason)
		return NewChunkedDetector(deps)
	}

	if env.Runtime == RuntimeHostShell {
		return chunked("host-shell runtime")
	}

	rec := deps.Recognizer
	if rec == nil {
		if env.RecognizerURL == "" {
			return chunked("no recognizer configured")
		}
		opts := []stt.Option{stt.WithRecognizerURL(env.RecognizerURL), stt.WithLogger(logger)}
		if env.SampleRate > 0 {
			opts = append(opts, stt.WithSampleRate(env.SampleRate))
		}
		v, err := stt.NewVoskRecognizer(opts...)
		if err != nil {
			return chunked(err.Error())
		}
		rec = v
	}

	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := rec.Probe(pctx); err != nil {
		logger.Warn("recognizer probe failed", "error", err)
		return chunked("recognizer probe failed")
	}

	deps.Recognizer = rec
	logger.Info("using continuous wake detection")
	return NewContinuousDetector(deps)
}

// sleep waits d or until ctx ends. It reports whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
