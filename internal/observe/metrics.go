// Package observe provides the OpenTelemetry instruments for go-nova.
//
// Instruments are created from a metric.MeterProvider. InitProvider bridges
// them to a Prometheus registry served on /metrics; tests should use
// NewMetrics with an sdkmetric.ManualReader instead.
//
// Every Record method is safe on a nil *Metrics, so components can run
// without instrumentation.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/teslashibe/go-nova"

// Metrics holds all metric instruments for the application.
type Metrics struct {
	// WakeTriggers counts wake events by strategy.
	WakeTriggers metric.Int64Counter

	// CaptureDuration tracks how long command recording took.
	CaptureDuration metric.Float64Histogram

	// STTDuration tracks transcription latency.
	STTDuration metric.Float64Histogram

	// ChatExchanges counts exchanges by outcome
	// (streamed, fallback, failed, stopped, superseded).
	ChatExchanges metric.Int64Counter

	// StreamFrames counts decoded chat frames by kind.
	StreamFrames metric.Int64Counter

	// VoiceErrors counts voice loop failures by fault kind.
	VoiceErrors metric.Int64Counter

	// PhaseTransitions counts controller transitions by from and to phase.
	PhaseTransitions metric.Int64Counter

	// GesturePresses counts pinch presses.
	GesturePresses metric.Int64Counter
}

// latencyBuckets are histogram boundaries in seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.WakeTriggers, err = m.Int64Counter("nova.wake.triggers",
		metric.WithDescription("Wake phrase detections by strategy."),
	); err != nil {
		return nil, err
	}
	if met.CaptureDuration, err = m.Float64Histogram("nova.capture.duration",
		metric.WithDescription("Length of recorded commands."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("nova.stt.duration",
		metric.WithDescription("Latency of command transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChatExchanges, err = m.Int64Counter("nova.chat.exchanges",
		metric.WithDescription("Chat exchanges by outcome."),
	); err != nil {
		return nil, err
	}
	if met.StreamFrames, err = m.Int64Counter("nova.chat.frames",
		metric.WithDescription("Decoded chat stream frames by kind."),
	); err != nil {
		return nil, err
	}
	if met.VoiceErrors, err = m.Int64Counter("nova.voice.errors",
		metric.WithDescription("Voice loop failures by kind."),
	); err != nil {
		return nil, err
	}
	if met.PhaseTransitions, err = m.Int64Counter("nova.voice.transitions",
		metric.WithDescription("Voice phase transitions."),
	); err != nil {
		return nil, err
	}
	if met.GesturePresses, err = m.Int64Counter("nova.gesture.presses",
		metric.WithDescription("Pinch presses."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordWake counts a wake event.
func (m *Metrics) RecordWake(ctx context.Context, strategy string) {
	if m == nil {
		return
	}
	m.WakeTriggers.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
}

// RecordCapture observes a recording length.
func (m *Metrics) RecordCapture(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.CaptureDuration.Record(ctx, d.Seconds())
}

// RecordSTT observes a transcription latency.
func (m *Metrics) RecordSTT(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.STTDuration.Record(ctx, d.Seconds())
}

// RecordExchange counts a finished chat exchange.
func (m *Metrics) RecordExchange(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.ChatExchanges.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordFrame counts a decoded stream frame.
func (m *Metrics) RecordFrame(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.StreamFrames.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordVoiceError counts a voice loop failure.
func (m *Metrics) RecordVoiceError(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.VoiceErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordTransition counts a phase change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.PhaseTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordPress counts a pinch press.
func (m *Metrics) RecordPress(ctx context.Context) {
	if m == nil {
		return
	}
	m.GesturePresses.Add(ctx, 1)
}
