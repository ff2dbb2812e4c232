package stt

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-nova/pkg/audioio"
)

// Mock implements Provider and Recognizer for testing.
// All methods can be customized via function fields.
type Mock struct {
	// TranscribeFunc is called when Transcribe is invoked.
	// If nil, returns an empty transcript.
	TranscribeFunc func(ctx context.Context, wav []byte) (string, error)

	// RecognizeFunc is called when Recognize is invoked.
	// If nil, drains audio until it closes or ctx ends.
	RecognizeFunc func(ctx context.Context, audio <-chan audioio.AudioChunk, onResult func(Result)) error

	// ProbeFunc is called when Probe is invoked.
	// If nil, returns nil.
	ProbeFunc func(ctx context.Context) error

	// Tracking
	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	Bytes  int
	Time   time.Time
}

// NewMock creates a mock that returns the given transcripts in order and then
// repeats the last one.
func NewMock(transcripts ...string) *Mock {
	var mu sync.Mutex
	i := 0
	return &Mock{
		TranscribeFunc: func(ctx context.Context, wav []byte) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			if len(transcripts) == 0 {
				return "", nil
			}
			if i >= len(transcripts) {
				return transcripts[len(transcripts)-1], nil
			}
			t := transcripts[i]
			i++
			return t, nil
		},
	}
}

// Name returns "mock".
func (m *Mock) Name() string {
	return "mock"
}

// Transcribe calls TranscribeFunc and records the call.
func (m *Mock) Transcribe(ctx context.Context, wav []byte) (string, error) {
	m.recordCall("Transcribe", len(wav))
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, wav)
	}
	return "", nil
}

// Recognize calls RecognizeFunc and records the call.
func (m *Mock) Recognize(ctx context.Context, audio <-chan audioio.AudioChunk, onResult func(Result)) error {
	m.recordCall("Recognize", 0)
	if m.RecognizeFunc != nil {
		return m.RecognizeFunc(ctx, audio, onResult)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-audio:
			if !ok {
				return nil
			}
		}
	}
}

// Probe calls ProbeFunc and records the call.
func (m *Mock) Probe(ctx context.Context) error {
	m.recordCall("Probe", 0)
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx)
	}
	return nil
}

func (m *Mock) recordCall(method string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Bytes: n, Time: time.Now()})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Verify Mock implements both interfaces at compile time.
var (
	_ Provider   = (*Mock)(nil)
	_ Recognizer = (*Mock)(nil)
)
