package wake

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-nova/pkg/audioio"
	"github.com/teslashibe/go-nova/pkg/fault"
	"github.com/teslashibe/go-nova/pkg/mic"
	"github.com/teslashibe/go-nova/pkg/stt"
)

func testMic(openErr error) *mic.Manager {
	return mic.NewManager(func(ctx context.Context) (audioio.Source, error) {
		if openErr != nil {
			return nil, openErr
		}
		cfg := audioio.DefaultConfig()
		cfg.BufferDuration = 5 * time.Millisecond
		src := audioio.NewMockSource(cfg, nil, audioio.WithSineWave(440, 0.3))
		if err := src.Start(context.Background()); err != nil {
			return nil, err
		}
		return src, nil
	}, nil)
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.ChunkDuration = 10 * time.Millisecond
	cfg.Cooldown = time.Hour
	cfg.RetriggerGap = 0
	cfg.Pace = time.Millisecond
	cfg.Backoff = time.Millisecond
	return cfg
}

// wakeRecorder counts wakes and errors.
type wakeRecorder struct {
	wakes  atomic.Int32
	woke   chan struct{}
	mu     sync.Mutex
	errors []error
	failed chan struct{}
}

func newWakeRecorder() *wakeRecorder {
	return &wakeRecorder{woke: make(chan struct{}, 10), failed: make(chan struct{}, 10)}
}

func (r *wakeRecorder) onWake() {
	r.wakes.Add(1)
	r.woke <- struct{}{}
}

func (r *wakeRecorder) onError(err error) {
	r.mu.Lock()
	r.errors = append(r.errors, err)
	r.mu.Unlock()
	r.failed <- struct{}{}
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func waitUntil(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestChunkedDetector_Wake(t *testing.T) {
	m := testMic(nil)
	rec := newWakeRecorder()
	transcriber := stt.NewMock("(music)", "hello there", "Hey, Nova!")

	d, err := NewChunkedDetector(Deps{
		Config: fastConfig(), Mic: m, STT: transcriber,
		OnWake: rec.onWake, OnError: rec.onError,
	})
	if err != nil {
		t.Fatalf("NewChunkedDetector() error = %v", err)
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, rec.woke, "wake")

	if d.Running() {
		t.Error("detector should stop itself after a wake")
	}
	waitUntil(t, func() bool { return m.Refs() == 0 }, "handle release")
	if got := transcriber.CallCount("Transcribe"); got != 3 {
		t.Errorf("Transcribe calls = %d, want 3", got)
	}
	if n := rec.wakes.Load(); n != 1 {
		t.Errorf("wakes = %d, want 1", n)
	}
}

func TestChunkedDetector_CooldownSurvivesRestart(t *testing.T) {
	m := testMic(nil)
	rec := newWakeRecorder()
	transcriber := stt.NewMock("ok nova")

	d, _ := NewChunkedDetector(Deps{Config: fastConfig(), Mic: m, STT: transcriber, OnWake: rec.onWake})
	ctx := context.Background()

	d.Start(ctx)
	waitFor(t, rec.woke, "first wake")
	calls := transcriber.CallCount("Transcribe")

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	d.Stop()

	if n := rec.wakes.Load(); n != 1 {
		t.Errorf("wakes = %d, want 1 inside cooldown", n)
	}
	if got := transcriber.CallCount("Transcribe"); got != calls {
		t.Errorf("transcribed %d chunks during cooldown, want 0", got-calls)
	}
}

func TestChunkedDetector_TransientErrorRetries(t *testing.T) {
	m := testMic(nil)
	rec := newWakeRecorder()
	var n atomic.Int32
	transcriber := &stt.Mock{
		TranscribeFunc: func(ctx context.Context, wav []byte) (string, error) {
			if n.Add(1) == 1 {
				return "", fault.New(fault.NetworkFailure, "test", errors.New("reset"))
			}
			return "okay nova", nil
		},
	}

	d, _ := NewChunkedDetector(Deps{Config: fastConfig(), Mic: m, STT: transcriber, OnWake: rec.onWake, OnError: rec.onError})
	d.Start(context.Background())
	waitFor(t, rec.woke, "wake after retry")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errors) != 0 {
		t.Errorf("transient errors should not be reported, got %v", rec.errors)
	}
}

func TestChunkedDetector_PermissionDeniedEndsLoop(t *testing.T) {
	m := testMic(nil)
	rec := newWakeRecorder()
	transcriber := &stt.Mock{
		TranscribeFunc: func(ctx context.Context, wav []byte) (string, error) {
			return "", fault.ErrPermissionDenied
		},
	}

	d, _ := NewChunkedDetector(Deps{Config: fastConfig(), Mic: m, STT: transcriber, OnWake: rec.onWake, OnError: rec.onError})
	d.Start(context.Background())
	waitFor(t, rec.failed, "error report")

	if d.Running() {
		t.Error("detector should stop after permission failure")
	}
	rec.mu.Lock()
	err := rec.errors[0]
	rec.mu.Unlock()
	if !fault.Is(err, fault.PermissionDenied) {
		t.Errorf("reported error = %v, want permission denied", err)
	}
	waitUntil(t, func() bool { return m.Refs() == 0 }, "handle release")
}

func TestNewDetector_Config(t *testing.T) {
	custom := fastConfig()
	custom.Phrases = nil
	custom.ChunkDuration = 250 * time.Millisecond

	noChunk := fastConfig()
	noChunk.ChunkDuration = 0

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default phrases keep timings", cfg: custom},
		{name: "zero chunk duration", cfg: noChunk, wantErr: true},
		{name: "zero config", cfg: Config{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunked, err := NewChunkedDetector(Deps{Config: tt.cfg, Mic: testMic(nil), STT: stt.NewMock()})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewChunkedDetector() error = %v, wantErr %v", err, tt.wantErr)
			}
			continuous, err := NewContinuousDetector(Deps{Config: tt.cfg, Mic: testMic(nil), Recognizer: &stt.Mock{}})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewContinuousDetector() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			for _, cfg := range []Config{chunked.cfg, continuous.cfg} {
				if cfg.ChunkDuration != tt.cfg.ChunkDuration || cfg.Cooldown != tt.cfg.Cooldown {
					t.Errorf("timings = %v/%v, want configured %v/%v",
						cfg.ChunkDuration, cfg.Cooldown, tt.cfg.ChunkDuration, tt.cfg.Cooldown)
				}
				if len(cfg.Phrases) != len(DefaultPhrases) {
					t.Errorf("phrases = %q, want defaults", cfg.Phrases)
				}
			}
		})
	}
}

func TestChunkedDetector_StartAcquireFailure(t *testing.T) {
	m := testMic(fault.New(fault.PermissionDenied, "test", nil))
	d, _ := NewChunkedDetector(Deps{Config: fastConfig(), Mic: m, STT: stt.NewMock()})

	err := d.Start(context.Background())
	if !fault.Is(err, fault.PermissionDenied) {
		t.Errorf("Start() error = %v, want permission denied", err)
	}
	if d.Running() {
		t.Error("detector should not run after failed acquire")
	}
}

func TestChunkedDetector_StopIsIdempotent(t *testing.T) {
	m := testMic(nil)
	d, _ := NewChunkedDetector(Deps{Config: fastConfig(), Mic: m, STT: stt.NewMock("nothing")})

	d.Stop()
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if m.Refs() != 1 {
		t.Errorf("Refs() = %d, want 1", m.Refs())
	}
	d.Stop()
	d.Stop()
	waitUntil(t, func() bool { return m.Refs() == 0 }, "handle release")
	if m.Teardowns() != 1 {
		t.Errorf("Teardowns() = %d, want 1", m.Teardowns())
	}
}

func TestContinuousDetector_DedupesEmits(t *testing.T) {
	m := testMic(nil)
	rec := newWakeRecorder()
	recognizer := &stt.Mock{
		RecognizeFunc: func(ctx context.Context, audio <-chan audioio.AudioChunk, onResult func(stt.Result)) error {
			onResult(stt.Result{Text: "hey"})
			onResult(stt.Result{Text: "hey nova"})
			onResult(stt.Result{Text: "hey nova", Final: true})
			<-ctx.Done()
			return nil
		},
	}

	d, err := NewContinuousDetector(Deps{Config: fastConfig(), Mic: m, Recognizer: recognizer, OnWake: rec.onWake})
	if err != nil {
		t.Fatalf("NewContinuousDetector() error = %v", err)
	}
	d.Start(context.Background())
	waitFor(t, rec.woke, "wake")
	time.Sleep(20 * time.Millisecond)
	d.Stop()

	if n := rec.wakes.Load(); n != 1 {
		t.Errorf("wakes = %d, want 1", n)
	}
	waitUntil(t, func() bool { return m.Refs() == 0 }, "handle release")
}

func TestContinuousDetector_RestartsSession(t *testing.T) {
	m := testMic(nil)
	rec := newWakeRecorder()
	var sessions atomic.Int32
	recognizer := &stt.Mock{
		RecognizeFunc: func(ctx context.Context, audio <-chan audioio.AudioChunk, onResult func(stt.Result)) error {
			if sessions.Add(1) < 3 {
				return fault.New(fault.RecognizerFailure, "test", errors.New("dropped"))
			}
			onResult(stt.Result{Text: "ok nova", Final: true})
			<-ctx.Done()
			return nil
		},
	}

	d, _ := NewContinuousDetector(Deps{Config: fastConfig(), Mic: m, Recognizer: recognizer, OnWake: rec.onWake})
	d.Start(context.Background())
	waitFor(t, rec.woke, "wake after restarts")
	d.Stop()

	if got := recognizer.CallCount("Recognize"); got != 3 {
		t.Errorf("Recognize calls = %d, want 3", got)
	}
}

func TestSelect(t *testing.T) {
	probeErr := errors.New("no server")
	tests := []struct {
		name    string
		env     Env
		probe   error
		withRec bool
		want    Strategy
	}{
		{name: "host shell", env: Env{Runtime: RuntimeHostShell, RecognizerURL: "ws://x"}, withRec: true, want: StrategyChunked},
		{name: "no recognizer", env: Env{Runtime: "desktop"}, want: StrategyChunked},
		{name: "probe fails", env: Env{Runtime: "desktop"}, withRec: true, probe: probeErr, want: StrategyChunked},
		{name: "probe ok", env: Env{Runtime: "desktop"}, withRec: true, want: StrategyContinuous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := Deps{Config: fastConfig(), Mic: testMic(nil), STT: stt.NewMock()}
			var rec *stt.Mock
			if tt.withRec {
				probe := tt.probe
				rec = &stt.Mock{ProbeFunc: func(ctx context.Context) error { return probe }}
				deps.Recognizer = rec
			}

			d, err := Select(context.Background(), tt.env, deps)
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if d.Strategy() != tt.want {
				t.Errorf("Strategy() = %s, want %s", d.Strategy(), tt.want)
			}
			if tt.env.Runtime == RuntimeHostShell && rec.CallCount("Probe") != 0 {
				t.Error("host shell should not probe the recognizer")
			}
		})
	}
}
