package mic

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-nova/pkg/audioio"
	"github.com/teslashibe/go-nova/pkg/fault"
)

// mockOpener hands out mock sources and remembers them.
type mockOpener struct {
	mu      sync.Mutex
	calls   atomic.Int64
	sources []*audioio.MockSource
	err     error
	delay   time.Duration
}

func (o *mockOpener) open(ctx context.Context) (audioio.Source, error) {
	o.calls.Add(1)
	if o.delay > 0 {
		time.Sleep(o.delay)
	}
	if o.err != nil {
		return nil, o.err
	}
	cfg := audioio.DefaultConfig()
	cfg.BufferDuration = 5 * time.Millisecond
	src := audioio.NewMockSource(cfg, nil, audioio.WithSineWave(440, 0.3))
	if err := src.Start(context.Background()); err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.sources = append(o.sources, src)
	o.mu.Unlock()
	return src, nil
}

func (o *mockOpener) last() *audioio.MockSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sources) == 0 {
		return nil
	}
	return o.sources[len(o.sources)-1]
}

func TestManager_SharedStream(t *testing.T) {
	op := &mockOpener{delay: 20 * time.Millisecond}
	m := NewManager(op.open, nil)

	var wg sync.WaitGroup
	handles := make([]*Handle, 5)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := m.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	if got := op.calls.Load(); got != 1 {
		t.Fatalf("expected opener to run once, ran %d times", got)
	}
	if m.Refs() != 5 {
		t.Fatalf("expected 5 refs, got %d", m.Refs())
	}

	for i, h := range handles {
		h.Release()
		if i < len(handles)-1 && !m.Active() {
			t.Fatalf("stream closed with %d handles outstanding", len(handles)-1-i)
		}
	}

	// Releasing again must not tear down twice.
	handles[0].Release()
	handles[4].Release()

	if m.Active() {
		t.Error("stream still active after last release")
	}
	if m.Teardowns() != 1 {
		t.Errorf("expected exactly 1 teardown, got %d", m.Teardowns())
	}
	if src := op.last(); src.Stops() != 1 {
		t.Errorf("expected source stopped once, got %d", src.Stops())
	}
}

func TestManager_RandomInterleaving(t *testing.T) {
	op := &mockOpener{}
	m := NewManager(op.open, nil)
	rng := rand.New(rand.NewSource(42))

	var live []*Handle
	var transitionsUp int64

	for step := 0; step < 300; step++ {
		if len(live) == 0 || rng.Intn(2) == 0 {
			if len(live) == 0 {
				transitionsUp++
			}
			h, err := m.Acquire(context.Background())
			if err != nil {
				t.Fatalf("step %d: Acquire failed: %v", step, err)
			}
			live = append(live, h)
		} else {
			i := rng.Intn(len(live))
			live[i].Release()
			live = append(live[:i], live[i+1:]...)
		}

		if m.Refs() != len(live) {
			t.Fatalf("step %d: refs=%d, want %d", step, m.Refs(), len(live))
		}
		if m.Active() != (len(live) > 0) {
			t.Fatalf("step %d: active=%v with %d handles", step, m.Active(), len(live))
		}
		if m.Opens() != transitionsUp {
			t.Fatalf("step %d: opens=%d, want %d", step, m.Opens(), transitionsUp)
		}
	}

	for _, h := range live {
		h.Release()
	}
	if m.Opens() != m.Teardowns() {
		t.Errorf("opens=%d teardowns=%d, want equal", m.Opens(), m.Teardowns())
	}
}

func TestManager_OpenFailure(t *testing.T) {
	op := &mockOpener{err: fault.New(fault.PermissionDenied, "test", errors.New("denied"))}
	m := NewManager(op.open, nil)

	if _, err := m.Acquire(context.Background()); !errors.Is(err, fault.ErrPermissionDenied) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if m.Refs() != 0 || m.Active() {
		t.Fatal("failed open must leave the manager idle")
	}

	op.err = nil
	h, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("retry Acquire failed: %v", err)
	}
	defer h.Release()
	if op.calls.Load() != 2 {
		t.Errorf("expected opener to be retried, calls=%d", op.calls.Load())
	}
}

func TestHandle_RecordFansOut(t *testing.T) {
	op := &mockOpener{}
	m := NewManager(op.open, nil)

	a, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Release()
	b, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var wg sync.WaitGroup
	clips := make([]*audioio.Clip, 2)
	for i, h := range []*Handle{a, b} {
		wg.Add(1)
		go func(i int, h *Handle) {
			defer wg.Done()
			clip, err := h.Record(ctx, 30*time.Millisecond)
			if err != nil {
				t.Errorf("Record failed: %v", err)
				return
			}
			clips[i] = clip
		}(i, h)
	}
	wg.Wait()

	for i, clip := range clips {
		if clip == nil || clip.Duration() < 30*time.Millisecond {
			t.Errorf("handle %d recorded too little audio", i)
		}
	}
}

func TestHandle_RecordUntil(t *testing.T) {
	op := &mockOpener{}
	m := NewManager(op.open, nil)
	h, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer h.Release()

	slices := 0
	clip, err := h.RecordUntil(context.Background(), time.Second, func(audioio.AudioChunk) bool {
		slices++
		return slices == 2
	})
	if err != nil {
		t.Fatalf("RecordUntil failed: %v", err)
	}
	if clip.Duration() != 10*time.Millisecond {
		t.Errorf("expected two 5ms slices, got %v", clip.Duration())
	}
}

func TestManager_StreamLost(t *testing.T) {
	op := &mockOpener{}
	m := NewManager(op.open, nil)
	h, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	op.last().Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := h.Record(ctx, 500*time.Millisecond); !errors.Is(err, ErrStreamLost) {
		t.Fatalf("expected ErrStreamLost, got %v", err)
	}

	if _, err := m.Acquire(context.Background()); !errors.Is(err, ErrStreamLost) {
		t.Errorf("expected Acquire on a lost stream to fail, got %v", err)
	}

	h.Release()
	if m.Active() {
		t.Error("expected teardown after releasing the last handle")
	}

	h2, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("expected reopen after teardown, got %v", err)
	}
	h2.Release()
}

// slowCloseSource holds the device until Close returns.
type slowCloseSource struct {
	*audioio.MockSource
	live  *atomic.Int32
	delay time.Duration
}

func (s *slowCloseSource) Close() error {
	time.Sleep(s.delay)
	err := s.MockSource.Close()
	s.live.Add(-1)
	return err
}

func TestManager_ReopenWaitsForTeardown(t *testing.T) {
	var live atomic.Int32
	var opens atomic.Int32
	m := NewManager(func(ctx context.Context) (audioio.Source, error) {
		opens.Add(1)
		if live.Load() > 0 {
			return nil, fault.New(fault.DeviceUnavailable, "open", errors.New("device busy"))
		}
		cfg := audioio.DefaultConfig()
		cfg.BufferDuration = 5 * time.Millisecond
		src := audioio.NewMockSource(cfg, nil)
		if err := src.Start(context.Background()); err != nil {
			return nil, err
		}
		live.Add(1)
		return &slowCloseSource{MockSource: src, live: &live, delay: 50 * time.Millisecond}, nil
	}, nil)

	h1, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	released := make(chan struct{})
	go func() {
		h1.Release()
		close(released)
	}()
	deadline := time.Now().Add(time.Second)
	for m.Active() {
		if time.Now().After(deadline) {
			t.Fatal("stream never detached")
		}
		time.Sleep(time.Millisecond)
	}

	h2, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire during teardown: %v", err)
	}
	defer h2.Release()
	<-released

	if got := opens.Load(); got != 2 {
		t.Errorf("opener called %d times, want 2", got)
	}
	if m.Opens() != 2 || m.Teardowns() != 1 {
		t.Errorf("opens=%d teardowns=%d", m.Opens(), m.Teardowns())
	}
}
