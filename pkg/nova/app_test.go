package nova

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-nova/internal/config"
	"github.com/teslashibe/go-nova/pkg/audioio"
	"github.com/teslashibe/go-nova/pkg/wake"
)

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.BackendURL = ""
	if _, err := New(cfg, nil); err == nil {
		t.Error("expected error for missing backend URL")
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	var health, transcribes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health.Add(1)
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/stt", func(w http.ResponseWriter, r *http.Request) {
		transcribes.Add(1)
		w.Write([]byte(`{"text":""}`))
	})
	backend := httptest.NewServer(mux)
	defer backend.Close()

	cfg := config.Default()
	cfg.BackendURL = backend.URL
	cfg.Runtime = wake.RuntimeHostShell
	cfg.Audio.Backend = audioio.BackendMock
	cfg.Gesture.Enabled = false
	cfg.Web.Addr = "127.0.0.1:0"
	cfg.Wake.ChunkDuration = 100 * time.Millisecond
	cfg.Voice.ResumePoll = 10 * time.Millisecond

	app, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := app.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer app.Shutdown()

	if health.Load() != 1 {
		t.Errorf("health probes = %d, want 1", health.Load())
	}
	if app.detector.Strategy() != wake.StrategyChunked {
		t.Errorf("strategy = %s, want chunked", app.detector.Strategy())
	}

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for transcribes.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("wake detection never transcribed; status = %+v", app.controller.Status())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if st := app.controller.Status(); st.Muted {
		t.Errorf("status = %+v, want unmuted", st)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	deadline = time.Now().Add(2 * time.Second)
	for app.mic.Refs() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("mic refs after shutdown = %d, want 0", app.mic.Refs())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
