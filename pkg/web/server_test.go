package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-nova/pkg/camera"
	"github.com/teslashibe/go-nova/pkg/chat"
	"github.com/teslashibe/go-nova/pkg/fault"
	"github.com/teslashibe/go-nova/pkg/voice"
)

type fakeVoice struct {
	mu        sync.Mutex
	status    voice.Status
	submitted []string
	stops     int

	SubmitFunc func(text string) error
	UnmuteFunc func(ctx context.Context) error
}

func (f *fakeVoice) Status() voice.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeVoice) Mute() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Muted = true
}

func (f *fakeVoice) Unmute(ctx context.Context) error {
	if f.UnmuteFunc != nil {
		if err := f.UnmuteFunc(ctx); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Muted = false
	return nil
}

func (f *fakeVoice) SubmitText(text string) error {
	if f.SubmitFunc != nil {
		if err := f.SubmitFunc(text); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, text)
	return nil
}

func (f *fakeVoice) StopResponse() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func newTestServer(v *fakeVoice) *Server {
	return NewServer(DefaultConfig(), Deps{
		Voice:  v,
		Camera: camera.NewManager(camera.DefaultConfig()),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "nova_wake_total 1\n")
		}),
	})
}

func do(t *testing.T, s *Server, method, path, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func TestServer_Status(t *testing.T) {
	v := &fakeVoice{status: voice.Status{Phase: voice.PhaseArmed, Strategy: "continuous"}}
	s := newTestServer(v)

	code, body := do(t, s, "GET", "/api/status", "")
	if code != 200 {
		t.Fatalf("Status = %d, want 200", code)
	}
	var st struct {
		Phase    string `json:"phase"`
		Strategy string `json:"strategy"`
	}
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		t.Fatalf("bad body %q: %v", body, err)
	}
	if st.Phase != "ARMED" || st.Strategy != "continuous" {
		t.Errorf("status = %+v", st)
	}
}

func TestServer_MuteUnmute(t *testing.T) {
	v := &fakeVoice{}
	s := newTestServer(v)

	if code, _ := do(t, s, "POST", "/api/mute", ""); code != 200 {
		t.Fatalf("mute status = %d", code)
	}
	if !v.Status().Muted {
		t.Error("expected muted")
	}
	if code, _ := do(t, s, "POST", "/api/unmute", ""); code != 200 {
		t.Fatalf("unmute status = %d", code)
	}
	if v.Status().Muted {
		t.Error("expected unmuted")
	}

	v.UnmuteFunc = func(context.Context) error {
		return fault.New(fault.PermissionDenied, "mic.open", errors.New("denied"))
	}
	code, body := do(t, s, "POST", "/api/unmute", "")
	if code != 403 {
		t.Errorf("denied unmute status = %d, want 403", code)
	}
	if !strings.Contains(body, "notice") {
		t.Errorf("body %q missing notice", body)
	}
}

func TestServer_Send(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		submit func(string) error
		want   int
	}{
		{name: "accepted", body: `{"text":" hello "}`, want: 202},
		{name: "empty", body: `{"text":"   "}`, want: 400},
		{name: "bad json", body: `{`, want: 400},
		{name: "busy", body: `{"text":"hi"}`, submit: func(string) error { return voice.ErrBusy }, want: 409},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &fakeVoice{SubmitFunc: tt.submit}
			s := newTestServer(v)
			code, body := do(t, s, "POST", "/api/send", tt.body)
			if code != tt.want {
				t.Errorf("Status = %d, want %d (%s)", code, tt.want, body)
			}
		})
	}

	v := &fakeVoice{}
	s := newTestServer(v)
	do(t, s, "POST", "/api/send", `{"text":" hello "}`)
	if len(v.submitted) != 1 || v.submitted[0] != "hello" {
		t.Errorf("submitted = %q", v.submitted)
	}
}

func TestServer_StopAndSpeak(t *testing.T) {
	v := &fakeVoice{}
	s := newTestServer(v)

	do(t, s, "POST", "/api/stop", "")
	if v.stops != 1 {
		t.Errorf("stops = %d, want 1", v.stops)
	}

	if code, _ := do(t, s, "POST", "/api/speak", `{"text":"hi"}`); code != 501 {
		t.Errorf("speak without OnSpeak = %d, want 501", code)
	}

	var spoken []string
	s.OnSpeak = func(ctx context.Context, text string) error {
		spoken = append(spoken, text)
		return nil
	}
	if code, _ := do(t, s, "POST", "/api/speak", `{"text":"hi"}`); code != 200 {
		t.Errorf("speak = %d, want 200", code)
	}
	if len(spoken) != 1 || spoken[0] != "hi" {
		t.Errorf("spoken = %q", spoken)
	}

	s.OnSpeak = func(context.Context, string) error {
		return fault.New(fault.NetworkFailure, "tts", errors.New("down"))
	}
	if code, _ := do(t, s, "POST", "/api/speak", `{"text":"hi"}`); code != 502 {
		t.Errorf("failed speak = %d, want 502", code)
	}
}

func TestServer_Camera(t *testing.T) {
	s := newTestServer(&fakeVoice{})

	code, body := do(t, s, "POST", "/api/camera", `{"preset":"low"}`)
	if code != 200 {
		t.Fatalf("Status = %d (%s)", code, body)
	}
	got := s.camera.GetConfig()
	if got.Width != 320 || got.Height != 240 {
		t.Errorf("config = %+v, want 320x240", got)
	}

	if code, _ := do(t, s, "POST", "/api/camera", `{"width":1}`); code != 400 {
		t.Errorf("invalid width = %d, want 400", code)
	}
	if code, body := do(t, s, "GET", "/api/camera/presets", ""); code != 200 || !strings.Contains(body, "720p") {
		t.Errorf("presets = %d %s", code, body)
	}
}

func TestServer_MetricsAndHealth(t *testing.T) {
	s := newTestServer(&fakeVoice{})

	if code, body := do(t, s, "GET", "/metrics", ""); code != 200 || !strings.Contains(body, "nova_wake_total") {
		t.Errorf("metrics = %d %q", code, body)
	}
	if code, _ := do(t, s, "GET", "/health", ""); code != 200 {
		t.Errorf("health = %d", code)
	}
}

func TestServer_WebsocketRequiresUpgrade(t *testing.T) {
	s := newTestServer(&fakeVoice{})
	for _, path := range []string{"/ws/status", "/ws/reply", "/ws/notices", "/ws/cursor"} {
		if code, _ := do(t, s, "GET", path, ""); code != 426 {
			t.Errorf("%s = %d, want 426", path, code)
		}
	}
}

func TestServer_Notices(t *testing.T) {
	s := newTestServer(&fakeVoice{})
	for i := 0; i < maxNotices+5; i++ {
		s.AddNotice("n")
	}
	s.AddNotice("I didn't catch that.")

	code, body := do(t, s, "GET", "/api/notices", "")
	if code != 200 {
		t.Fatalf("Status = %d", code)
	}
	var entries []NoticeEntry
	if err := json.Unmarshal([]byte(body), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != maxNotices {
		t.Errorf("len = %d, want %d", len(entries), maxNotices)
	}
	if entries[len(entries)-1].Message != "I didn't catch that." {
		t.Errorf("last = %+v", entries[len(entries)-1])
	}
}

func TestServer_PushesStatusChanges(t *testing.T) {
	v := &fakeVoice{}
	cfg := DefaultConfig()
	cfg.StatusInterval = 5 * time.Millisecond
	s := NewServer(cfg, Deps{Voice: v})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.statusHub.Run(ctx)
	go s.pushStatus(ctx)

	lastPhase := func() string {
		m, ok := s.statusHub.Last()
		if !ok {
			return ""
		}
		var env struct {
			Data struct {
				Phase string `json:"phase"`
			} `json:"data"`
		}
		json.Unmarshal(m.Data, &env)
		return env.Data.Phase
	}

	waitFor := func(want string) {
		t.Helper()
		deadline := time.Now().Add(time.Second)
		for lastPhase() != want {
			if time.Now().After(deadline) {
				t.Fatalf("phase = %q, want %q", lastPhase(), want)
			}
			time.Sleep(2 * time.Millisecond)
		}
	}

	waitFor("IDLE_LISTENING")
	v.mu.Lock()
	v.status.Phase = voice.PhaseResponding
	v.mu.Unlock()
	waitFor("RESPONDING")
}

func TestServer_PublishReply(t *testing.T) {
	s := newTestServer(&fakeVoice{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.replyHub.Run(ctx)

	s.PublishReply(chat.Reply{ExchangeID: "x", Text: "Hi", Final: true})

	deadline := time.Now().Add(time.Second)
	for {
		if m, ok := s.replyHub.Last(); ok {
			if !strings.Contains(string(m.Data), `"reply"`) {
				t.Errorf("message = %s", m.Data)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("reply never published")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
