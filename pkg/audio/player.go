// Package audio plays synthesized speech on the local output device.
package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-nova/internal/httpc"
	"github.com/teslashibe/go-nova/pkg/fault"
)

// RunFunc plays one audio file read from r and returns when playback ends.
type RunFunc func(ctx context.Context, r io.Reader) error

// Option configures a Player.
type Option func(*Player)

// WithBaseURL sets the root that relative audio URLs resolve against.
func WithBaseURL(base string) Option {
	return func(p *Player) {
		p.baseURL = base
	}
}

// WithRunner replaces the ffplay subprocess.
func WithRunner(run RunFunc) Option {
	return func(p *Player) {
		p.run = run
	}
}

// WithHTTPClient overrides the client used to fetch audio.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Player) {
		p.client = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Player) {
		p.logger = logger
	}
}

// Player fetches and plays audio files one at a time.
type Player struct {
	baseURL string
	client  *http.Client
	run     RunFunc
	logger  *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	playing bool

	plays atomic.Int64

	// Callbacks
	OnPlaybackStart func()
	OnPlaybackEnd   func()
}

// NewPlayer creates a player. Without WithRunner it pipes audio to ffplay.
func NewPlayer(opts ...Option) *Player {
	p := &Player{
		client: httpc.Client,
		run:    FFPlay,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "audio.player")
	return p
}

// FFPlay plays r with ffplay and waits for it to exit.
func FFPlay(ctx context.Context, r io.Reader) error {
	cmd := exec.CommandContext(ctx, "ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "-")
	cmd.Stdin = r
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fault.New(fault.KindOf(err), "audio.ffplay", err)
	}
	return nil
}

// Play fetches ref (absolute, or relative to the base URL) and plays it.
func (p *Player) Play(ctx context.Context, ref string) error {
	u, err := ResolveURL(p.baseURL, ref)
	if err != nil {
		return fault.New(fault.ProtocolParseError, "audio.resolve", err)
	}

	data, err := p.fetch(ctx, u)
	if err != nil {
		return err
	}
	return p.PlayAudio(ctx, data)
}

func (p *Player) fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fault.New(fault.ProtocolParseError, "audio.fetch", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fault.New(fault.NetworkFailure, "audio.fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fault.New(fault.NetworkFailure, "audio.fetch",
			fmt.Errorf("GET %s: status %d", u, resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.New(fault.NetworkFailure, "audio.fetch", err)
	}
	return data, nil
}

// PlayAudio plays an in-memory audio file and blocks until it finishes,
// ctx ends or Cancel is called.
func (p *Player) PlayAudio(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.playing = true
	p.mu.Unlock()

	p.plays.Add(1)
	if p.OnPlaybackStart != nil {
		p.OnPlaybackStart()
	}

	start := time.Now()
	err := p.run(ctx, bytes.NewReader(data))

	p.mu.Lock()
	p.playing = false
	p.cancel = nil
	p.mu.Unlock()

	if p.OnPlaybackEnd != nil {
		p.OnPlaybackEnd()
	}

	p.logger.Debug("playback finished", "bytes", len(data), "elapsed", time.Since(start), "error", err)
	return err
}

// Cancel stops any current playback immediately.
func (p *Player) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// IsPlaying returns whether audio is currently playing.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Plays returns how many playbacks have started.
func (p *Player) Plays() int64 {
	return p.plays.Load()
}

// ResolveURL resolves ref against base. Absolute refs are returned as is.
func ResolveURL(base, ref string) (string, error) {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	if r.IsAbs() {
		return r.String(), nil
	}
	if base == "" {
		return "", fmt.Errorf("relative audio url %q without a base url", ref)
	}
	b, err := url.Parse(strings.TrimRight(base, "/") + "/")
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
