package audioio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-nova/pkg/fault"
)

// startupTimeout bounds how long Start waits for the first slice.
const startupTimeout = 3 * time.Second

// ExecSource captures audio by running a capture tool and reading raw PCM16
// from its stdout.
type ExecSource struct {
	cfg    Config
	logger *slog.Logger
	tool   string
	args   []string

	mu       sync.Mutex
	running  bool
	closed   bool
	cmd      *exec.Cmd
	streamCh chan AudioChunk
	stderr   *tailBuffer

	// Stats
	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// newExecSource resolves the capture tool and builds its argument list.
func newExecSource(cfg Config, logger *slog.Logger) (*ExecSource, error) {
	tool := cfg.Tool
	if tool == "" {
		tool = defaultTool()
	}
	path, err := exec.LookPath(tool)
	if err != nil {
		return nil, fault.New(fault.DeviceUnavailable, "audioio.exec", err)
	}

	s := &ExecSource{
		cfg:      cfg,
		logger:   logger.With("component", "audioio.exec"),
		tool:     path,
		args:     captureArgs(tool, cfg),
		streamCh: make(chan AudioChunk, 16),
	}
	return s, nil
}

func defaultTool() string {
	if runtime.GOOS == "linux" {
		return "arecord"
	}
	return "ffmpeg"
}

// captureArgs returns the command line that makes tool emit raw mono PCM16 on stdout.
func captureArgs(tool string, cfg Config) []string {
	rate := strconv.Itoa(cfg.SampleRate)
	ch := strconv.Itoa(cfg.Channels)

	if strings.HasSuffix(tool, "arecord") {
		device := cfg.Device
		if device == "" {
			device = "default"
		}
		return []string{"-q", "-D", device, "-f", "S16_LE", "-r", rate, "-c", ch, "-t", "raw"}
	}

	format, device := "alsa", cfg.Device
	switch runtime.GOOS {
	case "darwin":
		format = "avfoundation"
		if device == "" {
			device = ":0"
		}
	case "windows":
		format = "dshow"
		if device == "" {
			device = "audio=default"
		}
	default:
		if device == "" {
			device = "default"
		}
	}
	return []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-f", format, "-i", device,
		"-ac", ch, "-ar", rate, "-f", "s16le", "-",
	}
}

// Start launches the capture tool and waits for the first slice so that
// permission and device errors surface here rather than mid-stream.
func (s *ExecSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return io.ErrClosedPipe
	}
	if s.running {
		s.mu.Unlock()
		return nil
	}

	cmd := exec.Command(s.tool, s.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.mu.Unlock()
		return fault.New(fault.DeviceUnavailable, "audioio.exec", fmt.Errorf("stdout pipe: %w", err))
	}
	s.stderr = &tailBuffer{max: 4096}
	cmd.Stderr = s.stderr

	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return ClassifyCaptureError("", err)
	}

	s.cmd = cmd
	s.running = true
	s.streamCh = make(chan AudioChunk, 16)
	ready := make(chan error, 1)
	go s.readLoop(stdout, s.streamCh, ready)
	s.mu.Unlock()

	timer := time.NewTimer(startupTimeout)
	defer timer.Stop()

	select {
	case err := <-ready:
		if err != nil {
			s.Stop()
			return err
		}
	case <-timer.C:
		s.Stop()
		return fault.New(fault.DeviceUnavailable, "audioio.exec", errors.New("no audio from capture tool"))
	case <-ctx.Done():
		s.Stop()
		return ctx.Err()
	}

	s.logger.Info("capture started",
		"tool", s.tool,
		"sample_rate", s.cfg.SampleRate,
		"slice_ms", s.cfg.BufferDuration.Milliseconds(),
	)
	return nil
}

// readLoop owns streamCh and closes it when the tool's stdout ends.
func (s *ExecSource) readLoop(stdout io.Reader, out chan AudioChunk, ready chan<- error) {
	defer close(out)

	buf := make([]byte, s.cfg.BufferBytes())
	first := true
	for {
		_, err := io.ReadFull(stdout, buf)
		if err != nil {
			if first {
				// Let the process finish writing stderr before classifying.
				waitErr := s.wait()
				ready <- ClassifyCaptureError(s.stderr.String(), errors.Join(err, waitErr))
				return
			}
			_ = s.wait()
			return
		}
		if first {
			first = false
			ready <- nil
		}

		var chunk AudioChunk
		chunk.FromBytes(buf, s.cfg.SampleRate, s.cfg.Channels)
		select {
		case out <- chunk:
			s.chunksRead.Add(1)
			s.samplesRead.Add(int64(len(chunk.Samples)))
		default:
			s.overruns.Add(1)
			s.logger.Debug("capture buffer full, dropping slice")
		}
	}
}

func (s *ExecSource) wait() error {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil {
		return nil
	}
	return cmd.Wait()
}

// Stop kills the capture tool. The stream channel closes once the reader drains.
func (s *ExecSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.logger.Info("capture stopped")
	return nil
}

// Read reads the next audio chunk.
func (s *ExecSource) Read(ctx context.Context) (AudioChunk, error) {
	s.mu.Lock()
	ch := s.streamCh
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the audio chunk channel.
func (s *ExecSource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *ExecSource) Config() Config {
	return s.cfg
}

// Name returns "exec".
func (s *ExecSource) Name() string {
	return "exec"
}

// Close releases resources.
func (s *ExecSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Stop()
}

// Stats returns source statistics.
func (s *ExecSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "exec",
	}
}

var _ SourceWithStats = (*ExecSource)(nil)

// ClassifyCaptureError maps capture tool output onto fault kinds.
func ClassifyCaptureError(stderr string, err error) error {
	msg := strings.ToLower(stderr)
	switch {
	case strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "operation not permitted"),
		strings.Contains(msg, "not authorized"),
		strings.Contains(msg, "not permitted to access"):
		return fault.New(fault.PermissionDenied, "audioio.exec", withStderr(err, stderr))
	default:
		return fault.New(fault.DeviceUnavailable, "audioio.exec", withStderr(err, stderr))
	}
}

func withStderr(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return err
	}
	if err == nil {
		return errors.New(stderr)
	}
	return fmt.Errorf("%w: %s", err, stderr)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
