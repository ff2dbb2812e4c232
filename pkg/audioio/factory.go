package audioio

import (
	"fmt"
	"log/slog"
	"os/exec"
)

// NewSource creates a new audio source with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto || backend == "" {
		backend = BackendExec
	}

	logger.Debug("creating audio source",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendExec:
		return newExecSource(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// AvailableBackends reports the backends usable on this machine.
func AvailableBackends(cfg Config) []Backend {
	backends := []Backend{BackendMock}
	tool := cfg.Tool
	if tool == "" {
		tool = defaultTool()
	}
	if _, err := exec.LookPath(tool); err == nil {
		backends = append(backends, BackendExec)
	}
	return backends
}
