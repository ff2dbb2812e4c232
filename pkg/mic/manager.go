// Package mic owns the single microphone capture stream.
//
// The stream is opened when the first handle is acquired and closed when the
// last handle is released. Holders never see the audioio.Source itself; they
// read audio through their Handle, which receives a copy of every slice.
package mic

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/teslashibe/go-nova/pkg/audioio"
	"github.com/teslashibe/go-nova/pkg/fault"
)

// subscriptionDepth is the number of slices buffered per handle.
const subscriptionDepth = 64

// ErrStreamLost is returned when the capture stream ends while handles are live.
var ErrStreamLost = fault.New(fault.DeviceUnavailable, "mic", errors.New("capture stream ended"))

// Opener opens and starts a capture source.
type Opener func(ctx context.Context) (audioio.Source, error)

// SourceOpener returns an Opener that builds a source from cfg and starts it.
func SourceOpener(cfg audioio.Config, logger *slog.Logger) Opener {
	return func(ctx context.Context) (audioio.Source, error) {
		src, err := audioio.NewSource(cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := src.Start(ctx); err != nil {
			src.Close()
			return nil, err
		}
		return src, nil
	}
}

// Manager reference-counts access to the capture stream.
type Manager struct {
	open   Opener
	logger *slog.Logger

	mu      sync.Mutex
	refs    int
	src     audioio.Source
	lost    bool
	opening chan struct{}
	closing chan struct{}
	handles map[*Handle]struct{}

	opens     atomic.Int64
	teardowns atomic.Int64
}

// NewManager creates a manager that opens the stream with open.
func NewManager(open Opener, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		open:    open,
		logger:  logger.With("component", "mic.manager"),
		handles: make(map[*Handle]struct{}),
	}
}

// Acquire returns a handle over the shared stream, opening it if this is the
// first outstanding handle. Concurrent first acquisitions share one open,
// and an open never overlaps the teardown of the previous stream.
func (m *Manager) Acquire(ctx context.Context) (*Handle, error) {
	m.mu.Lock()
	for m.opening != nil || m.closing != nil {
		wait := m.opening
		if wait == nil {
			wait = m.closing
		}
		m.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		m.mu.Lock()
	}

	if m.src == nil {
		m.opening = make(chan struct{})
		m.mu.Unlock()

		src, err := m.open(ctx)

		m.mu.Lock()
		close(m.opening)
		m.opening = nil
		if err != nil {
			m.mu.Unlock()
			m.logger.Warn("open failed", "error", err, "kind", fault.KindOf(err))
			return nil, err
		}
		m.src = src
		m.lost = false
		m.opens.Add(1)
		go m.pump(src)
		m.logger.Info("stream opened", "backend", src.Name())
	}

	if m.lost {
		m.mu.Unlock()
		return nil, ErrStreamLost
	}

	h := &Handle{
		id:      uuid.NewString(),
		manager: m,
		ch:      make(chan audioio.AudioChunk, subscriptionDepth),
	}
	m.handles[h] = struct{}{}
	m.refs++
	refs := m.refs
	m.mu.Unlock()

	m.logger.Debug("handle acquired", "handle", h.id, "refs", refs)
	return h, nil
}

// release drops h. The stream is torn down when the count reaches zero.
func (m *Manager) release(h *Handle) {
	m.mu.Lock()
	if _, ok := m.handles[h]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.handles, h)
	if !h.dead {
		h.dead = true
		close(h.ch)
	}
	m.refs--
	refs := m.refs

	var src audioio.Source
	if refs == 0 && m.src != nil {
		src = m.src
		m.src = nil
		m.lost = false
		m.closing = make(chan struct{})
	}
	m.mu.Unlock()

	m.logger.Debug("handle released", "handle", h.id, "refs", refs)

	if src != nil {
		src.Stop()
		src.Close()
		m.teardowns.Add(1)

		m.mu.Lock()
		close(m.closing)
		m.closing = nil
		m.mu.Unlock()
		m.logger.Info("stream closed")
	}
}

// pump fans slices out to every live handle. A full handle drops its oldest slice.
func (m *Manager) pump(src audioio.Source) {
	for chunk := range src.Stream() {
		m.mu.Lock()
		for h := range m.handles {
			if h.dead {
				continue
			}
			select {
			case h.ch <- chunk:
			default:
				select {
				case <-h.ch:
				default:
				}
				select {
				case h.ch <- chunk:
				default:
				}
			}
		}
		m.mu.Unlock()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.src != src {
		return
	}
	m.lost = true
	for h := range m.handles {
		if !h.dead {
			h.dead = true
			close(h.ch)
		}
	}
	m.logger.Warn("capture stream ended with live handles", "refs", m.refs)
}

// Refs returns the number of outstanding handles.
func (m *Manager) Refs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs
}

// Active reports whether the stream is open.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.src != nil
}

// Lost reports whether the stream ended while handles were still live.
func (m *Manager) Lost() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lost
}

// Opens returns how many times the stream has been opened.
func (m *Manager) Opens() int64 {
	return m.opens.Load()
}

// Teardowns returns how many times the stream has been closed.
func (m *Manager) Teardowns() int64 {
	return m.teardowns.Load()
}
