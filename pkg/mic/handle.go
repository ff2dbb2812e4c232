package mic

import (
	"context"
	"time"

	"github.com/teslashibe/go-nova/pkg/audioio"
)

// Handle is one holder's grant on the shared stream.
type Handle struct {
	id      string
	manager *Manager
	ch      chan audioio.AudioChunk
	dead    bool // guarded by manager.mu
}

// ID returns the handle's identifier.
func (h *Handle) ID() string {
	return h.id
}

// Chunks returns the handle's slice subscription.
// The channel closes on Release or when the stream is lost.
func (h *Handle) Chunks() <-chan audioio.AudioChunk {
	return h.ch
}

// Release returns the handle. Calling it more than once is a no-op.
func (h *Handle) Release() {
	h.manager.release(h)
}

// Record collects d worth of audio starting from the next slice.
func (h *Handle) Record(ctx context.Context, d time.Duration) (*audioio.Clip, error) {
	return h.RecordUntil(ctx, d, nil)
}

// RecordUntil collects audio until max is reached, until done returns true for
// a slice, or until ctx ends. Slices buffered before the call are discarded.
// On cancellation the partial clip is returned with the context error.
func (h *Handle) RecordUntil(ctx context.Context, max time.Duration, done func(audioio.AudioChunk) bool) (*audioio.Clip, error) {
	h.drain()

	clip := &audioio.Clip{}
	for clip.Duration() < max {
		select {
		case <-ctx.Done():
			return clip, ctx.Err()
		case chunk, ok := <-h.ch:
			if !ok {
				return clip, ErrStreamLost
			}
			clip.Append(chunk)
			if done != nil && done(chunk) {
				return clip, nil
			}
		}
	}
	return clip, nil
}

func (h *Handle) drain() {
	for {
		select {
		case _, ok := <-h.ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
