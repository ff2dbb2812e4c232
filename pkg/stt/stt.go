// Package stt provides speech-to-text for the voice loop.
//
// Two shapes are supported. A Provider transcribes one finished recording
// (the Nova backend's /stt endpoint). A Recognizer consumes live audio and
// reports interim and final transcripts as they arrive (a Vosk server over
// websocket).
//
// Example usage:
//
//	provider := stt.NewBackend(stt.WithBaseURL("http://127.0.0.1:8000"))
//	text, _ := provider.Transcribe(ctx, clip.WAV())
package stt

import (
	"context"

	"github.com/teslashibe/go-nova/pkg/audioio"
)

// Provider transcribes a complete recording.
type Provider interface {
	// Transcribe returns the text spoken in a WAV-encoded recording.
	// An empty string with a nil error means nothing intelligible was heard.
	Transcribe(ctx context.Context, wav []byte) (string, error)

	// Name identifies the provider in logs and errors.
	Name() string
}

// Result is one recognizer hypothesis.
type Result struct {
	Text  string
	Final bool
}

// Recognizer streams live audio to a continuous recognition service.
type Recognizer interface {
	// Recognize feeds audio until ctx ends, audio closes, or the service ends
	// the session. onResult is called for every interim and final transcript.
	Recognize(ctx context.Context, audio <-chan audioio.AudioChunk, onResult func(Result)) error

	// Probe checks that the service is reachable.
	Probe(ctx context.Context) error
}
