// Package tts synthesizes speech for replies that arrive without audio.
//
// The Nova backend's /speak endpoint is the primary provider. When an OpenAI
// key is configured, OpenAI speech is chained behind it as a fallback:
//
//	backend, _ := tts.NewBackend(tts.WithBaseURL("http://127.0.0.1:8000"))
//	openai, _ := tts.NewOpenAI(tts.WithAPIKey(key))
//	provider, _ := tts.NewChain(backend, openai)
//
//	result, _ := provider.Synthesize(ctx, "Hello")
//	// result.Audio holds a complete WAV or MP3 file
package tts

import (
	"context"
	"time"
)

// Provider turns text into a playable audio file.
type Provider interface {
	// Synthesize converts text to audio, returning the complete file.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult is a complete synthesis result.
type AudioResult struct {
	// Audio is a self-describing file (container headers included) that a
	// player can decode without further metadata.
	Audio []byte

	Format AudioFormat

	// CharCount is the number of characters synthesized.
	CharCount int

	// Latency is the request round-trip time.
	Latency time.Duration
}

// AudioFormat describes the returned file.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
}

// Encoding is the container/codec of a result.
type Encoding string

const (
	EncodingWAV     Encoding = "wav"
	EncodingMP3     Encoding = "mp3"
	EncodingUnknown Encoding = ""
)

// EncodingFromContentType maps a response Content-Type to an Encoding.
func EncodingFromContentType(ct string) Encoding {
	switch ct {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return EncodingWAV
	case "audio/mpeg", "audio/mp3":
		return EncodingMP3
	default:
		return EncodingUnknown
	}
}
