package audioio

import (
	"bytes"
	"encoding/binary"
	"time"
)

// Clip is a contiguous recording assembled from slices.
type Clip struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Append adds a slice to the clip, adopting its format on first use.
func (c *Clip) Append(chunk AudioChunk) {
	if c.SampleRate == 0 {
		c.SampleRate = chunk.SampleRate
		c.Channels = chunk.Channels
	}
	c.Samples = append(c.Samples, chunk.Samples...)
}

// Duration returns the clip length.
func (c *Clip) Duration() time.Duration {
	chunk := AudioChunk{Samples: c.Samples, SampleRate: c.SampleRate, Channels: c.Channels}
	return chunk.Duration()
}

// Empty reports whether the clip has no samples.
func (c *Clip) Empty() bool {
	return len(c.Samples) == 0
}

// WAV encodes the clip as a 16-bit PCM RIFF/WAVE file.
func (c *Clip) WAV() []byte {
	return EncodeWAV(c.Samples, c.SampleRate, c.Channels)
}

// EncodeWAV wraps PCM16 samples in a canonical 44-byte WAV header.
func EncodeWAV(samples []int16, sampleRate, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	dataSize := len(samples) * 2
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	binary.Write(buf, binary.LittleEndian, samples)

	return buf.Bytes()
}
