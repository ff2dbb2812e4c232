package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-nova/pkg/audioio"
	"github.com/teslashibe/go-nova/pkg/fault"
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 5 * time.Second
	eofWait          = 2 * time.Second
)

// VoskRecognizer streams PCM16 to a Vosk-protocol websocket server.
//
// The session opens with {"config":{"sample_rate":N}}, continues with binary
// audio frames and closes with {"eof":1}. The server answers each frame with
// either {"partial":"..."} or {"text":"..."}.
type VoskRecognizer struct {
	config *Config
	logger *slog.Logger
	dialer websocket.Dialer
}

// NewVoskRecognizer creates a recognizer for cfg.RecognizerURL.
func NewVoskRecognizer(opts ...Option) (*VoskRecognizer, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.RecognizerURL == "" {
		return nil, ErrNoBaseURL
	}

	return &VoskRecognizer{
		config: cfg,
		logger: cfg.Logger.With("component", "stt.vosk"),
		dialer: websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}, nil
}

type voskMessage struct {
	Partial *string `json:"partial"`
	Text    *string `json:"text"`
}

func (v *VoskRecognizer) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := v.dialer.DialContext(ctx, v.config.RecognizerURL, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fault.New(fault.RecognizerFailure, "stt.vosk.dial", err)
	}
	return conn, nil
}

// Probe opens and immediately closes a session.
func (v *VoskRecognizer) Probe(ctx context.Context) error {
	conn, err := v.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, []byte(`{"eof" : 1}`))
}

// Recognize runs one recognition session.
func (v *VoskRecognizer) Recognize(ctx context.Context, audio <-chan audioio.AudioChunk, onResult func(Result)) error {
	conn, err := v.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	config := map[string]any{
		"config": map[string]any{"sample_rate": v.config.SampleRate},
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(config); err != nil {
		return fault.New(fault.RecognizerFailure, "stt.vosk.config", err)
	}

	readDone := make(chan error, 1)
	go func() {
		readDone <- v.readLoop(conn, onResult)
	}()

	finish := func() error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"eof" : 1}`)); err != nil {
			return nil
		}
		select {
		case <-readDone:
		case <-time.After(eofWait):
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return finish()
		case err := <-readDone:
			return fault.New(fault.RecognizerFailure, "stt.vosk.read", err)
		case chunk, ok := <-audio:
			if !ok {
				return finish()
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk.Bytes()); err != nil {
				return fault.New(fault.RecognizerFailure, "stt.vosk.write", err)
			}
		}
	}
}

// readLoop reports transcripts until the connection ends.
func (v *VoskRecognizer) readLoop(conn *websocket.Conn, onResult func(Result)) error {
	var lastPartial string
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("session closed by server")
			}
			return err
		}

		var msg voskMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			v.logger.Debug("skipping malformed message", "error", err)
			continue
		}

		switch {
		case msg.Text != nil:
			lastPartial = ""
			if *msg.Text != "" {
				onResult(Result{Text: *msg.Text, Final: true})
			}
		case msg.Partial != nil:
			if *msg.Partial != "" && *msg.Partial != lastPartial {
				lastPartial = *msg.Partial
				onResult(Result{Text: *msg.Partial})
			}
		}
	}
}

var _ Recognizer = (*VoskRecognizer)(nil)
