package chat

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/teslashibe/go-nova/pkg/fault"
)

// Kind is a frame's event tag.
type Kind string

const (
	KindMeta     Kind = "meta"
	KindMessage  Kind = "message"
	KindTTS      Kind = "tts"
	KindTTSError Kind = "tts_error"
	KindDone     Kind = "done"
)

// Frame is one event of a chat stream.
type Frame struct {
	Event Kind
	Data  []byte
}

// Decoder reads frames from an event stream: "event:" and "data:" lines
// terminated by a blank line. A frame without an event line is a message.
type Decoder struct {
	r   *bufio.Reader
	err error
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next frame. At the end of the stream any unterminated
// trailing frame is returned first, then io.EOF.
func (d *Decoder) Next() (Frame, error) {
	if d.err != nil {
		return Frame{}, d.err
	}

	var (
		event   string
		data    [][]byte
		pending bool
	)
	build := func() Frame {
		kind := Kind(event)
		if kind == "" {
			kind = KindMessage
		}
		return Frame{Event: kind, Data: bytes.Join(data, []byte("\n"))}
	}

	for {
		line, err := d.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			d.err = err
			return Frame{}, err
		}
		eof := err != nil

		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if pending {
				if eof {
					d.err = io.EOF
				}
				return build(), nil
			}
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(line[len("event:"):])
			pending = true
		case strings.HasPrefix(line, "data:"):
			v := line[len("data:"):]
			v = strings.TrimPrefix(v, " ")
			data = append(data, []byte(v))
			pending = true
		default:
			data = append(data, []byte(line))
			pending = true
		}

		if eof {
			d.err = io.EOF
			if pending {
				return build(), nil
			}
			return Frame{}, io.EOF
		}
	}
}

// metaPayload is the data of a meta frame.
type metaPayload struct {
	ConversationID string `json:"conversation_id"`
}

// ConversationID extracts the id from a meta frame.
func (f Frame) ConversationID() (string, error) {
	var p metaPayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return "", fault.New(fault.ProtocolParseError, "chat.meta", err)
	}
	return p.ConversationID, nil
}

// Content returns the text carried by a message frame. A payload that is not
// a JSON object with a content field is returned verbatim.
func (f Frame) Content() string {
	var p struct {
		Content *string `json:"content"`
	}
	if json.Unmarshal(f.Data, &p) == nil && p.Content != nil {
		return *p.Content
	}
	var s string
	if json.Unmarshal(f.Data, &s) == nil {
		return s
	}
	return string(f.Data)
}

// AudioURL extracts the audio location from a tts frame.
func (f Frame) AudioURL() (string, error) {
	var p struct {
		AudioURL string `json:"audio_url"`
	}
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return "", fault.New(fault.ProtocolParseError, "chat.tts", err)
	}
	if p.AudioURL == "" {
		return "", fault.New(fault.ProtocolParseError, "chat.tts", errors.New("missing audio_url"))
	}
	return p.AudioURL, nil
}

// ErrorText returns the message of a tts_error frame.
func (f Frame) ErrorText() string {
	var p struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(f.Data, &p) == nil {
		for _, s := range []string{p.Error, p.Detail, p.Message} {
			if s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(f.Data))
}
