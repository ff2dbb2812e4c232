package chat

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/teslashibe/go-nova/pkg/fault"
)

func readAll(t *testing.T, stream string) []Frame {
	t.Helper()
	dec := NewDecoder(strings.NewReader(stream))
	var frames []Frame
	for {
		f, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return frames
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		frames = append(frames, f)
	}
}

func TestDecoder(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   []Frame
	}{
		{
			name:   "backend sequence",
			stream: "event: meta\ndata: {\"conversation_id\":\"abc\"}\n\nevent: message\ndata: {\"content\":\"Hi\"}\n\nevent: done\ndata: {}\n\n",
			want: []Frame{
				{Event: KindMeta, Data: []byte(`{"conversation_id":"abc"}`)},
				{Event: KindMessage, Data: []byte(`{"content":"Hi"}`)},
				{Event: KindDone, Data: []byte(`{}`)},
			},
		},
		{
			name:   "missing event is a message",
			stream: "data: {\"content\":\"x\"}\n\n",
			want:   []Frame{{Event: KindMessage, Data: []byte(`{"content":"x"}`)}},
		},
		{
			name:   "comments and extra blank lines",
			stream: ": keepalive\n\n\nevent: tts\ndata: {\"audio_url\":\"/tts/1\"}\n\n",
			want:   []Frame{{Event: KindTTS, Data: []byte(`{"audio_url":"/tts/1"}`)}},
		},
		{
			name:   "multi-line data",
			stream: "event: message\ndata: one\ndata: two\n\n",
			want:   []Frame{{Event: KindMessage, Data: []byte("one\ntwo")}},
		},
		{
			name:   "crlf line endings",
			stream: "event: message\r\ndata: hi\r\n\r\n",
			want:   []Frame{{Event: KindMessage, Data: []byte("hi")}},
		},
		{
			name:   "trailing unterminated frame",
			stream: "event: message\ndata: a\n\nevent: message\ndata: b",
			want: []Frame{
				{Event: KindMessage, Data: []byte("a")},
				{Event: KindMessage, Data: []byte("b")},
			},
		},
		{
			name:   "empty stream",
			stream: "",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readAll(t, tt.stream)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d frames, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i].Event != tt.want[i].Event || string(got[i].Data) != string(tt.want[i].Data) {
					t.Errorf("frame %d = {%s %q}, want {%s %q}",
						i, got[i].Event, got[i].Data, tt.want[i].Event, tt.want[i].Data)
				}
			}
		})
	}
}

func TestDecoderStaysAtEOF(t *testing.T) {
	dec := NewDecoder(strings.NewReader("data: x"))
	if _, err := dec.Next(); err != nil {
		t.Fatalf("first Next() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := dec.Next(); !errors.Is(err, io.EOF) {
			t.Errorf("Next() error = %v, want io.EOF", err)
		}
	}
}

func TestFrameContent(t *testing.T) {
	tests := []struct {
		data string
		want string
	}{
		{`{"content":"Hello"}`, "Hello"},
		{`{"content":""}`, ""},
		{`"quoted"`, "quoted"},
		{`plain text`, "plain text"},
		{`{"other":1}`, `{"other":1}`},
	}
	for _, tt := range tests {
		if got := (Frame{Data: []byte(tt.data)}).Content(); got != tt.want {
			t.Errorf("Content(%s) = %q, want %q", tt.data, got, tt.want)
		}
	}
}

func TestFramePayloads(t *testing.T) {
	id, err := Frame{Event: KindMeta, Data: []byte(`{"conversation_id":"c1"}`)}.ConversationID()
	if err != nil || id != "c1" {
		t.Errorf("ConversationID() = %q, %v", id, err)
	}

	if _, err := (Frame{Event: KindMeta, Data: []byte(`nope`)}).ConversationID(); !fault.Is(err, fault.ProtocolParseError) {
		t.Errorf("bad meta error = %v, want ProtocolParseError", err)
	}

	url, err := Frame{Event: KindTTS, Data: []byte(`{"audio_url":"/tts/9"}`)}.AudioURL()
	if err != nil || url != "/tts/9" {
		t.Errorf("AudioURL() = %q, %v", url, err)
	}
	if _, err := (Frame{Event: KindTTS, Data: []byte(`{}`)}).AudioURL(); !fault.Is(err, fault.ProtocolParseError) {
		t.Errorf("missing audio_url error = %v, want ProtocolParseError", err)
	}

	if got := (Frame{Data: []byte(`{"error":"quota"}`)}).ErrorText(); got != "quota" {
		t.Errorf("ErrorText() = %q", got)
	}
	if got := (Frame{Data: []byte(`engine down`)}).ErrorText(); got != "engine down" {
		t.Errorf("ErrorText() = %q", got)
	}
}
