// Package hub fans dashboard events out to websocket clients.
//
// Each Hub carries one kind of event (status, reply, cursor). The hub keeps
// the last message so a client that connects mid-session sees the current
// state immediately.
package hub

import (
	"encoding/json"
	"time"
)

// Message is one pre-encoded JSON payload.
type Message struct {
	Data []byte
}

// Envelope is the JSON shape every hub message uses.
type Envelope struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// NewJSONMessage creates a message from pre-encoded bytes.
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}

// Encode wraps v in an Envelope of the given type.
func Encode(kind string, v any) (Message, error) {
	data, err := json.Marshal(Envelope{Type: kind, Time: time.Now(), Data: v})
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(data), nil
}
