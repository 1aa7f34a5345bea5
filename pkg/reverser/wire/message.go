// Package wire defines the JSON messages exchanged over the reverser WebSocket.
//
// Every frame is a JSON object naming an event and carrying its payload:
//
//	{"t": "reverse_input", "d": {"text": "hello"}, "i": 7}
//	{"t": "response", "d": {"reversed": "olleh"}, "i": 7}
//
// Short field names follow the event bus protocol this service grew out of.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event names understood by the server.
const (
	// Client to server: the current value of the input control changed.
	EventReverseInput = "reverse_input"

	// Client to server: like EventReverseInput with an explicit unit,
	// e.g. "reverse_input/grapheme".
	EventReverseInputUnitPattern = "reverse_input/+unit"

	// Server to client: the reversed text.
	EventResponse = "response"
)

// ErrMissingEvent is returned by Decode when a frame has no event name.
var ErrMissingEvent = errors.New("event name is required")

// Message is the JSON structure of every WebSocket frame.
type Message struct {
	Event string          `json:"t"`           // Event name
	Data  json.RawMessage `json:"d,omitempty"` // Event payload
	Id    any             `json:"i,omitempty"` // Optional correlation id, echoed on replies
}

// InputPayload is the payload of EventReverseInput. Text is a pointer so a
// missing field can be told apart from an empty string.
type InputPayload struct {
	Text *string `json:"text"`
}

// ResponsePayload is the payload of EventResponse.
type ResponsePayload struct {
	Reversed string `json:"reversed"`
}

// Decode parses a single frame.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("invalid JSON frame: %w", err)
	}
	if msg.Event == "" {
		return Message{}, ErrMissingEvent
	}
	return msg, nil
}

// Encode serializes a frame.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// NewMessage builds a frame with payload marshalled to JSON.
func NewMessage(event string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	return Message{Event: event, Data: data}, nil
}
