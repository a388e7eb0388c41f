// Package hub fans messages out to websocket clients with one writer
// goroutine per connection.
package hub

import "encoding/json"

// MessageType is the websocket frame type a message is sent as.
type MessageType int

const (
	// JSONMessage is sent as a text frame.
	JSONMessage MessageType = iota
	// BinaryMessage is sent as a binary frame (JPEG frames, audio).
	BinaryMessage
)

// Message is one broadcast payload.
type Message struct {
	// Type selects the websocket frame type.
	Type MessageType

	// Data is the payload, sent unchanged to every client.
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps binary data.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// EncodeJSON marshals v into a JSON message.
func EncodeJSON(v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(data), nil
}
