// Package hub fans dashboard updates out to websocket clients.
//
// One goroutine (Run) owns the client set. Producers call Broadcast, which
// never blocks; a client whose send buffer is full is dropped rather than
// slowing the producer.
package hub

// MessageType indicates the websocket message format.
type MessageType int

const (
	// JSONMessage is a JSON-encoded text message.
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data (e.g. JPEG frames).
	BinaryMessage
)

// Message is one broadcast payload.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage creates a binary message.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
