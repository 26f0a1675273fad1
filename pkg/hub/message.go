// Package hub fans telemetry out to websocket clients using a single
// goroutine that owns the client set.
package hub

// Message is one pre-encoded JSON payload queued for broadcast.
type Message struct {
	Data []byte
}

// NewJSONMessage wraps already encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}
