package queue

import (
	"errors"
	"fmt"
)

// ErrInvalidMessage marks a message that can never be processed. Consumers
// dead-letter it without retrying.
var ErrInvalidMessage = errors.New("invalid message")

// Envelope is a CloudEvent-shaped event read from, or written to, the inbound log.
type Envelope struct {
	EventID   string
	Source    string
	Type      string
	Data      []byte
	MessageID string // producer-assigned id, checked by the message gate
	TraceID   string
	Attempt   int
}

// ConnectorStreamName is the stream a connector service consumes when the
// redis transport is used.
func ConnectorStreamName(base, connector string) string {
	return fmt.Sprintf("%s:%s", base, connector)
}
