package types

import "github.com/google/uuid"

// Message is the transport-facing payload produced by a publisher's
// transform stage.
//
// Attributes travel as broker headers where the backend supports them and
// are preserved through delivery. Data is opaque to the library.
type Message struct {
	// ID uniquely identifies the message. Duplicate deliveries of the same
	// logical event carry the same ID, which consumers may use for
	// deduplication.
	ID string

	// Data is the message body.
	Data []byte

	// Attributes carries optional transport headers.
	Attributes map[string]string
}

// NewMessage creates a message with a generated UUID and the given body.
func NewMessage(data []byte) Message {
	return Message{ID: uuid.NewString(), Data: data}
}

// SetAttribute sets a header attribute, allocating the map on first use.
func (m *Message) SetAttribute(key, value string) {
	if m.Attributes == nil {
		m.Attributes = make(map[string]string, 4)
	}
	m.Attributes[key] = value
}

// ReceivedMessage is a message delivered through a subscription.
//
// AckID is an opaque, transport-specific token; it is only meaningful to the
// Transport that produced it and must be passed back verbatim to Acknowledge.
type ReceivedMessage struct {
	Message

	// AckID acknowledges this delivery. Never inspect or synthesize it.
	AckID string
}
