package relay

import "github.com/arloliu/relay/types"

// Re-export types from the types subpackage.
//
// This file provides a stable public API for the library's core types and
// interfaces. It uses type aliases to re-export definitions from the `types`
// subpackage, which contains the actual declarations.
//
// This pattern solves the "import cycle" problem by allowing internal
// packages to depend on `types` without depending on the root `relay`
// package, while still providing a convenient `relay.Tag`, `relay.Transport`,
// etc. for users.
type (
	Tag             = types.Tag
	Offset          = types.Offset
	Message         = types.Message
	ReceivedMessage = types.ReceivedMessage
	PublisherState  = types.PublisherState
)

// Record pairs an application event with its offset in the tag's stream.
type Record[E any] = types.Record[E]

// Re-export interfaces from the types subpackage for convenience.
type (
	Transport        = types.Transport
	OffsetStore      = types.OffsetStore
	OffsetHandle     = types.OffsetHandle
	Ownership        = types.Ownership
	TagSource        = types.TagSource
	Pipeline         = types.Pipeline
	Logger           = types.Logger
	Hooks            = types.Hooks
	MetricsCollector = types.MetricsCollector
)

// EventSource and EventStream are the application-supplied event feed
// contracts drained by publishers.
type (
	EventSource[E any] = types.EventSource[E]
	EventStream[E any] = types.EventStream[E]
)

// OffsetNone marks the absence of a committed offset.
const OffsetNone = types.OffsetNone

// Re-export PublisherState constants from the types subpackage.
const (
	PublisherIdle              = types.PublisherIdle
	PublisherProvisioningTopic = types.PublisherProvisioningTopic
	PublisherLoadingOffset     = types.PublisherLoadingOffset
	PublisherStreaming         = types.PublisherStreaming
	PublisherCompleted         = types.PublisherCompleted
	PublisherFailed            = types.PublisherFailed
)

// NewMessage creates a message with a generated UUID and the given body.
func NewMessage(data []byte) Message {
	return types.NewMessage(data)
}
