package types

// PublisherState represents the publisher lifecycle state.
//
// States follow a defined progression during normal operation:
//
//	PublisherIdle → PublisherProvisioningTopic → PublisherLoadingOffset → PublisherStreaming → PublisherCompleted
//
// Topic provisioning and offset loading actually run concurrently; the
// state names track the first phase whose result is still outstanding, and
// Streaming is entered only after both have finished. Any failure moves the
// machine to PublisherFailed. Completed and Failed are terminal.
type PublisherState int

const (
	// PublisherIdle is the initial state before the pipeline runs.
	PublisherIdle PublisherState = iota

	// PublisherProvisioningTopic indicates topic creation is in flight.
	PublisherProvisioningTopic

	// PublisherLoadingOffset indicates the topic is ready and the committed
	// offset is still being loaded.
	PublisherLoadingOffset

	// PublisherStreaming indicates the publish→commit loop is running.
	PublisherStreaming

	// PublisherCompleted indicates the event stream ended cleanly.
	PublisherCompleted

	// PublisherFailed indicates a fatal error ended the run.
	PublisherFailed
)

// String returns the string representation of the state.
func (s PublisherState) String() string {
	switch s {
	case PublisherIdle:
		return "Idle"
	case PublisherProvisioningTopic:
		return "ProvisioningTopic"
	case PublisherLoadingOffset:
		return "LoadingOffset"
	case PublisherStreaming:
		return "Streaming"
	case PublisherCompleted:
		return "Completed"
	case PublisherFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the state ends the publisher lifecycle.
func (s PublisherState) Terminal() bool {
	return s == PublisherCompleted || s == PublisherFailed
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step.
func (s PublisherState) CanTransition(next PublisherState) bool {
	switch s {
	case PublisherIdle:
		return next == PublisherProvisioningTopic
	case PublisherProvisioningTopic:
		return next == PublisherLoadingOffset || next == PublisherFailed
	case PublisherLoadingOffset:
		return next == PublisherStreaming || next == PublisherFailed
	case PublisherStreaming:
		return next == PublisherCompleted || next == PublisherFailed
	default:
		return false
	}
}
