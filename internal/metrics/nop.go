// Package metrics provides MetricsCollector implementations.
package metrics

import "github.com/arloliu/relay/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external metrics
// collection is used. Custom collectors can embed NopMetrics to implement
// only the slices they care about.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Example:
//
//	coord := relay.NewCoordinator(cfg, deps, relay.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// PublisherMetrics implementation

// RecordPublisherState discards the state transition metric.
func (n *NopMetrics) RecordPublisherState(_ /* tag */ string, _ /* from */, _ /* to */ types.PublisherState) {
	// No-op
}

// RecordPublish discards the publish attempt metric.
func (n *NopMetrics) RecordPublish(_ /* tag */ string, _ /* success */ bool, _ /* duration */ float64) {
	// No-op
}

// RecordOffsetCommit discards the committed offset metric.
func (n *NopMetrics) RecordOffsetCommit(_ /* tag */ string, _ /* offset */ int64) {
	// No-op
}

// ConsumerMetrics implementation

// RecordPullBatch discards the pull batch size metric.
func (n *NopMetrics) RecordPullBatch(_ /* subscription */ string, _ /* count */ int) {
	// No-op
}

// RecordProcess discards the processing metric.
func (n *NopMetrics) RecordProcess(_ /* subscription */ string, _ /* success */ bool, _ /* duration */ float64) {
	// No-op
}

// RecordAckFlush discards the ack flush metric.
func (n *NopMetrics) RecordAckFlush(_ /* subscription */ string, _ /* size */ int, _ /* reason */ string) {
	// No-op
}

// SupervisorMetrics implementation

// RecordRestart discards the restart metric.
func (n *NopMetrics) RecordRestart(_ /* pipeline */ string, _ /* attempt */ int, _ /* delay */ float64) {
	// No-op
}

// RecordBackoffReset discards the backoff reset metric.
func (n *NopMetrics) RecordBackoffReset(_ /* pipeline */ string) {
	// No-op
}

// RecordCompletion discards the completion metric.
func (n *NopMetrics) RecordCompletion(_ /* pipeline */ string, _ /* runtime */ float64) {
	// No-op
}

// CoordinatorMetrics implementation

// RecordOwnedTags discards the owned tag count metric.
func (n *NopMetrics) RecordOwnedTags(_ /* count */ int) {
	// No-op
}

// RecordReassignment discards the reassignment metric.
func (n *NopMetrics) RecordReassignment(_ /* added */, _ /* removed */ int) {
	// No-op
}

// RecordHeartbeat discards the heartbeat metric.
func (n *NopMetrics) RecordHeartbeat(_ /* memberID */ string, _ /* success */ bool) {
	// No-op
}
