package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from internal goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces so callers can
// implement only the slices they care about and embed NopMetrics for the
// rest.
type MetricsCollector interface {
	PublisherMetrics
	ConsumerMetrics
	SupervisorMetrics
	CoordinatorMetrics
}

// PublisherMetrics defines metrics for the offset-ordered publisher.
type PublisherMetrics interface {
	// RecordPublisherState records a publisher state transition.
	RecordPublisherState(tag string, from, to PublisherState)

	// RecordPublish records one publish attempt.
	//
	// Parameters:
	//   - tag: Tag the publisher serves
	//   - success: true if the broker acknowledged the message
	//   - duration: Publish round-trip in seconds
	RecordPublish(tag string, success bool, duration float64)

	// RecordOffsetCommit records a committed offset (gauge per tag).
	RecordOffsetCommit(tag string, offset int64)
}

// ConsumerMetrics defines metrics for the batched-ack consumer.
type ConsumerMetrics interface {
	// RecordPullBatch records the size of one pull result (0 for an empty
	// poll).
	RecordPullBatch(subscription string, count int)

	// RecordProcess records one processing-stage invocation.
	RecordProcess(subscription string, success bool, duration float64)

	// RecordAckFlush records a batch acknowledgement.
	//
	// Parameters:
	//   - subscription: Subscription being consumed
	//   - size: Number of deliveries in the flushed batch
	//   - reason: "size" when the batch filled, "interval" when the
	//     batching interval elapsed first
	RecordAckFlush(subscription string, size int, reason string)
}

// SupervisorMetrics defines metrics for restart supervision.
type SupervisorMetrics interface {
	// RecordRestart records a scheduled restart.
	//
	// Parameters:
	//   - pipeline: Supervised pipeline name
	//   - attempt: Consecutive failure count since the last stable run
	//   - delay: Backoff delay in seconds
	RecordRestart(pipeline string, attempt int, delay float64)

	// RecordBackoffReset records a backoff reset after a stable run.
	RecordBackoffReset(pipeline string)

	// RecordCompletion records a clean pipeline completion.
	//
	// Parameters:
	//   - pipeline: Supervised pipeline name
	//   - runtime: Final run duration in seconds
	RecordCompletion(pipeline string, runtime float64)
}

// CoordinatorMetrics defines metrics for single-writer coordination.
type CoordinatorMetrics interface {
	// RecordOwnedTags sets the current owned tag count (gauge metric).
	RecordOwnedTags(count int)

	// RecordReassignment records a reconcile outcome.
	//
	// Parameters:
	//   - added: Number of tags that gained a local publisher
	//   - removed: Number of tags whose local publisher was stopped
	RecordReassignment(added, removed int)

	// RecordHeartbeat records a membership heartbeat attempt.
	RecordHeartbeat(memberID string, success bool)
}
