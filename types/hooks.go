package types

import (
	"context"
	"time"
)

// Hooks defines callbacks for pipeline lifecycle events.
//
// All hooks are optional and called asynchronously in background goroutines
// to avoid blocking pipeline loops. Hooks receive the owning component's
// lifecycle context, which is cancelled during shutdown.
//
// Hook execution behavior:
//   - Hooks run concurrently and may not complete before Stop() returns
//   - Hook errors are logged but never fail pipeline operations
//
// Implementations should complete quickly, respect context cancellation and
// be idempotent.
//
// Example:
//
//	hooks := &relay.Hooks{
//	    OnRestartScheduled: func(ctx context.Context, pipeline string, attempt int, delay time.Duration, cause error) error {
//	        alerts.Notify(ctx, pipeline, cause)
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnPublisherStateChanged is called when a publisher transitions state.
	OnPublisherStateChanged func(ctx context.Context, tag Tag, from, to PublisherState) error

	// OnRestartScheduled is called when supervision schedules a restart.
	// attempt counts consecutive failures; cause is the error that ended
	// the previous run.
	OnRestartScheduled func(ctx context.Context, pipeline string, attempt int, delay time.Duration, cause error) error

	// OnTagsReassigned is called when the coordinator reconciles ownership.
	// added: tags that gained a local publisher
	// removed: tags whose local publisher was stopped
	OnTagsReassigned func(ctx context.Context, added, removed []Tag) error

	// OnBatchFlushed is called after a consumer flushes an ack batch.
	OnBatchFlushed func(ctx context.Context, subscription string, size int) error

	// OnError is called when a pipeline run ends with an error.
	OnError func(ctx context.Context, err error) error
}
