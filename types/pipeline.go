package types

import "context"

// Pipeline is a restartable unit of work: one publisher or consumer
// instance processing a single tag or subscription.
//
// Run blocks for the lifetime of the instance and its return value drives
// supervision:
//   - nil: the stream completed cleanly; the supervisor does not restart.
//   - ctx.Err(): the instance was stopped externally; no restart.
//   - any other error: the instance failed; the supervisor constructs a
//     fresh instance and restarts it after backoff.
//
// Run must release every resource it acquired (streams, transport handles)
// on all exit paths before returning. No internal state survives a restart;
// only externally persisted offsets do.
type Pipeline interface {
	// Name identifies the pipeline in logs, metrics and offset storage.
	Name() string

	// Run executes the pipeline until completion, failure or cancellation.
	Run(ctx context.Context) error
}
