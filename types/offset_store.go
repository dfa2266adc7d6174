package types

import "context"

// OffsetStore persists the last committed offset per (pipeline, tag).
//
// The store is shared across restarts of the same pipeline and must support
// optimistic, tag-scoped read-then-write. No cross-tag coordination is
// required.
type OffsetStore interface {
	// Prepare loads the last committed offset for the pipeline/tag pair and
	// returns a handle scoped to it.
	//
	// A pair that has never committed yields a handle whose Last() is
	// OffsetNone. The handle is owned by a single pipeline instance and is
	// not safe for concurrent use.
	Prepare(ctx context.Context, pipeline string, tag Tag) (OffsetHandle, error)
}

// OffsetHandle is a prepared cursor over one (pipeline, tag) pair.
type OffsetHandle interface {
	// Last returns the most recently committed offset, updated by every
	// successful Save. OffsetNone means nothing has been committed yet.
	Last() Offset

	// Save commits offset as the new high-water mark.
	//
	// Save must be callable repeatedly with non-decreasing values: saving
	// the current offset again succeeds (idempotent re-commit), while a
	// regression fails with ErrOffsetRegression. Implementations backed by
	// shared storage should detect concurrent writers and fail the save
	// (ErrOffsetConflict) rather than overwrite their progress.
	Save(ctx context.Context, offset Offset) error
}
