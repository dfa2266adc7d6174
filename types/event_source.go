package types

import "context"

// Record pairs an application event with its offset in the tag's stream.
type Record[E any] struct {
	// Event is the application payload.
	Event E

	// Offset is the event's position within the tag's stream.
	Offset Offset
}

// EventSource produces the ordered event feed a publisher drains.
//
// Implementations are supplied by the application: an event-store query, a
// database outbox table, an in-memory journal. The source must be
// restartable: opening a stream for the same tag and boundary twice yields
// the same remaining sequence (modulo events appended in between).
type EventSource[E any] interface {
	// Stream opens the tag's event sequence strictly after the given
	// offset. Passing OffsetNone streams from the beginning.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - tag: Sub-stream to read
	//   - after: Exclusive lower bound; records with Offset <= after are
	//     not replayed
	//
	// Returns:
	//   - EventStream[E]: Open stream positioned at the boundary
	//   - error: Open failure (nil on success)
	Stream(ctx context.Context, tag Tag, after Offset) (EventStream[E], error)
}

// EventStream is a lazy, ordered sequence of records for one tag.
//
// Records arrive in strictly increasing offset order. Streams are
// single-reader; Close releases the source and may be called concurrently
// with a blocked Next.
type EventStream[E any] interface {
	// Next blocks until a record is available, the stream ends, or ctx is
	// done. A cleanly ended stream (source closed, nothing more to read)
	// returns ErrEndOfStream.
	Next(ctx context.Context) (Record[E], error)

	// Close releases the stream. Subsequent Next calls return
	// ErrEndOfStream.
	Close() error
}
