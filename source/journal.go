// Package source provides event source implementations for feeding
// publishers.
//
// Journal is an in-memory, append-only event journal for tests and
// single-process deployments. Applications backed by an event store or an
// outbox table implement types.EventSource directly.
package source

import (
	"context"
	"slices"
	"sync"

	"github.com/arloliu/relay/types"
)

// Journal is an in-memory event journal holding one append-only log per
// tag. Offsets are log indices starting at zero.
//
// Journal implements both EventSource (publishers stream from it) and
// TagSource (ring oracles enumerate its tags). Safe for concurrent use.
type Journal[E any] struct {
	mu     sync.Mutex
	logs   map[types.Tag][]E
	notify chan struct{}
	closed bool
}

// Compile-time assertions for the Journal interfaces.
var (
	_ types.EventSource[int] = (*Journal[int])(nil)
	_ types.TagSource        = (*Journal[int])(nil)
	_ types.EventStream[int] = (*journalStream[int])(nil)
)

// NewJournal creates an empty journal.
func NewJournal[E any]() *Journal[E] {
	return &Journal[E]{
		logs:   make(map[types.Tag][]E),
		notify: make(chan struct{}),
	}
}

// Append adds events to the tag's log and wakes blocked readers.
//
// Returns the offset of the last appended event, or the current last
// offset when called with no events. Appends to a closed journal are
// dropped and return OffsetNone.
func (j *Journal[E]) Append(tag types.Tag, events ...E) types.Offset {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return types.OffsetNone
	}

	log := append(j.logs[tag], events...)
	j.logs[tag] = log

	if len(events) > 0 {
		j.broadcastLocked()
	}

	return types.Offset(len(log) - 1)
}

// Len returns the number of events appended for the tag.
func (j *Journal[E]) Len(tag types.Tag) int {
	j.mu.Lock()
	defer j.mu.Unlock()

	return len(j.logs[tag])
}

// Close ends the journal. Blocked readers drain whatever is left and then
// receive ErrEndOfStream. Close is idempotent.
func (j *Journal[E]) Close() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return
	}

	j.closed = true
	j.broadcastLocked()
}

// Stream opens the tag's event sequence strictly after the given offset.
// Passing OffsetNone streams from the beginning.
func (j *Journal[E]) Stream(_ context.Context, tag types.Tag, after types.Offset) (types.EventStream[E], error) {
	next := types.Offset(0)
	if after.Valid() {
		next = after + 1
	}

	return &journalStream[E]{
		journal: j,
		tag:     tag,
		next:    next,
		done:    make(chan struct{}),
	}, nil
}

// ListTags returns the tags with at least one appended event, sorted for
// deterministic iteration.
func (j *Journal[E]) ListTags(_ context.Context) ([]types.Tag, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	tags := make([]types.Tag, 0, len(j.logs))
	for tag := range j.logs {
		tags = append(tags, tag)
	}

	slices.Sort(tags)

	return tags, nil
}

// broadcastLocked wakes every blocked reader by closing the shared notify
// channel and replacing it. Callers must hold mu.
func (j *Journal[E]) broadcastLocked() {
	close(j.notify)
	j.notify = make(chan struct{})
}

// journalStream is a cursor over one tag's log. Single-reader; Close may
// be called concurrently with a blocked Next.
type journalStream[E any] struct {
	journal *Journal[E]
	tag     types.Tag
	next    types.Offset
	once    sync.Once
	done    chan struct{}
}

// Next blocks until a record is available, the journal is closed with
// nothing left to read, the stream is closed, or ctx is done.
func (s *journalStream[E]) Next(ctx context.Context) (types.Record[E], error) {
	var zero types.Record[E]

	select {
	case <-s.done:
		return zero, types.ErrEndOfStream
	default:
	}

	for {
		s.journal.mu.Lock()

		log := s.journal.logs[s.tag]
		if int(s.next) < len(log) {
			rec := types.Record[E]{Event: log[s.next], Offset: s.next}
			s.next++
			s.journal.mu.Unlock()

			return rec, nil
		}

		if s.journal.closed {
			s.journal.mu.Unlock()

			return zero, types.ErrEndOfStream
		}

		notify := s.journal.notify
		s.journal.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-s.done:
			return zero, types.ErrEndOfStream
		case <-notify:
		}
	}
}

// Close releases the stream. Subsequent Next calls return ErrEndOfStream.
func (s *journalStream[E]) Close() error {
	s.once.Do(func() { close(s.done) })

	return nil
}
