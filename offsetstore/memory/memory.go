// Package memory provides an in-process offset store for tests and
// single-process deployments.
//
// Offsets live in a map guarded by a mutex. Every handle carries the store
// revision it last observed, so two handles racing on the same
// (pipeline, tag) pair detect each other the same way the NATS KV backed
// store does: the slower writer fails with ErrOffsetConflict instead of
// silently rewinding committed progress.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/arloliu/relay/types"
)

// Store is an in-memory types.OffsetStore. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	offset   types.Offset
	revision uint64
}

// Compile-time assertion that Store implements OffsetStore.
var _ types.OffsetStore = (*Store)(nil)

// New creates an empty in-memory offset store.
func New() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Prepare loads the committed offset for the pipeline/tag pair and returns
// a handle scoped to it. A pair that has never committed yields a handle
// whose Last() is OffsetNone.
func (s *Store) Prepare(_ context.Context, pipeline string, tag types.Tag) (types.OffsetHandle, error) {
	key := pipeline + "/" + string(tag)

	s.mu.Lock()
	defer s.mu.Unlock()

	h := &handle{store: s, key: key, last: types.OffsetNone}
	if e, ok := s.entries[key]; ok {
		h.last = e.offset
		h.revision = e.revision
	}

	return h, nil
}

// handle is a prepared cursor over one (pipeline, tag) pair. Owned by a
// single pipeline instance; not safe for concurrent use.
type handle struct {
	store    *Store
	key      string
	last     types.Offset
	revision uint64
}

// Compile-time assertion that handle implements OffsetHandle.
var _ types.OffsetHandle = (*handle)(nil)

// Last returns the most recently committed offset seen by this handle.
func (h *handle) Last() types.Offset { return h.last }

// Save commits offset as the new high-water mark for the pair.
//
// Saving the current offset again is a no-op. A lower offset fails with
// ErrOffsetRegression. A store entry advanced by another handle since this
// one was prepared fails with ErrOffsetConflict.
func (h *handle) Save(_ context.Context, offset types.Offset) error {
	if offset < h.last {
		return fmt.Errorf("%w: committed %d, got %d", types.ErrOffsetRegression, h.last, offset)
	}

	if offset == h.last {
		return nil
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	cur, ok := h.store.entries[h.key]
	switch {
	case !ok && h.revision != 0:
		return fmt.Errorf("%w: entry %s deleted", types.ErrOffsetConflict, h.key)
	case ok && cur.revision != h.revision:
		return fmt.Errorf("%w: %s at revision %d, expected %d",
			types.ErrOffsetConflict, h.key, cur.revision, h.revision)
	}

	next := entry{offset: offset, revision: h.revision + 1}
	h.store.entries[h.key] = next

	h.last = offset
	h.revision = next.revision

	return nil
}
