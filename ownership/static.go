// Package ownership provides tag ownership oracles for the coordinator.
//
// Static claims a fixed set of tags and suits single-process deployments.
// Ring distributes a tag universe across live cluster members using
// consistent hashing over heartbeat membership.
package ownership

import (
	"context"
	"slices"
	"sync"

	"github.com/arloliu/relay/types"
)

// Static is a fixed-set ownership oracle. A single-process deployment
// claims every tag it serves; Update replaces the set at runtime.
type Static struct {
	mu      sync.Mutex
	tags    []types.Tag
	changes chan struct{}
	closed  bool
}

// Compile-time assertion that Static implements Ownership.
var _ types.Ownership = (*Static)(nil)

// NewStatic creates an oracle that owns the given tags.
func NewStatic(tags ...types.Tag) *Static {
	return &Static{
		tags:    slices.Clone(tags),
		changes: make(chan struct{}, 1),
	}
}

// ActiveTags returns the currently owned tags.
func (s *Static) ActiveTags(_ context.Context) ([]types.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.tags), nil
}

// Changes returns the change-signal channel.
func (s *Static) Changes() <-chan struct{} {
	return s.changes
}

// Update replaces the owned set and signals watchers.
//
// Signals are coalesced: an undrained earlier signal covers this change
// too. Updates after Close are dropped.
func (s *Static) Update(tags ...types.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.tags = slices.Clone(tags)

	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Close shuts the oracle down and closes the change channel. Idempotent.
func (s *Static) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	close(s.changes)
}
