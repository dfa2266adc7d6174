package types

import "context"

// Ownership reports which tags this cluster member currently owns.
//
// The coordinator starts a publisher for every owned tag and stops
// publishers for tags that move away. Ownership is a soft guarantee:
// during a membership change two members may briefly both believe they own
// a tag. The coordinator bounds that window; implementations should
// converge quickly but need not provide consensus-grade exclusion.
//
// Implementations range from a static claim-everything oracle for
// single-process deployments to consistent-hash rings over live cluster
// membership.
type Ownership interface {
	// ActiveTags returns the set of tags this member should run publishers
	// for right now.
	ActiveTags(ctx context.Context) ([]Tag, error)

	// Changes returns a channel that receives a signal whenever the owned
	// set may have changed. Signals are coalesced; receivers re-query
	// ActiveTags to learn the new set. The channel is closed when the
	// oracle shuts down.
	Changes() <-chan struct{}
}

// TagSource enumerates the full tag universe that ownership is computed
// over.
//
// Ring-based oracles call ListTags to know what there is to distribute;
// a static fixed list suffices for most deployments.
type TagSource interface {
	// ListTags returns all tags that should have an active publisher
	// somewhere in the cluster.
	ListTags(ctx context.Context) ([]Tag, error)
}
