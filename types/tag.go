package types

// Tag is the partition key identifying one logical, independently ordered
// sub-stream of domain events (for example, one shard of an aggregate's
// event stream).
//
// Each tag maps to exactly one topic and at most one active publisher
// cluster-wide. Tags should be broker-safe identifiers: letters, digits,
// dashes and underscores. Transport adapters may escape other characters.
type Tag string

// String returns the tag as a plain string.
func (t Tag) String() string { return string(t) }

// TopicName returns the canonical topic identifier for the tag under the
// given namespace. An empty namespace yields the bare tag.
//
// Returns:
//   - string: "<namespace>-<tag>", or "<tag>" when namespace is empty
func (t Tag) TopicName(namespace string) string {
	if namespace == "" {
		return string(t)
	}

	return namespace + "-" + string(t)
}

// Offset is a position within a tag's event stream. Offsets increase
// monotonically within a tag; there is no ordering relation across tags.
type Offset int64

// OffsetNone marks the absence of a committed offset. A stream opened after
// OffsetNone starts from the beginning.
const OffsetNone Offset = -1

// Valid reports whether the offset refers to an actual stream position.
func (o Offset) Valid() bool { return o >= 0 }
