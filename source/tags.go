package source

import (
	"context"
	"slices"

	"github.com/arloliu/relay/types"
)

// StaticTags is a fixed tag universe for deployments whose tags are known
// up front.
type StaticTags struct {
	tags []types.Tag
}

// Compile-time assertion that StaticTags implements TagSource.
var _ types.TagSource = (*StaticTags)(nil)

// NewStaticTags builds a tag source over a fixed list. Duplicates are
// removed; order is preserved.
func NewStaticTags(tags ...types.Tag) *StaticTags {
	seen := make(map[types.Tag]struct{}, len(tags))
	out := make([]types.Tag, 0, len(tags))

	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			continue
		}

		seen[tag] = struct{}{}
		out = append(out, tag)
	}

	return &StaticTags{tags: out}
}

// ListTags returns the configured tags.
func (s *StaticTags) ListTags(_ context.Context) ([]types.Tag, error) {
	return slices.Clone(s.tags), nil
}
