package source

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/relay/types"
)

func TestStaticTags(t *testing.T) {
	t.Run("returns configured tags in order", func(t *testing.T) {
		src := NewStaticTags("tag-1", "tag-2", "tag-3")

		tags, err := src.ListTags(t.Context())
		require.NoError(t, err)
		require.Equal(t, []types.Tag{"tag-1", "tag-2", "tag-3"}, tags)
	})

	t.Run("removes duplicates", func(t *testing.T) {
		src := NewStaticTags("tag-1", "tag-2", "tag-1", "tag-3", "tag-2")

		tags, err := src.ListTags(t.Context())
		require.NoError(t, err)
		require.Equal(t, []types.Tag{"tag-1", "tag-2", "tag-3"}, tags)
	})

	t.Run("empty list", func(t *testing.T) {
		src := NewStaticTags()

		tags, err := src.ListTags(t.Context())
		require.NoError(t, err)
		require.Empty(t, tags)
	})

	t.Run("callers cannot mutate the source", func(t *testing.T) {
		src := NewStaticTags("tag-1", "tag-2")

		tags, err := src.ListTags(t.Context())
		require.NoError(t, err)
		tags[0] = "mutated"

		again, err := src.ListTags(t.Context())
		require.NoError(t, err)
		require.Equal(t, []types.Tag{"tag-1", "tag-2"}, again)
	})
}
