package ownership

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/relay/types"
)

func TestStaticActiveTags(t *testing.T) {
	oracle := NewStatic("tag-1", "tag-2")

	tags, err := oracle.ActiveTags(t.Context())
	require.NoError(t, err)
	require.Equal(t, []types.Tag{"tag-1", "tag-2"}, tags)

	// Callers cannot mutate the oracle through the returned slice.
	tags[0] = "mutated"

	again, err := oracle.ActiveTags(t.Context())
	require.NoError(t, err)
	require.Equal(t, []types.Tag{"tag-1", "tag-2"}, again)
}

func TestStaticUpdate(t *testing.T) {
	oracle := NewStatic("tag-1")

	oracle.Update("tag-2", "tag-3")

	tags, err := oracle.ActiveTags(t.Context())
	require.NoError(t, err)
	require.Equal(t, []types.Tag{"tag-2", "tag-3"}, tags)

	select {
	case <-oracle.Changes():
	default:
		t.Fatal("expected a change signal after Update")
	}
}

func TestStaticSignalsCoalesce(t *testing.T) {
	oracle := NewStatic()

	oracle.Update("tag-1")
	oracle.Update("tag-2")
	oracle.Update("tag-3")

	// Multiple updates collapse into one pending signal.
	select {
	case <-oracle.Changes():
	default:
		t.Fatal("expected a pending change signal")
	}

	select {
	case <-oracle.Changes():
		t.Fatal("expected signals to coalesce into one")
	default:
	}
}

func TestStaticClose(t *testing.T) {
	oracle := NewStatic("tag-1")

	oracle.Close()
	oracle.Close()

	_, ok := <-oracle.Changes()
	require.False(t, ok, "changes channel should be closed")

	// Updates after Close are dropped.
	oracle.Update("tag-2")

	tags, err := oracle.ActiveTags(t.Context())
	require.NoError(t, err)
	require.Equal(t, []types.Tag{"tag-1"}, tags)
}
