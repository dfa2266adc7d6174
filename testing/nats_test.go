package testing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartEmbeddedNATS(t *testing.T) {
	ns, nc := StartEmbeddedNATS(t)

	require.True(t, nc.IsConnected())
	require.NotEmpty(t, ns.ClientURL())
	require.True(t, ns.JetStreamEnabled())
}

// Five servers starting in parallel must not collide on ports or store
// directories.
func TestStartEmbeddedNATS_Parallel(t *testing.T) {
	t.Parallel()

	for i := range 5 {
		t.Run(fmt.Sprintf("server-%d", i), func(t *testing.T) {
			t.Parallel()

			_, nc := StartEmbeddedNATS(t)
			require.True(t, nc.IsConnected())
		})
	}
}

func TestCreateKVBucket(t *testing.T) {
	_, nc := StartEmbeddedNATS(t)

	kv := CreateKVBucket(t, nc, "relay-bucket")

	ctx := t.Context()
	_, err := kv.Put(ctx, "orders-0", []byte("41"))
	require.NoError(t, err)

	entry, err := kv.Get(ctx, "orders-0")
	require.NoError(t, err)
	require.Equal(t, []byte("41"), entry.Value())
}
