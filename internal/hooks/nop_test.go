package hooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arloliu/relay/types"
	"github.com/stretchr/testify/require"
)

func TestNewNop(t *testing.T) {
	hooks := NewNop()

	require.NotNil(t, hooks.OnPublisherStateChanged)
	require.NotNil(t, hooks.OnRestartScheduled)
	require.NotNil(t, hooks.OnTagsReassigned)
	require.NotNil(t, hooks.OnBatchFlushed)
	require.NotNil(t, hooks.OnError)
}

func TestNopHooksAllCallbacksSucceed(t *testing.T) {
	hooks := NewNop()
	ctx := context.Background()

	require.NoError(t, hooks.OnPublisherStateChanged(ctx, types.Tag("orders-0"), types.PublisherIdle, types.PublisherProvisioningTopic))
	require.NoError(t, hooks.OnRestartScheduled(ctx, "publisher-orders-0", 2, 6*time.Second, errors.New("boom")))
	require.NoError(t, hooks.OnTagsReassigned(ctx, []types.Tag{"a"}, []types.Tag{"b", "c"}))
	require.NoError(t, hooks.OnBatchFlushed(ctx, "billing-events", 32))
	require.NoError(t, hooks.OnError(ctx, context.Canceled))
}
