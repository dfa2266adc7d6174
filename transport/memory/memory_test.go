package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/relay/types"
)

func TestTransport_Provisioning(t *testing.T) {
	ctx := t.Context()

	t.Run("create topic twice reports already exists", func(t *testing.T) {
		tr := New()

		require.NoError(t, tr.CreateTopic(ctx, "orders"))
		require.ErrorIs(t, tr.CreateTopic(ctx, "orders"), types.ErrAlreadyExists)
	})

	t.Run("delete missing topic reports not found", func(t *testing.T) {
		tr := New()

		require.ErrorIs(t, tr.DeleteTopic(ctx, "orders"), types.ErrNotFound)
	})

	t.Run("subscription requires existing topic", func(t *testing.T) {
		tr := New()

		err := tr.CreateSubscription(ctx, "orders-sub", "orders", time.Second)
		require.ErrorIs(t, err, types.ErrNotFound)

		require.NoError(t, tr.CreateTopic(ctx, "orders"))
		require.NoError(t, tr.CreateSubscription(ctx, "orders-sub", "orders", time.Second))
		require.ErrorIs(t, tr.CreateSubscription(ctx, "orders-sub", "orders", time.Second), types.ErrAlreadyExists)
	})

	t.Run("delete subscription checks topic binding", func(t *testing.T) {
		tr := New()

		require.NoError(t, tr.CreateTopic(ctx, "orders"))
		require.NoError(t, tr.CreateSubscription(ctx, "orders-sub", "orders", time.Second))

		require.ErrorIs(t, tr.DeleteSubscription(ctx, "orders-sub", "payments"), types.ErrNotFound)
		require.NoError(t, tr.DeleteSubscription(ctx, "orders-sub", "orders"))
		require.ErrorIs(t, tr.DeleteSubscription(ctx, "orders-sub", "orders"), types.ErrNotFound)
	})

	t.Run("deleting topic drops bound subscriptions", func(t *testing.T) {
		tr := New()

		require.NoError(t, tr.CreateTopic(ctx, "orders"))
		require.NoError(t, tr.CreateSubscription(ctx, "orders-sub", "orders", time.Second))
		require.NoError(t, tr.DeleteTopic(ctx, "orders"))

		_, err := tr.Pull(ctx, "orders-sub", 1)
		require.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestTransport_PublishPull(t *testing.T) {
	ctx := t.Context()

	t.Run("publish to missing topic reports not found", func(t *testing.T) {
		tr := New()

		err := tr.Publish(ctx, "orders", types.NewMessage([]byte("x")))
		require.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("delivers messages in publish order", func(t *testing.T) {
		tr := New()

		require.NoError(t, tr.CreateTopic(ctx, "orders"))
		require.NoError(t, tr.CreateSubscription(ctx, "orders-sub", "orders", 30*time.Second))

		for i := range 5 {
			msg := types.NewMessage(fmt.Appendf(nil, "event-%d", i))
			require.NoError(t, tr.Publish(ctx, "orders", msg))
		}

		batch, err := tr.Pull(ctx, "orders-sub", 10)
		require.NoError(t, err)
		require.Len(t, batch, 5)
		for i, rm := range batch {
			require.Equal(t, fmt.Sprintf("event-%d", i), string(rm.Data))
			require.NotEmpty(t, rm.AckID)
		}
	})

	t.Run("pull respects maxMessages", func(t *testing.T) {
		tr := New()

		require.NoError(t, tr.CreateTopic(ctx, "orders"))
		require.NoError(t, tr.CreateSubscription(ctx, "orders-sub", "orders", 30*time.Second))

		for range 5 {
			require.NoError(t, tr.Publish(ctx, "orders", types.NewMessage([]byte("x"))))
		}

		batch, err := tr.Pull(ctx, "orders-sub", 2)
		require.NoError(t, err)
		require.Len(t, batch, 2)

		batch, err = tr.Pull(ctx, "orders-sub", 10)
		require.NoError(t, err)
		require.Len(t, batch, 3)
	})

	t.Run("empty subscription returns empty batch", func(t *testing.T) {
		tr := New()

		require.NoError(t, tr.CreateTopic(ctx, "orders"))
		require.NoError(t, tr.CreateSubscription(ctx, "orders-sub", "orders", 30*time.Second))

		batch, err := tr.Pull(ctx, "orders-sub", 10)
		require.NoError(t, err)
		require.Empty(t, batch)
	})

	t.Run("independent subscriptions see all messages", func(t *testing.T) {
		tr := New()

		require.NoError(t, tr.CreateTopic(ctx, "orders"))
		require.NoError(t, tr.CreateSubscription(ctx, "sub-a", "orders", 30*time.Second))
		require.NoError(t, tr.Publish(ctx, "orders", types.NewMessage([]byte("one"))))

		batchA, err := tr.Pull(ctx, "sub-a", 10)
		require.NoError(t, err)
		require.Len(t, batchA, 1)

		// A subscription created later still reads from the topic start.
		require.NoError(t, tr.CreateSubscription(ctx, "sub-b", "orders", 30*time.Second))
		batchB, err := tr.Pull(ctx, "sub-b", 10)
		require.NoError(t, err)
		require.Len(t, batchB, 1)
		require.Equal(t, "one", string(batchB[0].Data))
	})
}

func TestTransport_AckAndRedelivery(t *testing.T) {
	ctx := t.Context()

	t.Run("acknowledged messages are not redelivered", func(t *testing.T) {
		tr := New()

		require.NoError(t, tr.CreateTopic(ctx, "orders"))
		require.NoError(t, tr.CreateSubscription(ctx, "orders-sub", "orders", 50*time.Millisecond))
		require.NoError(t, tr.Publish(ctx, "orders", types.NewMessage([]byte("one"))))

		batch, err := tr.Pull(ctx, "orders-sub", 10)
		require.NoError(t, err)
		require.Len(t, batch, 1)

		require.NoError(t, tr.Acknowledge(ctx, "orders-sub", []string{batch[0].AckID}))
		require.Equal(t, 0, tr.InflightCount("orders-sub"))

		time.Sleep(100 * time.Millisecond)

		batch, err = tr.Pull(ctx, "orders-sub", 10)
		require.NoError(t, err)
		require.Empty(t, batch)
	})

	t.Run("unacknowledged messages redeliver after deadline", func(t *testing.T) {
		tr := New()

		require.NoError(t, tr.CreateTopic(ctx, "orders"))
		require.NoError(t, tr.CreateSubscription(ctx, "orders-sub", "orders", 50*time.Millisecond))
		require.NoError(t, tr.Publish(ctx, "orders", types.NewMessage([]byte("one"))))

		first, err := tr.Pull(ctx, "orders-sub", 10)
		require.NoError(t, err)
		require.Len(t, first, 1)

		// Before the deadline the delivery stays exclusive
		batch, err := tr.Pull(ctx, "orders-sub", 10)
		require.NoError(t, err)
		require.Empty(t, batch)

		require.Eventually(t, func() bool {
			batch, err := tr.Pull(ctx, "orders-sub", 10)
			return err == nil && len(batch) == 1
		}, 2*time.Second, 10*time.Millisecond, "message was not redelivered")
	})

	t.Run("redelivery issues a fresh ack ID", func(t *testing.T) {
		tr := New()

		require.NoError(t, tr.CreateTopic(ctx, "orders"))
		require.NoError(t, tr.CreateSubscription(ctx, "orders-sub", "orders", 20*time.Millisecond))
		require.NoError(t, tr.Publish(ctx, "orders", types.NewMessage([]byte("one"))))

		first, err := tr.Pull(ctx, "orders-sub", 10)
		require.NoError(t, err)
		require.Len(t, first, 1)

		time.Sleep(50 * time.Millisecond)

		second, err := tr.Pull(ctx, "orders-sub", 10)
		require.NoError(t, err)
		require.Len(t, second, 1)
		require.NotEqual(t, first[0].AckID, second[0].AckID)
		require.Equal(t, first[0].ID, second[0].ID)

		// The stale ack ID is harmless; the fresh one settles the message.
		require.NoError(t, tr.Acknowledge(ctx, "orders-sub", []string{first[0].AckID}))
		require.Equal(t, 1, tr.InflightCount("orders-sub"))
		require.NoError(t, tr.Acknowledge(ctx, "orders-sub", []string{second[0].AckID}))
		require.Equal(t, 0, tr.InflightCount("orders-sub"))
	})

	t.Run("acknowledge unknown subscription reports not found", func(t *testing.T) {
		tr := New()

		require.ErrorIs(t, tr.Acknowledge(ctx, "nope", []string{"1"}), types.ErrNotFound)
	})
}

func TestTransport_Close(t *testing.T) {
	ctx := t.Context()

	tr := New()
	require.NoError(t, tr.CreateTopic(ctx, "orders"))
	require.NoError(t, tr.Close())

	require.ErrorIs(t, tr.CreateTopic(ctx, "other"), ErrClosed)
	require.ErrorIs(t, tr.Publish(ctx, "orders", types.NewMessage(nil)), ErrClosed)
	_, err := tr.Pull(ctx, "orders-sub", 1)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, tr.Close(), ErrClosed)
}

func TestTransport_Published(t *testing.T) {
	ctx := t.Context()

	tr := New()
	require.NoError(t, tr.CreateTopic(ctx, "orders"))

	require.Nil(t, tr.Published("unknown"))
	require.Empty(t, tr.Published("orders"))

	require.NoError(t, tr.Publish(ctx, "orders", types.NewMessage([]byte("one"))))
	require.NoError(t, tr.Publish(ctx, "orders", types.NewMessage([]byte("two"))))

	published := tr.Published("orders")
	require.Len(t, published, 2)
	require.Equal(t, "one", string(published[0].Data))
	require.Equal(t, "two", string(published[1].Data))
}
