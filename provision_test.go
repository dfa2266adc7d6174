package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/relay/transport/memory"
)

// brokenTransport fails every operation with the given error.
type brokenTransport struct {
	*memory.Transport
	err error
}

func (b *brokenTransport) CreateTopic(context.Context, string) error { return b.err }

func (b *brokenTransport) CreateSubscription(context.Context, string, string, time.Duration) error {
	return b.err
}

func (b *brokenTransport) DeleteTopic(context.Context, string) error { return b.err }

func (b *brokenTransport) DeleteSubscription(context.Context, string, string) error { return b.err }

func TestNewProvisionerRequiresTransport(t *testing.T) {
	_, err := NewProvisioner(nil)
	require.ErrorIs(t, err, ErrTransportRequired)
}

func TestEnsureTopic(t *testing.T) {
	transport := memory.New()
	prov, err := NewProvisioner(transport)
	require.NoError(t, err)

	ctx := t.Context()

	require.NoError(t, prov.EnsureTopic(ctx, "orders-0"))

	// Re-ensuring is success, not a failure.
	require.NoError(t, prov.EnsureTopic(ctx, "orders-0"))

	require.NoError(t, transport.Publish(ctx, "orders-0", NewMessage([]byte("x"))))
	require.Len(t, transport.Published("orders-0"), 1)
}

func TestEnsureSubscription(t *testing.T) {
	transport := memory.New()
	prov, err := NewProvisioner(transport)
	require.NoError(t, err)

	ctx := t.Context()

	require.NoError(t, prov.EnsureTopic(ctx, "orders-0"))
	require.NoError(t, prov.EnsureSubscription(ctx, "billing", "orders-0", 5*time.Second))
	require.NoError(t, prov.EnsureSubscription(ctx, "billing", "orders-0", 5*time.Second))
}

func TestRemoveAbsorbsNotFound(t *testing.T) {
	transport := memory.New()
	prov, err := NewProvisioner(transport)
	require.NoError(t, err)

	ctx := t.Context()

	require.NoError(t, prov.RemoveTopic(ctx, "never-created"))
	require.NoError(t, prov.RemoveSubscription(ctx, "never-created", "orders-0"))

	// Full create-remove round trip.
	require.NoError(t, prov.EnsureTopic(ctx, "orders-0"))
	require.NoError(t, prov.EnsureSubscription(ctx, "billing", "orders-0", time.Second))
	require.NoError(t, prov.RemoveSubscription(ctx, "billing", "orders-0"))
	require.NoError(t, prov.RemoveTopic(ctx, "orders-0"))
	require.NoError(t, prov.RemoveTopic(ctx, "orders-0"))
}

func TestProvisionErrorClassification(t *testing.T) {
	cause := errors.New("broker unreachable")
	prov, err := NewProvisioner(&brokenTransport{Transport: memory.New(), err: cause})
	require.NoError(t, err)

	ctx := t.Context()

	tests := []struct {
		name     string
		call     func() error
		resource string
		id       string
	}{
		{"ensure topic", func() error { return prov.EnsureTopic(ctx, "orders-0") }, "topic", "orders-0"},
		{"ensure subscription", func() error { return prov.EnsureSubscription(ctx, "billing", "orders-0", time.Second) }, "subscription", "billing"},
		{"remove topic", func() error { return prov.RemoveTopic(ctx, "orders-0") }, "topic", "orders-0"},
		{"remove subscription", func() error { return prov.RemoveSubscription(ctx, "billing", "orders-0") }, "subscription", "billing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)

			var provErr *ProvisionError
			require.ErrorAs(t, err, &provErr)
			require.Equal(t, tt.resource, provErr.Resource)
			require.Equal(t, tt.id, provErr.ID)
			require.ErrorIs(t, err, cause)
		})
	}
}
