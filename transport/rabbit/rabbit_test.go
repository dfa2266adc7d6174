package rabbit

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/relay/types"
)

func TestNew(t *testing.T) {
	t.Run("requires connection", func(t *testing.T) {
		_, err := New(nil, Config{})
		require.Error(t, err)
	})
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	require.Equal(t, DefaultPrefetchCount, cfg.PrefetchCount)
	require.Equal(t, "relay", cfg.ConsumerTag)
	require.NotNil(t, cfg.Logger)

	custom := Config{PrefetchCount: 16, ConsumerTag: "billing"}
	custom.applyDefaults()
	require.Equal(t, 16, custom.PrefetchCount)
	require.Equal(t, "billing", custom.ConsumerTag)
}

func TestMessageConversion(t *testing.T) {
	t.Run("round trips ID, data, and attributes", func(t *testing.T) {
		msg := types.NewMessage([]byte(`{"seq":3}`))
		msg.SetAttribute("offset", "3")
		msg.SetAttribute("region", "us")

		pub := toPublishing(msg)
		require.Equal(t, msg.ID, pub.MessageId)
		require.Equal(t, `{"seq":3}`, string(pub.Body))
		require.Equal(t, amqp091.Persistent, pub.DeliveryMode)
		require.Len(t, pub.Headers, 2)

		back := fromDelivery(amqp091.Delivery{
			MessageId: pub.MessageId,
			Body:      pub.Body,
			Headers:   pub.Headers,
		})
		require.Equal(t, msg.ID, back.ID)
		require.Equal(t, msg.Data, back.Data)
		require.Equal(t, "3", back.Attributes["offset"])
		require.Equal(t, "us", back.Attributes["region"])
	})

	t.Run("handles message without attributes", func(t *testing.T) {
		pub := toPublishing(types.Message{ID: "id-1", Data: []byte("raw")})
		require.Nil(t, pub.Headers)

		back := fromDelivery(amqp091.Delivery{MessageId: "id-1", Body: []byte("raw")})
		require.Equal(t, "id-1", back.ID)
		require.Nil(t, back.Attributes)
	})

	t.Run("stringifies non-string header values", func(t *testing.T) {
		back := fromDelivery(amqp091.Delivery{
			Body:    []byte("x"),
			Headers: amqp091.Table{"retries": int32(4)},
		})
		require.Equal(t, "4", back.Attributes["retries"])
	})
}

func TestIsAMQPCode(t *testing.T) {
	notFound := &amqp091.Error{Code: amqp091.NotFound, Reason: "no exchange"}

	if !isAMQPCode(notFound, amqp091.NotFound) {
		t.Error("expected 404 to match NotFound")
	}
	if isAMQPCode(notFound, amqp091.PreconditionFailed) {
		t.Error("404 should not match 406")
	}
	if isAMQPCode(errors.New("plain"), amqp091.NotFound) {
		t.Error("plain error should not match")
	}
	if !isAMQPCode(fmt.Errorf("declare: %w", notFound), amqp091.NotFound) {
		t.Error("wrapped AMQP error should match")
	}
}

func TestTransport_UnboundSubscription(t *testing.T) {
	tr := &Transport{bindings: make(map[string]*binding)}

	_, err := tr.Pull(t.Context(), "never-created", 1)
	require.ErrorIs(t, err, types.ErrNotFound)

	err = tr.Acknowledge(t.Context(), "never-created", []string{"1"})
	require.ErrorIs(t, err, types.ErrNotFound)
}
