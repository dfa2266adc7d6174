package types

import (
	"context"
	"time"
)

// Transport is the broker client contract.
//
// Implementations wrap a concrete backend (JetStream, Kafka, RabbitMQ, an
// in-process fake) behind uniform create/publish/pull/acknowledge semantics.
// A Transport must be safe for concurrent use; one instance is typically
// shared by every pipeline in the process.
//
// Error mapping rules:
//   - Create* reports ErrAlreadyExists (possibly wrapped) when the resource
//     is already present with the requested identity.
//   - Delete* reports ErrNotFound (possibly wrapped) when the resource does
//     not exist.
//   - All other failures are returned as-is for the caller to classify.
//
// The Provisioner is the single place that absorbs ErrAlreadyExists and
// ErrNotFound; adapters report what actually happened.
type Transport interface {
	// CreateTopic creates the topic if it does not exist.
	CreateTopic(ctx context.Context, topic string) error

	// DeleteTopic removes the topic and its retained messages.
	DeleteTopic(ctx context.Context, topic string) error

	// CreateSubscription creates a durable subscription bound to topic.
	//
	// ackDeadline is the redelivery window: a pulled message that is not
	// acknowledged within it becomes eligible for redelivery. Backends that
	// cannot express a per-message deadline apply their closest equivalent.
	CreateSubscription(ctx context.Context, subscription, topic string, ackDeadline time.Duration) error

	// DeleteSubscription removes the subscription and its cursor.
	DeleteSubscription(ctx context.Context, subscription, topic string) error

	// Publish sends msg to topic and returns only after the broker has
	// durably accepted it. A nil return is the delivery acknowledgement;
	// any error means the message may or may not have been accepted and the
	// caller must treat the publish as failed.
	Publish(ctx context.Context, topic string, msg Message) error

	// Pull fetches up to maxMessages deliveries from the subscription.
	//
	// Pull returns promptly (possibly with an empty batch) when no messages
	// are available; it never blocks past ctx. Order within a batch follows
	// the broker's delivery order.
	Pull(ctx context.Context, subscription string, maxMessages int) ([]ReceivedMessage, error)

	// Acknowledge confirms processing of the deliveries identified by
	// ackIDs. Unacknowledged deliveries redeliver after the subscription's
	// ack deadline.
	Acknowledge(ctx context.Context, subscription string, ackIDs []string) error
}
