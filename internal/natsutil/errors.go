// Package natsutil maps NATS JetStream errors onto relay sentinel errors.
//
// Kept in internal/natsutil so the types/ package stays free of NATS
// dependencies.
package natsutil

import (
	"errors"

	"github.com/nats-io/nats.go/jetstream"
)

// IsAlreadyExists reports whether err means the stream, consumer, bucket or
// key being created is already present.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) ||
		errors.Is(err, jetstream.ErrConsumerExists) ||
		errors.Is(err, jetstream.ErrConsumerNameAlreadyInUse) ||
		errors.Is(err, jetstream.ErrBucketExists) ||
		errors.Is(err, jetstream.ErrKeyExists)
}

// IsNotFound reports whether err means the stream, consumer, bucket or key
// being accessed does not exist.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, jetstream.ErrStreamNotFound) ||
		errors.Is(err, jetstream.ErrConsumerNotFound) ||
		errors.Is(err, jetstream.ErrBucketNotFound) ||
		errors.Is(err, jetstream.ErrKeyNotFound) ||
		errors.Is(err, jetstream.ErrNoKeysFound)
}
