// Package kvutil holds shared helpers for the JetStream KeyValue buckets
// backing offsets and ring membership.
package kvutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const baseRetryDelay = 10 * time.Millisecond

// EnsureBucket creates or opens a KV bucket, retrying transient failures.
//
// Multiple processes racing to create the same bucket is the normal case
// here (every member ensures the offset and membership buckets at startup),
// so ErrBucketExists is handled by opening the existing bucket instead.
// Retries back off exponentially from 10ms; maxRetries <= 0 means 3.
//
// Example:
//
//	kv, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
//	    Bucket: "relay-offsets",
//	}, 3)
func EnsureBucket(
	ctx context.Context,
	js jetstream.JetStream,
	config jetstream.KeyValueConfig,
	maxRetries int,
) (jetstream.KeyValue, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error

	for attempt := range maxRetries {
		kv, err := createOrOpen(ctx, js, config)
		if err == nil {
			return kv, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("ensure KV bucket %s: %w", config.Bucket, ctx.Err())
		}

		if attempt == maxRetries-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(baseRetryDelay << uint(attempt)):
		}
	}

	return nil, fmt.Errorf("ensure KV bucket %s: %d attempts exhausted: %w",
		config.Bucket, maxRetries, lastErr)
}

func createOrOpen(ctx context.Context, js jetstream.JetStream, config jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	kv, err := js.CreateKeyValue(ctx, config)
	if err == nil {
		return kv, nil
	}

	if errors.Is(err, jetstream.ErrBucketExists) {
		kv, openErr := js.KeyValue(ctx, config.Bucket)
		if openErr == nil {
			return kv, nil
		}

		return nil, fmt.Errorf("bucket exists but failed to open: %w", openErr)
	}

	return nil, err
}
