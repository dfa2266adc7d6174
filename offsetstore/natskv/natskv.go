// Package natskv persists committed offsets in a NATS JetStream KeyValue
// bucket.
//
// Each (pipeline, tag) pair maps to one key holding the offset as a decimal
// string. Saves are guarded by the entry revision: a handle prepared at
// revision R writes with Update(key, value, R), so a concurrent writer that
// advanced the key first fails the save with ErrOffsetConflict instead of
// silently overwriting its progress. Fresh keys go through Create, which
// fails the same way when another writer got there first.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/relay/internal/kvutil"
	"github.com/arloliu/relay/types"
)

// DefaultBucket is the KV bucket name used by Open when none is given.
const DefaultBucket = "relay-offsets"

// Store is a types.OffsetStore backed by a NATS JetStream KV bucket.
// Safe for concurrent use; individual handles are not.
type Store struct {
	kv jetstream.KeyValue
}

// Compile-time assertion that Store implements OffsetStore.
var _ types.OffsetStore = (*Store)(nil)

// New creates a store on top of an existing KV bucket.
//
// Use Open to create or open the bucket in one step.
func New(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv}
}

// Open creates or opens the named KV bucket and returns a store on it.
//
// Multiple processes opening the same bucket concurrently is the normal
// case; the create/open race is retried internally.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - bucket: Bucket name (default: DefaultBucket)
//
// Returns:
//   - *Store: The offset store
//   - error: Bucket creation/open failure
//
// Example:
//
//	store, err := natskv.Open(ctx, js, "relay-offsets")
func Open(ctx context.Context, js jetstream.JetStream, bucket string) (*Store, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}

	kv, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "relay committed offsets",
		History:     1,
	}, 3)
	if err != nil {
		return nil, err
	}

	return New(kv), nil
}

// Prepare loads the committed offset for the pipeline/tag pair and returns
// a handle scoped to it. A pair that has never committed yields a handle
// whose Last() is OffsetNone.
func (s *Store) Prepare(ctx context.Context, pipeline string, tag types.Tag) (types.OffsetHandle, error) {
	key := offsetKey(pipeline, tag)

	e, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return &handle{kv: s.kv, key: key, last: types.OffsetNone}, nil
		}

		return nil, fmt.Errorf("failed to load offset key %s: %w", key, err)
	}

	offset, err := strconv.ParseInt(string(e.Value()), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed offset %q at key %s: %w", e.Value(), key, err)
	}

	return &handle{kv: s.kv, key: key, last: types.Offset(offset), revision: e.Revision()}, nil
}

// handle is a prepared cursor over one KV key. Owned by a single pipeline
// instance; not safe for concurrent use.
type handle struct {
	kv       jetstream.KeyValue
	key      string
	last     types.Offset
	revision uint64
}

// Compile-time assertion that handle implements OffsetHandle.
var _ types.OffsetHandle = (*handle)(nil)

// Last returns the most recently committed offset seen by this handle.
func (h *handle) Last() types.Offset { return h.last }

// Save commits offset as the new high-water mark for the pair.
//
// Saving the current offset again is a no-op and does not touch the
// server. A lower offset fails with ErrOffsetRegression. A key advanced by
// another writer since this handle last observed it fails with
// ErrOffsetConflict.
func (h *handle) Save(ctx context.Context, offset types.Offset) error {
	if offset < h.last {
		return fmt.Errorf("%w: committed %d, got %d", types.ErrOffsetRegression, h.last, offset)
	}

	if offset == h.last {
		return nil
	}

	value := []byte(strconv.FormatInt(int64(offset), 10))

	var (
		revision uint64
		err      error
	)

	if h.revision == 0 {
		// Never committed from this handle's point of view, so the key must
		// not exist yet. Create is atomic: losing the race means another
		// writer owns the pair now.
		revision, err = h.kv.Create(ctx, h.key, value)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyExists) {
				return fmt.Errorf("%w: key %s created by another writer: %w",
					types.ErrOffsetConflict, h.key, err)
			}

			return fmt.Errorf("failed to create offset key %s: %w", h.key, err)
		}
	} else {
		revision, err = h.kv.Update(ctx, h.key, value, h.revision)
		if err != nil {
			if isWrongRevision(err) {
				return fmt.Errorf("%w: key %s advanced past revision %d: %w",
					types.ErrOffsetConflict, h.key, h.revision, err)
			}

			return fmt.Errorf("failed to update offset key %s: %w", h.key, err)
		}
	}

	h.last = offset
	h.revision = revision

	return nil
}

// isWrongRevision reports whether err is the wrong-last-sequence rejection
// JetStream returns for an Update whose expected revision no longer matches
// the key.
func isWrongRevision(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}

	return false
}

// offsetKey builds the KV key for a pipeline/tag pair. Both parts are
// sanitized to the KV key character set, with '.' reserved as the
// separator between them.
func offsetKey(pipeline string, tag types.Tag) string {
	return sanitizeKeyPart(pipeline) + "." + sanitizeKeyPart(string(tag))
}

// sanitizeKeyPart replaces characters outside the NATS KV key character
// set (letters, digits, dash, underscore) with underscores.
func sanitizeKeyPart(s string) string {
	var result strings.Builder
	result.Grow(len(s))

	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result.WriteRune(r)
		case r == '-' || r == '_':
			result.WriteRune(r)
		default:
			result.WriteRune('_')
		}
	}

	return result.String()
}
