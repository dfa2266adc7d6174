// Package memory provides an in-process Transport for tests and examples.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/arloliu/relay/types"
)

// ErrClosed is returned when operations are attempted on a closed transport.
var ErrClosed = errors.New("transport is closed")

const defaultAckDeadline = 30 * time.Second

// Transport is an in-process types.Transport implementation.
//
// Topics are append-only message logs; subscriptions are durable cursors
// with at-least-once redelivery. A pulled message that is not acknowledged
// within the subscription's ack deadline becomes eligible again on a later
// Pull, carrying a fresh ack ID. State lives and dies with the process.
//
// All methods are safe for concurrent use.
type Transport struct {
	mu      sync.Mutex
	topics  map[string]*topicState
	subs    map[string]*subState
	nextAck uint64
	closed  bool
}

type topicState struct {
	log []types.Message
}

type subState struct {
	topic       string
	ackDeadline time.Duration
	cursor      int
	inflight    map[string]inflightEntry
}

type inflightEntry struct {
	index     int
	expiresAt time.Time
}

// New creates an empty in-process transport.
func New() *Transport {
	return &Transport{
		topics: make(map[string]*topicState),
		subs:   make(map[string]*subState),
	}
}

// Compile-time assertion that Transport implements types.Transport.
var _ types.Transport = (*Transport)(nil)

// CreateTopic creates the topic if it does not exist.
func (t *Transport) CreateTopic(_ context.Context, topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if _, ok := t.topics[topic]; ok {
		return fmt.Errorf("topic %q: %w", topic, types.ErrAlreadyExists)
	}

	t.topics[topic] = &topicState{}

	return nil
}

// DeleteTopic removes the topic, its retained messages, and every
// subscription bound to it.
func (t *Transport) DeleteTopic(_ context.Context, topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if _, ok := t.topics[topic]; !ok {
		return fmt.Errorf("topic %q: %w", topic, types.ErrNotFound)
	}

	delete(t.topics, topic)
	for name, sub := range t.subs {
		if sub.topic == topic {
			delete(t.subs, name)
		}
	}

	return nil
}

// CreateSubscription creates a durable subscription bound to topic.
//
// Subscription names are unique across the whole transport. A non-positive
// ackDeadline falls back to 30 seconds.
func (t *Transport) CreateSubscription(_ context.Context, subscription, topic string, ackDeadline time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if _, ok := t.topics[topic]; !ok {
		return fmt.Errorf("topic %q: %w", topic, types.ErrNotFound)
	}
	if _, ok := t.subs[subscription]; ok {
		return fmt.Errorf("subscription %q: %w", subscription, types.ErrAlreadyExists)
	}

	if ackDeadline <= 0 {
		ackDeadline = defaultAckDeadline
	}

	t.subs[subscription] = &subState{
		topic:       topic,
		ackDeadline: ackDeadline,
		inflight:    make(map[string]inflightEntry),
	}

	return nil
}

// DeleteSubscription removes the subscription and its cursor.
func (t *Transport) DeleteSubscription(_ context.Context, subscription, topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	sub, ok := t.subs[subscription]
	if !ok || sub.topic != topic {
		return fmt.Errorf("subscription %q: %w", subscription, types.ErrNotFound)
	}

	delete(t.subs, subscription)

	return nil
}

// Publish appends msg to the topic log.
//
// The append is the durable accept: once Publish returns nil every
// subscription bound to the topic will eventually deliver the message.
func (t *Transport) Publish(_ context.Context, topic string, msg types.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	ts, ok := t.topics[topic]
	if !ok {
		return fmt.Errorf("topic %q: %w", topic, types.ErrNotFound)
	}

	ts.log = append(ts.log, msg)

	return nil
}

// Pull fetches up to maxMessages deliveries from the subscription.
//
// Deliveries whose ack deadline has lapsed are re-issued first (with fresh
// ack IDs), followed by unseen messages in log order. Pull never blocks.
func (t *Transport) Pull(_ context.Context, subscription string, maxMessages int) ([]types.ReceivedMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}

	sub, ok := t.subs[subscription]
	if !ok {
		return nil, fmt.Errorf("subscription %q: %w", subscription, types.ErrNotFound)
	}
	if maxMessages <= 0 {
		return nil, nil
	}

	topic := t.topics[sub.topic]
	now := time.Now()
	batch := make([]types.ReceivedMessage, 0, maxMessages)

	// Expired deliveries first, in original log order
	type redelivery struct {
		ackID string
		index int
	}
	var expired []redelivery
	for ackID, entry := range sub.inflight {
		if !entry.expiresAt.After(now) {
			expired = append(expired, redelivery{ackID: ackID, index: entry.index})
		}
	}
	slices.SortFunc(expired, func(a, b redelivery) int {
		return a.index - b.index
	})

	for _, rd := range expired {
		if len(batch) >= maxMessages {
			break
		}
		delete(sub.inflight, rd.ackID)
		batch = append(batch, t.deliverLocked(sub, topic.log[rd.index], rd.index, now))
	}

	// Then unseen messages from the cursor
	for sub.cursor < len(topic.log) && len(batch) < maxMessages {
		idx := sub.cursor
		sub.cursor++
		batch = append(batch, t.deliverLocked(sub, topic.log[idx], idx, now))
	}

	return batch, nil
}

// Acknowledge confirms the deliveries identified by ackIDs.
//
// Unknown or superseded ack IDs are ignored, so acknowledging twice or after
// a redelivery is harmless.
func (t *Transport) Acknowledge(_ context.Context, subscription string, ackIDs []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	sub, ok := t.subs[subscription]
	if !ok {
		return fmt.Errorf("subscription %q: %w", subscription, types.ErrNotFound)
	}

	for _, id := range ackIDs {
		delete(sub.inflight, id)
	}

	return nil
}

// Close marks the transport closed. All subsequent operations return
// ErrClosed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	t.closed = true
	t.topics = nil
	t.subs = nil

	return nil
}

// Published returns a snapshot of the messages appended to topic, in publish
// order. Returns nil for an unknown topic.
func (t *Transport) Published(topic string) []types.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	ts, ok := t.topics[topic]
	if !ok {
		return nil
	}

	return slices.Clone(ts.log)
}

// InflightCount returns the number of unacknowledged deliveries for the
// subscription. Returns 0 for an unknown subscription.
func (t *Transport) InflightCount(subscription string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub, ok := t.subs[subscription]
	if !ok {
		return 0
	}

	return len(sub.inflight)
}

// deliverLocked issues one delivery with a fresh ack ID. Caller holds t.mu.
func (t *Transport) deliverLocked(sub *subState, msg types.Message, index int, now time.Time) types.ReceivedMessage {
	t.nextAck++
	ackID := strconv.FormatUint(t.nextAck, 10)
	sub.inflight[ackID] = inflightEntry{index: index, expiresAt: now.Add(sub.ackDeadline)}

	return types.ReceivedMessage{Message: msg, AckID: ackID}
}
