// Package natsjs implements the Transport contract on NATS JetStream.
//
// Topics map to JetStream streams and subscriptions map to durable pull
// consumers. Offsets of the relay layer are not related to JetStream
// sequences; they travel inside message attributes and are managed by the
// offset store.
package natsjs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/relay/internal/logger"
	"github.com/arloliu/relay/internal/natsutil"
	"github.com/arloliu/relay/types"
)

// Default configuration values for the JetStream transport.
const (
	// DefaultMaxWaiting is the default maximum number of outstanding pull
	// requests per consumer.
	DefaultMaxWaiting = 512

	// DefaultReplicas is the default stream and consumer replica count.
	DefaultReplicas = 1
)

// Header names used to carry message identity and attributes.
//
// HeaderMsgID doubles as the JetStream deduplication key: republishing the
// same message inside the stream's duplicate window is accepted without
// appending a second copy.
const (
	HeaderMsgID      = "Nats-Msg-Id"
	headerAttrPrefix = "Relay-Attr-"
)

// Config configures the JetStream transport.
type Config struct {
	// Storage selects the stream storage backend.
	// Optional: Defaults to jetstream.FileStorage.
	Storage jetstream.StorageType

	// Replicas is the stream and consumer replica count.
	// Optional: Defaults to 1.
	Replicas int

	// MaxWaiting is the maximum number of outstanding pull requests allowed
	// per consumer.
	// Optional: Defaults to 512.
	MaxWaiting int

	// InactiveThreshold is the duration after which NATS removes an unused
	// consumer.
	// Optional: Defaults to 0, which keeps durable consumers forever.
	InactiveThreshold time.Duration

	// DuplicateWindow is the stream's deduplication window for message IDs.
	// Optional: Defaults to the server default (2 minutes) when zero.
	DuplicateWindow time.Duration

	// Logger for diagnostic messages.
	// Optional: Defaults to a no-op logger.
	Logger types.Logger
}

// applyDefaults applies default values to zero-valued configuration fields.
func (cfg *Config) applyDefaults() {
	if cfg.Storage == 0 {
		cfg.Storage = jetstream.FileStorage
	}
	if cfg.Replicas == 0 {
		cfg.Replicas = DefaultReplicas
	}
	if cfg.MaxWaiting == 0 {
		cfg.MaxWaiting = DefaultMaxWaiting
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
}

// Transport implements types.Transport on NATS JetStream.
//
// The caller owns the NATS connection; the transport never closes it. One
// transport instance is safe for concurrent use by every pipeline in the
// process.
type Transport struct {
	js     jetstream.JetStream
	config Config
	logger types.Logger

	// Pull-side state. Bindings are established by CreateSubscription and
	// keep the consumer handle plus the unacknowledged deliveries keyed by
	// ack ID.
	mu       sync.Mutex
	bindings map[string]*binding
}

type binding struct {
	stream   string
	consumer jetstream.Consumer
	pending  map[string]jetstream.Msg
}

// Compile-time assertion that Transport implements types.Transport.
var _ types.Transport = (*Transport)(nil)

// New creates a JetStream transport on an existing NATS connection.
//
// Parameters:
//   - conn: NATS connection (required, owned by the caller)
//   - cfg: Transport configuration with defaults applied to zero fields
//
// Returns:
//   - *Transport: Initialized transport
//   - error: Connection or JetStream context error
//
// Example:
//
//	nc, _ := nats.Connect(nats.DefaultURL)
//	tr, err := natsjs.New(nc, natsjs.Config{})
func New(conn *nats.Conn, cfg Config) (*Transport, error) {
	if conn == nil {
		return nil, errors.New("NATS connection is required")
	}

	cfg.applyDefaults()

	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Transport{
		js:       js,
		config:   cfg,
		logger:   cfg.Logger,
		bindings: make(map[string]*binding),
	}, nil
}

// CreateTopic creates a stream named after the topic.
//
// The stream retains messages under the limits policy and carries a single
// subject equal to the sanitized topic name.
func (t *Transport) CreateTopic(ctx context.Context, topic string) error {
	name := sanitizeName(topic)

	_, err := t.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:       name,
		Subjects:   []string{name},
		Storage:    t.config.Storage,
		Replicas:   t.config.Replicas,
		Retention:  jetstream.LimitsPolicy,
		Duplicates: t.config.DuplicateWindow,
	})
	if err != nil {
		if natsutil.IsAlreadyExists(err) {
			return fmt.Errorf("stream %q: %w", name, types.ErrAlreadyExists)
		}

		return fmt.Errorf("failed to create stream %q: %w", name, err)
	}

	t.logger.Debug("stream created", "stream", name)

	return nil
}

// DeleteTopic removes the stream and its retained messages.
func (t *Transport) DeleteTopic(ctx context.Context, topic string) error {
	name := sanitizeName(topic)

	if err := t.js.DeleteStream(ctx, name); err != nil {
		if natsutil.IsNotFound(err) {
			return fmt.Errorf("stream %q: %w", name, types.ErrNotFound)
		}

		return fmt.Errorf("failed to delete stream %q: %w", name, err)
	}

	t.logger.Debug("stream deleted", "stream", name)

	return nil
}

// CreateSubscription creates a durable pull consumer on the topic's stream.
//
// ackDeadline maps to the consumer's AckWait. The subscription is also bound
// locally so Pull and Acknowledge can resolve it without a topic argument;
// the binding is established even when the consumer already exists.
func (t *Transport) CreateSubscription(ctx context.Context, subscription, topic string, ackDeadline time.Duration) error {
	streamName := sanitizeName(topic)
	consumerName := sanitizeName(subscription)

	stream, err := t.js.Stream(ctx, streamName)
	if err != nil {
		if natsutil.IsNotFound(err) {
			return fmt.Errorf("stream %q: %w", streamName, types.ErrNotFound)
		}

		return fmt.Errorf("failed to get stream %q: %w", streamName, err)
	}

	consumer, createErr := stream.CreateConsumer(ctx, jetstream.ConsumerConfig{
		Name:              consumerName,
		Durable:           consumerName,
		FilterSubject:     streamName,
		AckPolicy:         jetstream.AckExplicitPolicy,
		AckWait:           ackDeadline,
		MaxDeliver:        -1,
		MaxWaiting:        t.config.MaxWaiting,
		InactiveThreshold: t.config.InactiveThreshold,
		Replicas:          t.config.Replicas,
	})
	if createErr != nil {
		if !natsutil.IsAlreadyExists(createErr) {
			return fmt.Errorf("failed to create consumer %q: %w", consumerName, createErr)
		}

		// Raced or re-run: fetch the existing consumer so the binding still
		// points at a live handle, then report what happened.
		consumer, err = stream.Consumer(ctx, consumerName)
		if err != nil {
			return fmt.Errorf("failed to get consumer %q after create race: %w", consumerName, err)
		}
	}

	t.bind(subscription, streamName, consumer)

	if createErr != nil {
		return fmt.Errorf("consumer %q: %w", consumerName, types.ErrAlreadyExists)
	}

	t.logger.Debug("consumer created", "stream", streamName, "consumer", consumerName, "ackWait", ackDeadline)

	return nil
}

// DeleteSubscription removes the durable consumer and its local binding.
func (t *Transport) DeleteSubscription(ctx context.Context, subscription, topic string) error {
	streamName := sanitizeName(topic)
	consumerName := sanitizeName(subscription)

	t.mu.Lock()
	delete(t.bindings, subscription)
	t.mu.Unlock()

	stream, err := t.js.Stream(ctx, streamName)
	if err != nil {
		if natsutil.IsNotFound(err) {
			return fmt.Errorf("stream %q: %w", streamName, types.ErrNotFound)
		}

		return fmt.Errorf("failed to get stream %q: %w", streamName, err)
	}

	if err := stream.DeleteConsumer(ctx, consumerName); err != nil {
		if natsutil.IsNotFound(err) {
			return fmt.Errorf("consumer %q: %w", consumerName, types.ErrNotFound)
		}

		return fmt.Errorf("failed to delete consumer %q: %w", consumerName, err)
	}

	t.logger.Debug("consumer deleted", "stream", streamName, "consumer", consumerName)

	return nil
}

// Publish sends msg to the topic's stream and waits for the broker ack.
//
// The message ID travels in the Nats-Msg-Id header, which also enables
// JetStream deduplication inside the stream's duplicate window; attributes
// are carried as Relay-Attr-* headers.
func (t *Transport) Publish(ctx context.Context, topic string, msg types.Message) error {
	subject := sanitizeName(topic)

	m := &nats.Msg{
		Subject: subject,
		Data:    msg.Data,
		Header:  make(nats.Header, len(msg.Attributes)+1),
	}
	if msg.ID != "" {
		m.Header.Set(HeaderMsgID, msg.ID)
	}
	for key, value := range msg.Attributes {
		// Assign directly to keep attribute keys case-sensitive; Set would
		// canonicalize them.
		m.Header[headerAttrPrefix+key] = []string{value}
	}

	ack, err := t.js.PublishMsg(ctx, m)
	if err != nil {
		if natsutil.IsNotFound(err) || errors.Is(err, jetstream.ErrNoStreamResponse) {
			return fmt.Errorf("stream %q: %w", subject, types.ErrNotFound)
		}

		return fmt.Errorf("failed to publish to %q: %w", subject, err)
	}

	if ack.Duplicate {
		t.logger.Debug("publish deduplicated", "subject", subject, "msgID", msg.ID)
	}

	return nil
}

// Pull fetches up to maxMessages deliveries without waiting for more to
// arrive.
//
// Pull requires a prior CreateSubscription call on this transport instance;
// an unbound subscription reports ErrNotFound.
func (t *Transport) Pull(ctx context.Context, subscription string, maxMessages int) ([]types.ReceivedMessage, error) {
	b, err := t.binding(subscription)
	if err != nil {
		return nil, err
	}
	if maxMessages <= 0 {
		return nil, nil
	}

	batch, err := b.consumer.FetchNoWait(maxMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch from %q: %w", subscription, err)
	}

	var received []types.ReceivedMessage
	for msg := range batch.Messages() {
		if ctx.Err() != nil {
			// Shutting down mid-batch: leave the rest unacked for redelivery.
			break
		}
		received = append(received, t.track(b, msg))
	}
	if err := batch.Error(); err != nil {
		return received, fmt.Errorf("fetch from %q failed: %w", subscription, err)
	}

	return received, nil
}

// Acknowledge acks the deliveries identified by ackIDs.
//
// Ack IDs of deliveries that were superseded by a redelivery are ignored;
// acknowledging is idempotent from the caller's point of view.
func (t *Transport) Acknowledge(_ context.Context, subscription string, ackIDs []string) error {
	b, err := t.binding(subscription)
	if err != nil {
		return err
	}

	t.mu.Lock()
	msgs := make([]jetstream.Msg, 0, len(ackIDs))
	for _, id := range ackIDs {
		if msg, ok := b.pending[id]; ok {
			msgs = append(msgs, msg)
			delete(b.pending, id)
		}
	}
	t.mu.Unlock()

	for _, msg := range msgs {
		if err := msg.Ack(); err != nil {
			return fmt.Errorf("failed to ack on %q: %w", subscription, err)
		}
	}

	return nil
}

// bind records the subscription's consumer handle for Pull/Acknowledge.
func (t *Transport) bind(subscription, stream string, consumer jetstream.Consumer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.bindings[subscription]; ok {
		existing.stream = stream
		existing.consumer = consumer
		return
	}

	t.bindings[subscription] = &binding{
		stream:   stream,
		consumer: consumer,
		pending:  make(map[string]jetstream.Msg),
	}
}

func (t *Transport) binding(subscription string) (*binding, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.bindings[subscription]
	if !ok {
		return nil, fmt.Errorf("subscription %q is not bound, create it first: %w", subscription, types.ErrNotFound)
	}

	return b, nil
}

// track registers a delivery in the pending map and converts it.
//
// The ack ID is the message's stream sequence, so a redelivery replaces the
// previous delivery's entry instead of leaking it.
func (t *Transport) track(b *binding, msg jetstream.Msg) types.ReceivedMessage {
	var ackID string
	if meta, err := msg.Metadata(); err == nil {
		ackID = strconv.FormatUint(meta.Sequence.Stream, 10)
	} else {
		ackID = msg.Reply()
	}

	t.mu.Lock()
	b.pending[ackID] = msg
	t.mu.Unlock()

	out := types.Message{Data: msg.Data()}
	for key, values := range msg.Headers() {
		if len(values) == 0 {
			continue
		}
		switch {
		case key == HeaderMsgID:
			out.ID = values[0]
		case strings.HasPrefix(key, headerAttrPrefix):
			out.SetAttribute(strings.TrimPrefix(key, headerAttrPrefix), values[0])
		}
	}

	return types.ReceivedMessage{Message: out, AckID: ackID}
}

// sanitizeName replaces characters NATS forbids in stream and consumer names
// with underscores. The result is also used as the stream's only subject.
func sanitizeName(name string) string {
	var result strings.Builder
	result.Grow(len(name))

	for _, r := range name {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || // whitespace
			r == '.' || r == '*' || r == '>' || // special chars
			r == '/' || r == '\\' || // path separators
			r < 32 || r == 127 { // non-printable
			result.WriteRune('_')
		} else {
			result.WriteRune(r)
		}
	}

	return result.String()
}
