// Package kafka implements the Transport contract on Apache Kafka.
//
// Topics map to Kafka topics and subscriptions map to consumer groups.
// Kafka has no per-message ack deadline; an unacknowledged message is
// re-read when the group resumes from its last committed offset, so the
// redelivery window is the lifetime of the reader rather than a timer.
// Acknowledging a delivery commits its offset, which also commits every
// earlier offset in the same partition.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/arloliu/relay/internal/logger"
	"github.com/arloliu/relay/types"
)

// Default configuration values for the Kafka transport.
const (
	// DefaultNumPartitions is the partition count for created topics. A
	// single partition preserves publish order across the whole topic.
	DefaultNumPartitions = 1

	// DefaultReplicationFactor is the replication factor for created topics.
	DefaultReplicationFactor = 1

	// DefaultFetchMaxWait bounds how long one Pull waits for messages before
	// returning an empty batch.
	DefaultFetchMaxWait = 250 * time.Millisecond
)

// Header names used to carry message identity and attributes.
const (
	HeaderMsgID      = "relay-msg-id"
	headerAttrPrefix = "relay-attr-"
)

// Config configures the Kafka transport.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	// Required: Must be non-empty.
	Brokers []string

	// NumPartitions is the partition count for topics created by
	// CreateTopic.
	// Optional: Defaults to 1, which keeps the topic totally ordered.
	NumPartitions int

	// ReplicationFactor is the replication factor for created topics.
	// Optional: Defaults to 1.
	ReplicationFactor int

	// RequiredAcks controls producer durability.
	// Optional: Defaults to kafka.RequireAll.
	RequiredAcks kafka.RequiredAcks

	// FetchMaxWait is the maximum time one Pull waits for messages before
	// returning an empty batch.
	// Optional: Defaults to 250ms.
	FetchMaxWait time.Duration

	// StartOffset controls where a new consumer group starts reading.
	// Optional: Defaults to kafka.FirstOffset so a fresh subscription sees
	// the topic from the beginning.
	StartOffset int64

	// Logger for diagnostic messages.
	// Optional: Defaults to a no-op logger.
	Logger types.Logger
}

// applyDefaults applies default values to zero-valued configuration fields.
func (cfg *Config) applyDefaults() {
	if cfg.NumPartitions == 0 {
		cfg.NumPartitions = DefaultNumPartitions
	}
	if cfg.ReplicationFactor == 0 {
		cfg.ReplicationFactor = DefaultReplicationFactor
	}
	if cfg.RequiredAcks == 0 {
		cfg.RequiredAcks = kafka.RequireAll
	}
	if cfg.FetchMaxWait == 0 {
		cfg.FetchMaxWait = DefaultFetchMaxWait
	}
	if cfg.StartOffset == 0 {
		cfg.StartOffset = kafka.FirstOffset
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
}

// Transport implements types.Transport on Kafka.
//
// One shared writer serves every topic; each subscription owns a group
// reader created on CreateSubscription and closed on DeleteSubscription or
// Close.
type Transport struct {
	config Config
	client *kafka.Client
	writer *kafka.Writer
	logger types.Logger

	mu       sync.Mutex
	bindings map[string]*binding
	closed   bool
}

type binding struct {
	topic   string
	reader  *kafka.Reader
	pending map[string]kafka.Message
}

// Compile-time assertion that Transport implements types.Transport.
var _ types.Transport = (*Transport)(nil)

// New creates a Kafka transport.
//
// Parameters:
//   - cfg: Transport configuration; Brokers is required
//
// Returns:
//   - *Transport: Initialized transport
//   - error: Configuration error
//
// Example:
//
//	tr, err := kafka.New(kafka.Config{Brokers: []string{"localhost:9092"}})
func New(cfg Config) (*Transport, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one Kafka broker is required")
	}

	cfg.applyDefaults()

	return &Transport{
		config: cfg,
		client: &kafka.Client{Addr: kafka.TCP(cfg.Brokers...)},
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: cfg.RequiredAcks,
			BatchSize:    1,
			BatchTimeout: 10 * time.Millisecond,
		},
		logger:   cfg.Logger,
		bindings: make(map[string]*binding),
	}, nil
}

// CreateTopic creates the topic with the configured partition count.
func (t *Transport) CreateTopic(ctx context.Context, topic string) error {
	resp, err := t.client.CreateTopics(ctx, &kafka.CreateTopicsRequest{
		Topics: []kafka.TopicConfig{{
			Topic:             topic,
			NumPartitions:     t.config.NumPartitions,
			ReplicationFactor: t.config.ReplicationFactor,
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to create topic %q: %w", topic, err)
	}

	if topicErr := resp.Errors[topic]; topicErr != nil {
		if errors.Is(topicErr, kafka.TopicAlreadyExists) {
			return fmt.Errorf("topic %q: %w", topic, types.ErrAlreadyExists)
		}

		return fmt.Errorf("failed to create topic %q: %w", topic, topicErr)
	}

	t.logger.Debug("topic created", "topic", topic, "partitions", t.config.NumPartitions)

	return nil
}

// DeleteTopic removes the topic.
func (t *Transport) DeleteTopic(ctx context.Context, topic string) error {
	resp, err := t.client.DeleteTopics(ctx, &kafka.DeleteTopicsRequest{
		Topics: []string{topic},
	})
	if err != nil {
		return fmt.Errorf("failed to delete topic %q: %w", topic, err)
	}

	if topicErr := resp.Errors[topic]; topicErr != nil {
		if errors.Is(topicErr, kafka.UnknownTopicOrPartition) {
			return fmt.Errorf("topic %q: %w", topic, types.ErrNotFound)
		}

		return fmt.Errorf("failed to delete topic %q: %w", topic, topicErr)
	}

	t.logger.Debug("topic deleted", "topic", topic)

	return nil
}

// CreateSubscription binds a consumer group to the topic.
//
// Kafka creates groups implicitly on first join, so "create" here verifies
// the topic exists and opens the group reader. ackDeadline has no Kafka
// equivalent and is ignored; redelivery of unacknowledged messages happens
// when the group next resumes from its committed offset.
func (t *Transport) CreateSubscription(ctx context.Context, subscription, topic string, _ /* ackDeadline */ time.Duration) error {
	if err := t.topicExists(ctx, topic); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errors.New("transport is closed")
	}
	if _, ok := t.bindings[subscription]; ok {
		return fmt.Errorf("subscription %q: %w", subscription, types.ErrAlreadyExists)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     t.config.Brokers,
		GroupID:     subscription,
		Topic:       topic,
		StartOffset: t.config.StartOffset,
		MaxWait:     t.config.FetchMaxWait,
		// Commits are explicit via Acknowledge.
		CommitInterval: 0,
	})

	t.bindings[subscription] = &binding{
		topic:   topic,
		reader:  reader,
		pending: make(map[string]kafka.Message),
	}

	t.logger.Debug("consumer group bound", "group", subscription, "topic", topic)

	return nil
}

// DeleteSubscription closes the group reader and deletes the group.
func (t *Transport) DeleteSubscription(ctx context.Context, subscription, topic string) error {
	t.mu.Lock()
	b, ok := t.bindings[subscription]
	if ok {
		delete(t.bindings, subscription)
	}
	t.mu.Unlock()

	if ok && b.topic == topic {
		// Leave the group before asking the broker to delete it.
		if err := b.reader.Close(); err != nil {
			t.logger.Warn("failed to close reader", "group", subscription, "error", err)
		}
	}

	resp, err := t.client.DeleteGroups(ctx, &kafka.DeleteGroupsRequest{
		GroupIDs: []string{subscription},
	})
	if err != nil {
		return fmt.Errorf("failed to delete group %q: %w", subscription, err)
	}

	if groupErr := resp.Errors[subscription]; groupErr != nil {
		if errors.Is(groupErr, kafka.GroupIdNotFound) {
			return fmt.Errorf("group %q: %w", subscription, types.ErrNotFound)
		}

		return fmt.Errorf("failed to delete group %q: %w", subscription, groupErr)
	}

	t.logger.Debug("consumer group deleted", "group", subscription)

	return nil
}

// Publish writes msg to the topic and waits for the broker ack.
func (t *Transport) Publish(ctx context.Context, topic string, msg types.Message) error {
	kafkaMsg := toKafkaMessage(topic, msg)

	if err := t.writer.WriteMessages(ctx, kafkaMsg); err != nil {
		if errors.Is(err, kafka.UnknownTopicOrPartition) {
			return fmt.Errorf("topic %q: %w", topic, types.ErrNotFound)
		}

		return fmt.Errorf("failed to publish to %q: %w", topic, err)
	}

	return nil
}

// Pull fetches up to maxMessages deliveries, waiting at most FetchMaxWait.
func (t *Transport) Pull(ctx context.Context, subscription string, maxMessages int) ([]types.ReceivedMessage, error) {
	b, err := t.binding(subscription)
	if err != nil {
		return nil, err
	}
	if maxMessages <= 0 {
		return nil, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, t.config.FetchMaxWait)
	defer cancel()

	var received []types.ReceivedMessage
	for len(received) < maxMessages {
		kafkaMsg, err := b.reader.FetchMessage(fetchCtx)
		if err != nil {
			// The deadline draining means "nothing more right now", not a
			// failure; a canceled parent context is a real stop.
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break
			}
			if ctx.Err() != nil {
				return received, ctx.Err()
			}

			return received, fmt.Errorf("failed to fetch from %q: %w", subscription, err)
		}

		ackID := ackIDFor(kafkaMsg)
		t.mu.Lock()
		b.pending[ackID] = kafkaMsg
		t.mu.Unlock()

		received = append(received, types.ReceivedMessage{
			Message: fromKafkaMessage(kafkaMsg),
			AckID:   ackID,
		})
	}

	return received, nil
}

// Acknowledge commits the offsets of the identified deliveries.
//
// Committing an offset implicitly commits every earlier offset in the same
// partition; unknown ack IDs are ignored.
func (t *Transport) Acknowledge(ctx context.Context, subscription string, ackIDs []string) error {
	b, err := t.binding(subscription)
	if err != nil {
		return err
	}

	t.mu.Lock()
	msgs := make([]kafka.Message, 0, len(ackIDs))
	for _, id := range ackIDs {
		if msg, ok := b.pending[id]; ok {
			msgs = append(msgs, msg)
			delete(b.pending, id)
		}
	}
	t.mu.Unlock()

	if len(msgs) == 0 {
		return nil
	}

	if err := b.reader.CommitMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to commit on %q: %w", subscription, err)
	}

	return nil
}

// Close closes the writer and every group reader.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	bindings := t.bindings
	t.bindings = make(map[string]*binding)
	t.mu.Unlock()

	var errs []error
	if err := t.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close writer: %w", err))
	}
	for name, b := range bindings {
		if err := b.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close reader %q: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

// topicExists checks topic metadata and maps a missing topic to ErrNotFound.
func (t *Transport) topicExists(ctx context.Context, topic string) error {
	resp, err := t.client.Metadata(ctx, &kafka.MetadataRequest{
		Topics: []string{topic},
	})
	if err != nil {
		return fmt.Errorf("failed to query metadata for %q: %w", topic, err)
	}

	for _, tm := range resp.Topics {
		if tm.Name != topic {
			continue
		}
		if tm.Error != nil {
			if errors.Is(tm.Error, kafka.UnknownTopicOrPartition) {
				return fmt.Errorf("topic %q: %w", topic, types.ErrNotFound)
			}

			return fmt.Errorf("metadata for %q: %w", topic, tm.Error)
		}

		return nil
	}

	return fmt.Errorf("topic %q: %w", topic, types.ErrNotFound)
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

// toKafkaMessage converts a relay message into the wire representation. The
// message ID doubles as the partition key so retries of the same message
// land on the same partition.
func toKafkaMessage(topic string, msg types.Message) kafka.Message {
	kafkaMsg := kafka.Message{
		Topic: topic,
		Key:   []byte(msg.ID),
		Value: msg.Data,
	}

	if msg.ID != "" {
		kafkaMsg.Headers = append(kafkaMsg.Headers, kafka.Header{Key: HeaderMsgID, Value: []byte(msg.ID)})
	}
	for key, value := range msg.Attributes {
		kafkaMsg.Headers = append(kafkaMsg.Headers, kafka.Header{Key: headerAttrPrefix + key, Value: []byte(value)})
	}

	return kafkaMsg
}

// fromKafkaMessage reconstructs a relay message from the wire representation.
func fromKafkaMessage(kafkaMsg kafka.Message) types.Message {
	msg := types.Message{Data: kafkaMsg.Value}

	for _, h := range kafkaMsg.Headers {
		switch {
		case h.Key == HeaderMsgID:
			msg.ID = string(h.Value)
		case strings.HasPrefix(h.Key, headerAttrPrefix):
			msg.SetAttribute(strings.TrimPrefix(h.Key, headerAttrPrefix), string(h.Value))
		}
	}

	return msg
}

// ackIDFor derives the delivery's ack ID from its partition and offset.
func ackIDFor(msg kafka.Message) string {
	return strconv.Itoa(msg.Partition) + ":" + strconv.FormatInt(msg.Offset, 10)
}
