package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/arloliu/relay/types"
)

// Encoder converts one application event into a broker message.
//
// Encoders run on the publisher's hot path and must be deterministic enough
// for redelivery: encoding the same event twice should produce an equivalent
// message body.
type Encoder[E any] func(event E) (Message, error)

// JSONEncoder returns an Encoder that marshals events as JSON, assigning a
// fresh message ID per event.
//
// Returns:
//   - Encoder[E]: JSON encoder usable with NewPublisher
func JSONEncoder[E any]() Encoder[E] {
	return func(event E) (Message, error) {
		data, err := json.Marshal(event)
		if err != nil {
			return Message{}, fmt.Errorf("failed to encode event: %w", err)
		}

		return NewMessage(data), nil
	}
}

// Publisher drains one tag's event stream into its topic in offset order.
//
// A publisher is a single-use Pipeline: each Run provisions the topic and
// loads the committed offset concurrently, then resumes streaming strictly
// after that offset. Every message is published and its offset committed
// before the next event is read, so a crash at any point re-delivers at most
// the events after the last committed offset. Publishers never retry an
// individual message; any failure ends the run and supervision restarts a
// fresh instance.
type Publisher[E any] struct {
	tag       Tag
	topic     string
	scope     string
	transport Transport
	store     OffsetStore
	source    EventSource[E]
	encode    Encoder[E]

	provisioner *Provisioner
	opTimeout   time.Duration

	logger  Logger
	metrics MetricsCollector
	hooks   *Hooks

	state   atomic.Int32
	running atomic.Bool
}

// Compile-time assertion that Publisher implements Pipeline.
var _ types.Pipeline = (*Publisher[any])(nil)

// NewPublisher creates a publisher pipeline for one tag.
//
// The publisher's topic is tag.TopicName(cfg.Namespace) and its offsets are
// stored under the namespace scope, so deployments with distinct namespaces
// never share topics or offsets.
//
// Parameters:
//   - cfg: Shared configuration (defaults applied, then validated)
//   - tag: Sub-stream this publisher serves
//   - transport: Broker transport
//   - store: Offset store for resume positions
//   - source: Application event feed
//   - encode: Event-to-message transform; nil selects JSONEncoder[E]
//   - opts: Optional logger, metrics and hooks
//
// Returns:
//   - *Publisher[E]: Initialized publisher in the Idle state
//   - error: Configuration or wiring error
//
// Example:
//
//	pub, err := relay.NewPublisher(&cfg, "orders-0", transport, store, journal, nil)
//	if err != nil {
//	    return err
//	}
//	err = pub.Run(ctx)
func NewPublisher[E any](
	cfg *Config,
	tag Tag,
	transport Transport,
	store OffsetStore,
	source EventSource[E],
	encode Encoder[E],
	opts ...Option,
) (*Publisher[E], error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if transport == nil {
		return nil, ErrTransportRequired
	}
	if store == nil {
		return nil, ErrOffsetStoreRequired
	}
	if source == nil {
		return nil, ErrSourceRequired
	}
	if tag == "" {
		return nil, fmt.Errorf("%w: tag is empty", ErrInvalidConfig)
	}

	SetDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if encode == nil {
		encode = JSONEncoder[E]()
	}

	o := applyOptions(opts)

	provisioner, err := NewProvisioner(transport, opts...)
	if err != nil {
		return nil, err
	}

	p := &Publisher[E]{
		tag:         tag,
		topic:       tag.TopicName(cfg.Namespace),
		scope:       offsetScope(cfg.Namespace),
		transport:   transport,
		store:       store,
		source:      source,
		encode:      encode,
		provisioner: provisioner,
		opTimeout:   cfg.OperationTimeout,
		logger:      o.logger,
		metrics:     o.metrics,
		hooks:       o.hooks,
	}
	p.state.Store(int32(PublisherIdle))

	return p, nil
}

// offsetScope derives the offset store's pipeline identifier from the
// deployment namespace.
func offsetScope(namespace string) string {
	if namespace == "" {
		return "default"
	}

	return namespace
}

// Name identifies the publisher in logs, metrics and supervision.
func (p *Publisher[E]) Name() string {
	return "publisher-" + p.tag.String()
}

// State returns the current lifecycle state.
func (p *Publisher[E]) State() PublisherState {
	return PublisherState(p.state.Load())
}

// Run executes the publisher until its stream completes, a failure occurs or
// ctx is cancelled. Publishers are single-use; a second Run returns
// ErrAlreadyStarted.
func (p *Publisher[E]) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	err := p.run(ctx)
	if err != nil {
		p.transition(ctx, PublisherFailed)
		return err
	}

	p.transition(ctx, PublisherCompleted)

	return nil
}

// setupResult carries the outcome of one concurrent setup phase.
type setupResult struct {
	phase  string
	handle OffsetHandle
	err    error
}

func (p *Publisher[E]) run(ctx context.Context) error {
	p.transition(ctx, PublisherProvisioningTopic)

	handle, err := p.setup(ctx)
	if err != nil {
		return err
	}

	p.transition(ctx, PublisherStreaming)
	p.logger.Info("publisher streaming",
		"tag", p.tag,
		"topic", p.topic,
		"resume_after", handle.Last(),
	)

	stream, err := p.source.Stream(ctx, p.tag, handle.Last())
	if err != nil {
		return fmt.Errorf("failed to open event stream for tag %s: %w", p.tag, err)
	}
	defer stream.Close()

	committed := handle.Last()

	for {
		rec, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrEndOfStream) {
				p.logger.Info("event stream completed", "tag", p.tag, "last_offset", committed)
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return fmt.Errorf("failed to read event for tag %s: %w", p.tag, err)
		}

		// Source offsets must strictly increase past the resume point; a
		// violation means replayed or reordered history and publishing it
		// would break the per-tag ordering guarantee.
		if rec.Offset <= committed {
			return fmt.Errorf("%w: tag %s yielded offset %d after %d",
				ErrOffsetOutOfOrder, p.tag, rec.Offset, committed)
		}

		msg, err := p.encode(rec.Event)
		if err != nil {
			return &ProcessingError{Err: fmt.Errorf("encode event at offset %d: %w", rec.Offset, err)}
		}

		start := time.Now()
		err = p.transport.Publish(ctx, p.topic, msg)
		p.metrics.RecordPublish(p.tag.String(), err == nil, time.Since(start).Seconds())

		if err != nil {
			return &TransportError{Op: "publish", Err: err}
		}

		if err := handle.Save(ctx, rec.Offset); err != nil {
			return fmt.Errorf("failed to commit offset %d for tag %s: %w", rec.Offset, p.tag, err)
		}

		committed = rec.Offset
		p.metrics.RecordOffsetCommit(p.tag.String(), int64(rec.Offset))
	}
}

// setup provisions the topic and loads the committed offset concurrently.
// Both must succeed before streaming starts; the first failure wins and the
// straggler is cancelled.
func (p *Publisher[E]) setup(ctx context.Context) (OffsetHandle, error) {
	setupCtx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()

	// Buffered so a late result never blocks an abandoned goroutine.
	results := make(chan setupResult, 2)

	go func() {
		results <- setupResult{phase: "topic", err: p.provisioner.EnsureTopic(setupCtx, p.topic)}
	}()

	go func() {
		handle, err := p.store.Prepare(setupCtx, p.scope, p.tag)
		results <- setupResult{phase: "offset", handle: handle, err: err}
	}()

	var handle OffsetHandle

	for range 2 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-results:
			if res.err != nil {
				if res.phase == "offset" {
					return nil, fmt.Errorf("failed to prepare offset store for tag %s: %w", p.tag, res.err)
				}

				return nil, res.err
			}
			if res.phase == "topic" {
				// Topic is ready; the offset load is the phase still
				// outstanding (possibly already finished).
				p.transition(ctx, PublisherLoadingOffset)
			} else {
				handle = res.handle
			}
		}
	}

	return handle, nil
}

// transition moves the lifecycle state, records it and fires the state hook
// in the background.
func (p *Publisher[E]) transition(ctx context.Context, to PublisherState) {
	from := PublisherState(p.state.Load())
	if !from.CanTransition(to) {
		p.logger.Error("invalid publisher state transition",
			"tag", p.tag,
			"from", from.String(),
			"to", to.String(),
		)

		return
	}

	p.state.Store(int32(to))
	p.logger.Info("publisher state transition",
		"tag", p.tag,
		"from", from.String(),
		"to", to.String(),
	)
	p.metrics.RecordPublisherState(p.tag.String(), from, to)

	if p.hooks.OnPublisherStateChanged != nil {
		go func() {
			if err := p.hooks.OnPublisherStateChanged(ctx, p.tag, from, to); err != nil {
				p.logger.Warn("publisher state hook failed",
					"tag", p.tag,
					"from", from.String(),
					"to", to.String(),
					"error", err,
				)
			}
		}()
	}
}
