package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/relay/types"
)

// Processor is the caller-supplied stage that consumes delivered messages.
//
// Process is called once per delivery, in delivery order, from a single
// goroutine. Returning an error fails the pipeline run; the message is not
// acknowledged and redelivers after the ack deadline once supervision
// restarts the consumer.
type Processor interface {
	Process(ctx context.Context, msg ReceivedMessage) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, msg ReceivedMessage) error

// Process calls f(ctx, msg).
func (f ProcessorFunc) Process(ctx context.Context, msg ReceivedMessage) error {
	return f(ctx, msg)
}

// JSONProcessor decodes JSON message bodies into E before handing them to fn.
//
// Returns:
//   - Processor: Decoding processor usable with NewSubscriber
//
// Example:
//
//	proc := relay.JSONProcessor(func(ctx context.Context, order Order) error {
//	    return handle(ctx, order)
//	})
func JSONProcessor[E any](fn func(ctx context.Context, event E) error) Processor {
	return ProcessorFunc(func(ctx context.Context, msg ReceivedMessage) error {
		var event E
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return fmt.Errorf("failed to decode event %s: %w", msg.ID, err)
		}

		return fn(ctx, event)
	})
}

// Subscriber consumes one subscription with paced pulls and batched
// acknowledgements.
//
// A subscriber is a single-use Pipeline. Each Run provisions the topic and
// subscription, then runs three loops: a pull loop fetching batches on a
// fixed interval, a processing loop invoking the Processor per message, and
// a flush loop acknowledging processed deliveries in batches. The delivery
// buffer between pulling and processing is bounded; when it fills, pulling
// blocks rather than dropping messages. Ack batches flush when they reach
// BatchingSize or when BatchingInterval has passed since the batch's first
// delivery, whichever comes first. Unflushed acknowledgements are abandoned
// on failure or stop; those deliveries redeliver after the ack deadline.
type Subscriber struct {
	subscription string
	topic        string
	transport    Transport
	processor    Processor
	consumer     ConsumerConfig

	provisioner *Provisioner
	opTimeout   time.Duration

	logger  Logger
	metrics MetricsCollector
	hooks   *Hooks

	running atomic.Bool
}

// Compile-time assertion that Subscriber implements Pipeline.
var _ types.Pipeline = (*Subscriber)(nil)

// NewSubscriber creates a consumer pipeline for one subscription.
//
// The subscription binds to the tag's topic under cfg.Namespace. The
// subscription name is used verbatim; distinct consumer groups pick distinct
// names.
//
// Parameters:
//   - cfg: Shared configuration (defaults applied, then validated)
//   - subscription: Durable subscription name
//   - tag: Tag whose topic this subscription consumes
//   - transport: Broker transport
//   - processor: Per-message processing stage
//   - opts: Optional logger, metrics and hooks
//
// Returns:
//   - *Subscriber: Initialized subscriber
//   - error: Configuration or wiring error
//
// Example:
//
//	sub, err := relay.NewSubscriber(&cfg, "billing", "orders-0", transport,
//	    relay.JSONProcessor(handleOrder))
//	if err != nil {
//	    return err
//	}
//	err = sub.Run(ctx)
func NewSubscriber(
	cfg *Config,
	subscription string,
	tag Tag,
	transport Transport,
	processor Processor,
	opts ...Option,
) (*Subscriber, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if transport == nil {
		return nil, ErrTransportRequired
	}
	if processor == nil {
		return nil, ErrProcessorRequired
	}
	if subscription == "" {
		return nil, fmt.Errorf("%w: subscription name is empty", ErrInvalidConfig)
	}
	if tag == "" {
		return nil, fmt.Errorf("%w: tag is empty", ErrInvalidConfig)
	}

	SetDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	o := applyOptions(opts)

	provisioner, err := NewProvisioner(transport, opts...)
	if err != nil {
		return nil, err
	}

	return &Subscriber{
		subscription: subscription,
		topic:        tag.TopicName(cfg.Namespace),
		transport:    transport,
		processor:    processor,
		consumer:     cfg.Consumer,
		provisioner:  provisioner,
		opTimeout:    cfg.OperationTimeout,
		logger:       o.logger,
		metrics:      o.metrics,
		hooks:        o.hooks,
	}, nil
}

// Name identifies the subscriber in logs, metrics and supervision.
func (s *Subscriber) Name() string {
	return "subscriber-" + s.subscription
}

// Run executes the consumer until a failure occurs or ctx is cancelled.
// Consumers have no natural end of input and only return on stop or error.
// Subscribers are single-use; a second Run returns ErrAlreadyStarted.
func (s *Subscriber) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	setupCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	err := s.setup(setupCtx)
	cancel()

	if err != nil {
		return err
	}

	s.logger.Info("subscriber consuming",
		"subscription", s.subscription,
		"topic", s.topic,
		"pull_interval", s.consumer.PullInterval,
	)

	// The three loops share a cancel scope: the first failure cancels the
	// other two, and the loops themselves treat cancellation as a clean
	// wind-down.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	msgCh := make(chan ReceivedMessage, s.consumer.BufferSize)
	ackCh := make(chan string, s.consumer.BatchingSize)
	errCh := make(chan error, 3)

	var wg sync.WaitGroup

	wg.Go(func() {
		if err := s.pullLoop(runCtx, msgCh); err != nil {
			errCh <- err
			stop()
		}
	})
	wg.Go(func() {
		if err := s.processLoop(runCtx, msgCh, ackCh); err != nil {
			errCh <- err
			stop()
		}
	})
	wg.Go(func() {
		if err := s.flushLoop(runCtx, ackCh); err != nil {
			errCh <- err
			stop()
		}
	})

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

func (s *Subscriber) setup(ctx context.Context) error {
	if err := s.provisioner.EnsureTopic(ctx, s.topic); err != nil {
		return err
	}

	return s.provisioner.EnsureSubscription(ctx, s.subscription, s.topic, s.consumer.AckDeadline)
}

// pullLoop fetches delivery batches on a fixed interval and feeds them to
// the processing stage. A full buffer blocks the feed, which in turn delays
// the next pull; nothing is ever dropped.
func (s *Subscriber) pullLoop(ctx context.Context, msgCh chan<- ReceivedMessage) error {
	ticker := time.NewTicker(s.consumer.PullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			msgs, err := s.transport.Pull(ctx, s.subscription, s.consumer.PullBatchSize)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}

				return &TransportError{Op: "pull", Err: err}
			}

			s.metrics.RecordPullBatch(s.subscription, len(msgs))

			for _, msg := range msgs {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// processLoop invokes the processing stage once per delivery, in order, and
// forwards successful deliveries to the ack flusher.
func (s *Subscriber) processLoop(ctx context.Context, msgCh <-chan ReceivedMessage, ackCh chan<- string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgCh:
			start := time.Now()
			err := s.processor.Process(ctx, msg)
			s.metrics.RecordProcess(s.subscription, err == nil, time.Since(start).Seconds())

			if err != nil {
				return &ProcessingError{MessageID: msg.ID, Err: err}
			}

			select {
			case ackCh <- msg.AckID:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// flushLoop collects processed deliveries and acknowledges them in batches.
// A batch flushes when it reaches BatchingSize or when BatchingInterval has
// passed since its first delivery.
func (s *Subscriber) flushLoop(ctx context.Context, ackCh <-chan string) error {
	timer := time.NewTimer(s.consumer.BatchingInterval)
	timer.Stop()
	defer timer.Stop()

	pending := make([]string, 0, s.consumer.BatchingSize)

	flush := func(reason string) error {
		if len(pending) == 0 {
			return nil
		}

		if err := s.transport.Acknowledge(ctx, s.subscription, pending); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return &TransportError{Op: "acknowledge", Err: err}
		}

		size := len(pending)
		s.metrics.RecordAckFlush(s.subscription, size, reason)
		s.logger.Debug("ack batch flushed",
			"subscription", s.subscription,
			"size", size,
			"reason", reason,
		)

		if s.hooks.OnBatchFlushed != nil {
			go func() {
				if err := s.hooks.OnBatchFlushed(ctx, s.subscription, size); err != nil {
					s.logger.Warn("batch flush hook failed",
						"subscription", s.subscription,
						"error", err,
					)
				}
			}()
		}

		pending = make([]string, 0, s.consumer.BatchingSize)

		return nil
	}

	for {
		select {
		case <-ctx.Done():
			// Unflushed acknowledgements are abandoned; their deliveries
			// redeliver after the ack deadline.
			if len(pending) > 0 {
				s.logger.Debug("abandoning unflushed acks",
					"subscription", s.subscription,
					"count", len(pending),
				)
			}

			return nil
		case <-timer.C:
			if err := flush("interval"); err != nil {
				return err
			}
		case ackID := <-ackCh:
			pending = append(pending, ackID)

			// The interval clock starts at the batch's first delivery, not
			// at the previous flush.
			if len(pending) == 1 {
				timer.Reset(s.consumer.BatchingInterval)
			}

			if len(pending) >= s.consumer.BatchingSize {
				timer.Stop()

				if err := flush("size"); err != nil {
					return err
				}
			}
		}
	}
}
