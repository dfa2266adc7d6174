package relay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// TagPipelineFactory constructs a fresh publisher pipeline for a tag. It is
// called every time supervision (re)starts the tag's publisher.
type TagPipelineFactory func(tag Tag) (Pipeline, error)

// Coordinator keeps exactly one supervised publisher running for every tag
// this member owns.
//
// It queries the ownership oracle for the owned set, reacts to change
// signals, and reconciles: publishers for de-assigned tags are stopped and
// drained first, then publishers for newly assigned tags are started. The
// stop-before-start order bounds the window in which a moving tag could have
// writers on two members; it cannot eliminate it, since the other member
// acts on its own schedule.
type Coordinator struct {
	ownership   Ownership
	factory     TagPipelineFactory
	backoffCfg  BackoffConfig
	stopTimeout time.Duration
	opts        []Option

	supervisors *xsync.Map[Tag, *Supervisor]

	logger  Logger
	metrics MetricsCollector
	hooks   *Hooks

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// NewCoordinator creates a coordinator that runs factory-built publishers
// for the tags reported by the ownership oracle.
//
// Parameters:
//   - cfg: Shared configuration (defaults applied, then validated)
//   - ownership: Oracle reporting this member's owned tags
//   - factory: Constructs a fresh publisher pipeline per tag and restart
//   - opts: Optional logger, metrics and hooks, shared with the supervisors
//
// Returns:
//   - *Coordinator: Initialized coordinator (not yet running)
//   - error: Configuration or wiring error
//
// Example:
//
//	coord, err := relay.NewCoordinator(&cfg, ring, func(tag relay.Tag) (relay.Pipeline, error) {
//	    return relay.NewPublisher(&cfg, tag, transport, store, journal, nil)
//	})
//	if err != nil {
//	    return err
//	}
//	if err := coord.Start(ctx); err != nil {
//	    return err
//	}
//	defer coord.Stop(context.Background())
func NewCoordinator(cfg *Config, ownership Ownership, factory TagPipelineFactory, opts ...Option) (*Coordinator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if ownership == nil {
		return nil, ErrOwnershipRequired
	}
	if factory == nil {
		return nil, ErrFactoryRequired
	}

	SetDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	o := applyOptions(opts)
	cfg.ValidateWithWarnings(o.logger)

	return &Coordinator{
		ownership:   ownership,
		factory:     factory,
		backoffCfg:  cfg.PublisherBackoff,
		stopTimeout: cfg.ShutdownTimeout,
		opts:        opts,
		supervisors: xsync.NewMap[Tag, *Supervisor](),
		logger:      o.logger,
		metrics:     o.metrics,
		hooks:       o.hooks,
	}, nil
}

// Start performs the initial reconcile and begins watching for ownership
// changes. It returns once publishers for the initially owned tags are
// supervised; a failed initial reconcile stops anything already started and
// fails Start.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.started = true
	c.cancel = cancel
	c.doneCh = make(chan struct{})
	c.mu.Unlock()

	if err := c.reconcile(runCtx); err != nil {
		c.logger.Error("initial reconcile failed", "error", err)

		stopCtx, stopCancel := context.WithTimeout(context.Background(), c.stopTimeout)
		if stopErr := c.stopAll(stopCtx); stopErr != nil {
			c.logger.Error("failed to stop publishers after failed start", "error", stopErr)
		}
		stopCancel()
		cancel()

		c.mu.Lock()
		c.started = false
		c.mu.Unlock()

		return err
	}

	go c.watchLoop(runCtx)

	return nil
}

// Stop halts reconciliation and drains every supervised publisher, bounded
// by ctx.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}

	c.started = false
	cancel := c.cancel
	done := c.doneCh
	c.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("failed to stop coordinator: %w", ctx.Err())
	}

	return c.stopAll(ctx)
}

// Tags returns the tags with a currently supervised publisher, sorted.
func (c *Coordinator) Tags() []Tag {
	var tags []Tag
	c.supervisors.Range(func(tag Tag, _ *Supervisor) bool {
		tags = append(tags, tag)
		return true
	})
	slices.Sort(tags)

	return tags
}

// watchLoop re-reconciles on every ownership change signal.
func (c *Coordinator) watchLoop(ctx context.Context) {
	defer close(c.doneCh)

	changes := c.ownership.Changes()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				// The oracle shut down; ownership is frozen from here on.
				// Keep supervising the current set until Stop.
				c.logger.Warn("ownership change channel closed")

				changes = nil

				continue
			}

			if err := c.reconcile(ctx); err != nil {
				// Keep the current set; the next signal retries.
				c.logger.Error("reconcile failed", "error", err)
			}
		}
	}
}

// reconcile aligns the supervised publishers with the oracle's owned set,
// stopping de-assigned tags before starting newly assigned ones.
func (c *Coordinator) reconcile(ctx context.Context) error {
	desired, err := c.ownership.ActiveTags(ctx)
	if err != nil {
		return fmt.Errorf("failed to query active tags: %w", err)
	}

	want := make(map[Tag]struct{}, len(desired))
	for _, tag := range desired {
		want[tag] = struct{}{}
	}

	var removed []Tag
	c.supervisors.Range(func(tag Tag, _ *Supervisor) bool {
		if _, ok := want[tag]; !ok {
			removed = append(removed, tag)
		}

		return true
	})

	for _, tag := range removed {
		sup, ok := c.supervisors.LoadAndDelete(tag)
		if !ok {
			continue
		}

		stopCtx, cancel := context.WithTimeout(ctx, c.stopTimeout)
		if err := sup.Stop(stopCtx); err != nil {
			// The tag is already released locally; all a drain timeout
			// costs is a longer dual-writer window on the new owner.
			c.logger.Error("failed to drain publisher", "tag", tag, "error", err)
		}
		cancel()
	}

	var added []Tag

	var firstErr error

	for _, tag := range desired {
		if _, ok := c.supervisors.Load(tag); ok {
			continue
		}

		sup, err := c.startSupervisor(ctx, tag)
		if err != nil {
			c.logger.Error("failed to start publisher", "tag", tag, "error", err)

			if firstErr == nil {
				firstErr = err
			}

			continue
		}

		c.supervisors.Store(tag, sup)
		added = append(added, tag)
	}

	if len(added) > 0 || len(removed) > 0 {
		c.logger.Info("ownership reconciled",
			"added", len(added),
			"removed", len(removed),
			"owned", len(desired),
		)
		c.metrics.RecordReassignment(len(added), len(removed))

		if c.hooks.OnTagsReassigned != nil {
			go func(added, removed []Tag) {
				if err := c.hooks.OnTagsReassigned(ctx, added, removed); err != nil {
					c.logger.Warn("reassignment hook failed", "error", err)
				}
			}(added, removed)
		}
	}

	c.metrics.RecordOwnedTags(c.supervisors.Size())

	return firstErr
}

func (c *Coordinator) startSupervisor(ctx context.Context, tag Tag) (*Supervisor, error) {
	factory := func() (Pipeline, error) {
		return c.factory(tag)
	}

	sup, err := NewSupervisor("publisher-"+tag.String(), factory, c.backoffCfg, c.opts...)
	if err != nil {
		return nil, err
	}

	if err := sup.Start(ctx); err != nil {
		return nil, err
	}

	return sup, nil
}

// stopAll drains every supervised publisher, reporting the joined failures.
func (c *Coordinator) stopAll(ctx context.Context) error {
	var errs []error

	c.supervisors.Range(func(tag Tag, sup *Supervisor) bool {
		if _, ok := c.supervisors.LoadAndDelete(tag); !ok {
			return true
		}

		if err := sup.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tag %s: %w", tag, err))
		}

		return true
	})

	return errors.Join(errs...)
}
