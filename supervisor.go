package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/relay/internal/backoff"
)

// PipelineFactory constructs a fresh pipeline instance for each run.
//
// Factories are called once per restart; returning an error counts as a
// failed run and is retried with backoff.
type PipelineFactory func() (Pipeline, error)

// Supervisor runs a pipeline and restarts it on failure with jittered
// exponential backoff.
//
// Each consecutive failure doubles the restart delay up to the configured
// maximum; a run that survives at least its preceding delay resets the
// progression. Every restart constructs a fresh instance through the
// factory, so no in-process state crosses a restart; resumption comes
// entirely from externally stored offsets. A run that returns nil is a clean
// completion and ends supervision; cancellation ends supervision without
// counting as a failure.
type Supervisor struct {
	name    string
	factory PipelineFactory
	backoff *backoff.State

	logger  Logger
	metrics MetricsCollector
	hooks   *Hooks

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// NewSupervisor creates a supervisor for pipelines built by factory.
//
// Parameters:
//   - name: Stable identifier for logs and metrics
//   - factory: Constructs a fresh pipeline per run
//   - policy: Restart delay progression
//   - opts: Optional logger, metrics, hooks and backoff seed
//
// Returns:
//   - *Supervisor: Initialized supervisor (not yet running)
//   - error: ErrFactoryRequired or an invalid backoff policy
func NewSupervisor(name string, factory PipelineFactory, policy BackoffConfig, opts ...Option) (*Supervisor, error) {
	if factory == nil {
		return nil, ErrFactoryRequired
	}
	if name == "" {
		return nil, fmt.Errorf("%w: supervisor name is empty", ErrInvalidConfig)
	}

	setBackoffDefaults(&policy, DefaultConfig().PublisherBackoff)

	if err := validateBackoff("Backoff", policy); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	o := applyOptions(opts)

	return &Supervisor{
		name:    name,
		factory: factory,
		backoff: backoff.NewSeeded(backoff.Policy{
			Min:          policy.Min,
			Max:          policy.Max,
			RandomFactor: policy.RandomFactor,
		}, o.backoffSeed),
		logger:  o.logger,
		metrics: o.metrics,
		hooks:   o.hooks,
	}, nil
}

// Start launches the supervision loop in the background.
//
// The loop's lifetime is bound to the supervisor, not to ctx; Stop ends it.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.started = true
	s.cancel = cancel
	s.doneCh = make(chan struct{})

	go s.loop(runCtx)

	return nil
}

// Stop cancels the current run and waits for the loop to drain, bounded by
// ctx.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}

	s.started = false
	cancel := s.cancel
	done := s.doneCh
	s.mu.Unlock()

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to drain supervisor %s: %w", s.name, ctx.Err())
	}
}

// Done returns a channel closed when supervision ends, either by Stop or by
// a clean pipeline completion. Valid after Start.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.doneCh
}

func (s *Supervisor) loop(ctx context.Context) {
	defer close(s.doneCh)

	for {
		pipeline, err := s.factory()
		if err != nil {
			if !s.delay(ctx, fmt.Errorf("failed to construct pipeline: %w", err)) {
				return
			}

			continue
		}

		start := time.Now()
		err = pipeline.Run(ctx)
		runtime := time.Since(start)

		if err == nil {
			s.logger.Info("pipeline completed", "pipeline", s.name, "runtime", runtime)
			s.metrics.RecordCompletion(s.name, runtime.Seconds())

			return
		}

		if ctx.Err() != nil {
			s.logger.Info("pipeline stopped", "pipeline", s.name)
			return
		}

		if s.hooks.OnError != nil {
			go func(cause error) {
				if hookErr := s.hooks.OnError(ctx, cause); hookErr != nil {
					s.logger.Warn("error hook failed", "pipeline", s.name, "error", hookErr)
				}
			}(err)
		}

		// A run that outlived its preceding delay counts as stable and
		// resets the progression.
		prevAttempt := s.backoff.Attempt()
		s.backoff.Observe(runtime)

		if prevAttempt > 0 && s.backoff.Attempt() == 0 {
			s.logger.Debug("backoff reset after stable run", "pipeline", s.name, "runtime", runtime)
			s.metrics.RecordBackoffReset(s.name)
		}

		if !s.delay(ctx, err) {
			return
		}
	}
}

// delay schedules the next restart and waits out the backoff delay. It
// returns false when cancellation ended the wait.
func (s *Supervisor) delay(ctx context.Context, cause error) bool {
	wait := s.backoff.Next()
	attempt := s.backoff.Attempt()

	s.logger.Warn("pipeline failed, restart scheduled",
		"pipeline", s.name,
		"attempt", attempt,
		"delay", wait,
		"error", cause,
	)
	s.metrics.RecordRestart(s.name, attempt, wait.Seconds())

	if s.hooks.OnRestartScheduled != nil {
		go func() {
			if err := s.hooks.OnRestartScheduled(ctx, s.name, attempt, wait, cause); err != nil {
				s.logger.Warn("restart hook failed", "pipeline", s.name, "error", err)
			}
		}()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// RunSupervised is a convenience wrapper that supervises factory-built
// pipelines until ctx is cancelled or a run completes cleanly. It blocks for
// the duration of supervision.
//
// Parameters:
//   - ctx: Lifecycle context; cancellation stops supervision
//   - name: Stable identifier for logs and metrics
//   - factory: Constructs a fresh pipeline per run
//   - policy: Restart delay progression
//   - opts: Optional logger, metrics, hooks and backoff seed
//
// Returns:
//   - error: Construction error, or nil once supervision ends
func RunSupervised(ctx context.Context, name string, factory PipelineFactory, policy BackoffConfig, opts ...Option) error {
	sup, err := NewSupervisor(name, factory, policy, opts...)
	if err != nil {
		return err
	}

	if err := sup.Start(ctx); err != nil {
		return err
	}

	select {
	case <-sup.Done():
		return nil
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := sup.Stop(stopCtx); err != nil {
			return err
		}

		return ctx.Err()
	}
}
