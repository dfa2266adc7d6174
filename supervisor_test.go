package relay

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/relay/internal/logger"
	"github.com/arloliu/relay/internal/metrics"
)

// fakePipeline runs a scripted function.
type fakePipeline struct {
	name string
	run  func(ctx context.Context) error
}

func (p *fakePipeline) Name() string { return p.name }

func (p *fakePipeline) Run(ctx context.Context) error { return p.run(ctx) }

func fastBackoff() BackoffConfig {
	return BackoffConfig{Min: 10 * time.Millisecond, Max: 50 * time.Millisecond, RandomFactor: 0}
}

func waitDone(t *testing.T, sup *Supervisor) {
	t.Helper()

	select {
	case <-sup.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("supervision did not end")
	}
}

func TestNewSupervisorValidation(t *testing.T) {
	factory := func() (Pipeline, error) {
		return &fakePipeline{name: "noop", run: func(context.Context) error { return nil }}, nil
	}

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{"nil factory", func() error {
			_, err := NewSupervisor("orders-0", nil, fastBackoff())
			return err
		}, ErrFactoryRequired},
		{"empty name", func() error {
			_, err := NewSupervisor("", factory, fastBackoff())
			return err
		}, ErrInvalidConfig},
		{"negative minimum delay", func() error {
			_, err := NewSupervisor("orders-0", factory, BackoffConfig{Min: -time.Second})
			return err
		}, ErrInvalidConfig},
		{"maximum below minimum", func() error {
			_, err := NewSupervisor("orders-0", factory, BackoffConfig{Min: 2 * time.Second, Max: time.Second})
			return err
		}, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.call(), tt.wantErr)
		})
	}
}

func TestSupervisorRunsToCompletion(t *testing.T) {
	var factoryCalls, runs atomic.Int32

	factory := func() (Pipeline, error) {
		factoryCalls.Add(1)

		return &fakePipeline{name: "orders-0", run: func(context.Context) error {
			runs.Add(1)
			return nil
		}}, nil
	}

	sup, err := NewSupervisor("orders-0", factory, fastBackoff(), WithLogger(logger.NewTest(t)))
	require.NoError(t, err)
	require.NoError(t, sup.Start(t.Context()))

	waitDone(t, sup)

	require.Equal(t, int32(1), factoryCalls.Load())
	require.Equal(t, int32(1), runs.Load())

	// Stopping after a clean completion drains immediately.
	require.NoError(t, sup.Stop(t.Context()))
}

func TestSupervisorRestartsFailedRuns(t *testing.T) {
	var factoryCalls atomic.Int32

	// Each restart gets a fresh instance; the first two fail.
	factory := func() (Pipeline, error) {
		n := factoryCalls.Add(1)

		return &fakePipeline{name: "orders-0", run: func(context.Context) error {
			if n <= 2 {
				return errors.New("replay lagging")
			}

			return nil
		}}, nil
	}

	sup, err := NewSupervisor("orders-0", factory, fastBackoff())
	require.NoError(t, err)
	require.NoError(t, sup.Start(t.Context()))

	waitDone(t, sup)

	require.Equal(t, int32(3), factoryCalls.Load())
}

func TestSupervisorRetriesFactoryFailures(t *testing.T) {
	var factoryCalls, runs atomic.Int32

	factory := func() (Pipeline, error) {
		if factoryCalls.Add(1) <= 2 {
			return nil, errors.New("transport not ready")
		}

		return &fakePipeline{name: "orders-0", run: func(context.Context) error {
			runs.Add(1)
			return nil
		}}, nil
	}

	sup, err := NewSupervisor("orders-0", factory, fastBackoff())
	require.NoError(t, err)
	require.NoError(t, sup.Start(t.Context()))

	waitDone(t, sup)

	require.Equal(t, int32(3), factoryCalls.Load())
	require.Equal(t, int32(1), runs.Load())
}

func TestSupervisorStopCancelsRun(t *testing.T) {
	running := make(chan struct{}, 1)

	factory := func() (Pipeline, error) {
		return &fakePipeline{name: "orders-0", run: func(ctx context.Context) error {
			running <- struct{}{}
			<-ctx.Done()

			return ctx.Err()
		}}, nil
	}

	sup, err := NewSupervisor("orders-0", factory, fastBackoff(), WithLogger(logger.NewTest(t)))
	require.NoError(t, err)
	require.NoError(t, sup.Start(t.Context()))

	select {
	case <-running:
	case <-time.After(time.Second):
		t.Fatal("pipeline never started")
	}

	stopCtx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	require.NoError(t, sup.Stop(stopCtx))

	waitDone(t, sup)

	// Cancellation is not a failure: no restart was attempted.
	require.ErrorIs(t, sup.Stop(stopCtx), ErrNotStarted)
}

func TestSupervisorBackoffProgression(t *testing.T) {
	var factoryCalls atomic.Int32

	factory := func() (Pipeline, error) {
		n := factoryCalls.Add(1)

		return &fakePipeline{name: "orders-0", run: func(context.Context) error {
			if n <= 2 {
				return errors.New("broker unavailable")
			}

			return nil
		}}, nil
	}

	type restart struct {
		attempt int
		delay   time.Duration
	}

	var mu sync.Mutex
	var restarts []restart

	hooks := &Hooks{
		OnRestartScheduled: func(_ context.Context, _ string, attempt int, delay time.Duration, _ error) error {
			mu.Lock()
			defer mu.Unlock()
			restarts = append(restarts, restart{attempt: attempt, delay: delay})

			return nil
		},
	}

	policy := BackoffConfig{Min: 20 * time.Millisecond, Max: 200 * time.Millisecond, RandomFactor: 0.2}
	sup, err := NewSupervisor("orders-0", factory, policy, WithHooks(hooks), WithBackoffSeed(42))
	require.NoError(t, err)
	require.NoError(t, sup.Start(t.Context()))

	waitDone(t, sup)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(restarts) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	// Hooks fire asynchronously, so order by attempt before asserting.
	slices.SortFunc(restarts, func(a, b restart) int { return a.attempt - b.attempt })

	require.Equal(t, 1, restarts[0].attempt)
	require.GreaterOrEqual(t, restarts[0].delay, 20*time.Millisecond)
	require.Less(t, restarts[0].delay, 24*time.Millisecond)

	require.Equal(t, 2, restarts[1].attempt)
	require.GreaterOrEqual(t, restarts[1].delay, 40*time.Millisecond)
	require.Less(t, restarts[1].delay, 48*time.Millisecond)
}

// resetRecorder counts backoff resets, ignoring all other measurements.
type resetRecorder struct {
	*metrics.NopMetrics
	resets atomic.Int32
}

func (r *resetRecorder) RecordBackoffReset(string) { r.resets.Add(1) }

func TestSupervisorStableRunResetsBackoff(t *testing.T) {
	var factoryCalls atomic.Int32

	// Run 1 fails fast, run 2 stays up past its preceding delay before
	// failing, run 3 fails fast again, run 4 completes.
	factory := func() (Pipeline, error) {
		n := factoryCalls.Add(1)

		return &fakePipeline{name: "orders-0", run: func(ctx context.Context) error {
			switch n {
			case 1, 3:
				return errors.New("broker unavailable")
			case 2:
				select {
				case <-time.After(250 * time.Millisecond):
					return errors.New("broker unavailable")
				case <-ctx.Done():
					return ctx.Err()
				}
			default:
				return nil
			}
		}}, nil
	}

	var mu sync.Mutex
	var attempts []int

	hooks := &Hooks{
		OnRestartScheduled: func(_ context.Context, _ string, attempt int, _ time.Duration, _ error) error {
			mu.Lock()
			defer mu.Unlock()
			attempts = append(attempts, attempt)

			return nil
		},
	}

	rec := &resetRecorder{NopMetrics: metrics.NewNop()}

	policy := BackoffConfig{Min: 20 * time.Millisecond, Max: 200 * time.Millisecond, RandomFactor: 0.2}
	sup, err := NewSupervisor("orders-0", factory, policy, WithHooks(hooks), WithMetrics(rec), WithBackoffSeed(7))
	require.NoError(t, err)
	require.NoError(t, sup.Start(t.Context()))

	waitDone(t, sup)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(attempts) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	// The stable second run reset the progression, so the third failure was
	// scheduled as attempt 1 again rather than attempt 3.
	slices.Sort(attempts)
	require.Equal(t, []int{1, 1, 2}, attempts)
	require.Equal(t, int32(1), rec.resets.Load())
}

func TestSupervisorLifecycle(t *testing.T) {
	var factoryCalls atomic.Int32

	factory := func() (Pipeline, error) {
		factoryCalls.Add(1)

		return &fakePipeline{name: "orders-0", run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}}, nil
	}

	sup, err := NewSupervisor("orders-0", factory, fastBackoff())
	require.NoError(t, err)

	require.ErrorIs(t, sup.Stop(t.Context()), ErrNotStarted)

	cancelled, cancel := context.WithCancel(t.Context())
	cancel()
	require.ErrorIs(t, sup.Start(cancelled), context.Canceled)

	require.NoError(t, sup.Start(t.Context()))
	require.ErrorIs(t, sup.Start(t.Context()), ErrAlreadyStarted)
	require.NoError(t, sup.Stop(t.Context()))

	// A stopped supervisor can be started again with a fresh loop.
	require.NoError(t, sup.Start(t.Context()))
	require.NoError(t, sup.Stop(t.Context()))
	require.Equal(t, int32(2), factoryCalls.Load())
}

func TestRunSupervised(t *testing.T) {
	t.Run("returns once the pipeline completes", func(t *testing.T) {
		factory := func() (Pipeline, error) {
			return &fakePipeline{name: "orders-0", run: func(context.Context) error { return nil }}, nil
		}

		require.NoError(t, RunSupervised(t.Context(), "orders-0", factory, fastBackoff()))
	})

	t.Run("stops when the context ends", func(t *testing.T) {
		factory := func() (Pipeline, error) {
			return &fakePipeline{name: "orders-0", run: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			}}, nil
		}

		ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
		defer cancel()

		require.ErrorIs(t, RunSupervised(ctx, "orders-0", factory, fastBackoff()), context.DeadlineExceeded)
	})

	t.Run("rejects a nil factory", func(t *testing.T) {
		require.ErrorIs(t, RunSupervised(t.Context(), "orders-0", nil, fastBackoff()), ErrFactoryRequired)
	})
}
