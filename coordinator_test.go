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

	"github.com/arloliu/relay/ownership"
)

// eventLog records pipeline lifecycle events across goroutines.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) count(event string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, ev := range l.events {
		if ev == event {
			n++
		}
	}

	return n
}

func (l *eventLog) index(event string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return slices.Index(l.events, event)
}

// blockingFactory builds pipelines that log their start and exit and run
// until cancelled.
func blockingFactory(log *eventLog) TagPipelineFactory {
	return func(tag Tag) (Pipeline, error) {
		return &fakePipeline{name: "publisher-" + tag.String(), run: func(ctx context.Context) error {
			log.add("run:" + tag.String())
			defer log.add("done:" + tag.String())

			<-ctx.Done()

			return ctx.Err()
		}}, nil
	}
}

func TestNewCoordinatorValidation(t *testing.T) {
	oracle := ownership.NewStatic("orders-0")
	factory := blockingFactory(&eventLog{})

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{"nil config", func() error {
			_, err := NewCoordinator(nil, oracle, factory)
			return err
		}, ErrInvalidConfig},
		{"nil ownership", func() error {
			cfg := TestConfig()
			_, err := NewCoordinator(&cfg, nil, factory)
			return err
		}, ErrOwnershipRequired},
		{"nil factory", func() error {
			cfg := TestConfig()
			_, err := NewCoordinator(&cfg, oracle, nil)
			return err
		}, ErrFactoryRequired},
		{"invalid config", func() error {
			cfg := TestConfig()
			cfg.Consumer.PullBatchSize = -1
			_, err := NewCoordinator(&cfg, oracle, factory)
			return err
		}, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.call(), tt.wantErr)
		})
	}
}

func TestCoordinatorStartsOwnedTags(t *testing.T) {
	cfg := TestConfig()
	oracle := ownership.NewStatic("orders-0", "orders-1")
	log := &eventLog{}

	coord, err := NewCoordinator(&cfg, oracle, blockingFactory(log))
	require.NoError(t, err)
	require.NoError(t, coord.Start(t.Context()))

	require.Eventually(t, func() bool {
		return log.count("run:orders-0") == 1 && log.count("run:orders-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, []Tag{"orders-0", "orders-1"}, coord.Tags())

	require.NoError(t, coord.Stop(t.Context()))

	require.Equal(t, 1, log.count("done:orders-0"))
	require.Equal(t, 1, log.count("done:orders-1"))
	require.Empty(t, coord.Tags())
}

func TestCoordinatorReassignment(t *testing.T) {
	cfg := TestConfig()
	oracle := ownership.NewStatic("orders-0", "orders-1")
	log := &eventLog{}

	type reassignment struct {
		added   []Tag
		removed []Tag
	}

	var mu sync.Mutex
	var reassignments []reassignment

	hooks := &Hooks{
		OnTagsReassigned: func(_ context.Context, added, removed []Tag) error {
			mu.Lock()
			defer mu.Unlock()
			reassignments = append(reassignments, reassignment{added: added, removed: removed})

			return nil
		},
	}

	coord, err := NewCoordinator(&cfg, oracle, blockingFactory(log), WithHooks(hooks))
	require.NoError(t, err)
	require.NoError(t, coord.Start(t.Context()))
	defer func() { _ = coord.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		return log.count("run:orders-0") == 1 && log.count("run:orders-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	// orders-0 moves away, orders-2 moves in, orders-1 stays put.
	oracle.Update("orders-1", "orders-2")

	require.Eventually(t, func() bool {
		return log.count("done:orders-0") == 1 && log.count("run:orders-2") == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, []Tag{"orders-1", "orders-2"}, coord.Tags())

	// The surviving tag's publisher was not restarted.
	require.Equal(t, 1, log.count("run:orders-1"))

	// De-assigned publishers drain before newly assigned ones start.
	require.Less(t, log.index("done:orders-0"), log.index("run:orders-2"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(reassignments) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	var moved reassignment
	for _, r := range reassignments {
		if len(r.removed) > 0 {
			moved = r
		}
	}
	require.Equal(t, []Tag{"orders-2"}, moved.added)
	require.Equal(t, []Tag{"orders-0"}, moved.removed)
}

func TestCoordinatorSurvivesOracleShutdown(t *testing.T) {
	cfg := TestConfig()
	oracle := ownership.NewStatic("orders-0")
	log := &eventLog{}

	coord, err := NewCoordinator(&cfg, oracle, blockingFactory(log))
	require.NoError(t, err)
	require.NoError(t, coord.Start(t.Context()))

	require.Eventually(t, func() bool {
		return log.count("run:orders-0") == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Closing the oracle freezes the owned set; supervision keeps going.
	oracle.Close()

	require.Never(t, func() bool {
		return log.count("done:orders-0") != 0
	}, 200*time.Millisecond, 20*time.Millisecond)

	require.Equal(t, []Tag{"orders-0"}, coord.Tags())

	require.NoError(t, coord.Stop(t.Context()))
	require.Equal(t, 1, log.count("done:orders-0"))
}

func TestCoordinatorRestartsFailingPublisher(t *testing.T) {
	cfg := TestConfig()
	oracle := ownership.NewStatic("orders-0")

	var runs atomic.Int32
	factory := func(tag Tag) (Pipeline, error) {
		return &fakePipeline{name: "publisher-" + tag.String(), run: func(context.Context) error {
			runs.Add(1)
			return errors.New("stream broken")
		}}, nil
	}

	coord, err := NewCoordinator(&cfg, oracle, factory)
	require.NoError(t, err)
	require.NoError(t, coord.Start(t.Context()))
	defer func() { _ = coord.Stop(context.Background()) }()

	// The supervisor keeps restarting the tag's publisher with backoff.
	require.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, 2*time.Second, 10*time.Millisecond)
}

type failingOracle struct {
	err error
}

func (f *failingOracle) ActiveTags(context.Context) ([]Tag, error) { return nil, f.err }

func (f *failingOracle) Changes() <-chan struct{} { return nil }

func TestCoordinatorStartFailsOnOracleError(t *testing.T) {
	cfg := TestConfig()
	cause := errors.New("membership bucket missing")

	coord, err := NewCoordinator(&cfg, &failingOracle{err: cause}, blockingFactory(&eventLog{}))
	require.NoError(t, err)

	err = coord.Start(t.Context())
	require.ErrorIs(t, err, cause)
	require.ErrorContains(t, err, "failed to query active tags")

	// The failed start left nothing running.
	require.ErrorIs(t, coord.Stop(t.Context()), ErrNotStarted)
}

func TestCoordinatorLifecycle(t *testing.T) {
	cfg := TestConfig()
	oracle := ownership.NewStatic("orders-0")
	log := &eventLog{}

	coord, err := NewCoordinator(&cfg, oracle, blockingFactory(log))
	require.NoError(t, err)

	require.ErrorIs(t, coord.Stop(t.Context()), ErrNotStarted)

	require.NoError(t, coord.Start(t.Context()))
	require.ErrorIs(t, coord.Start(t.Context()), ErrAlreadyStarted)
	require.NoError(t, coord.Stop(t.Context()))

	// A stopped coordinator can be started again.
	require.NoError(t, coord.Start(t.Context()))

	require.Eventually(t, func() bool {
		return log.count("run:orders-0") == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, coord.Stop(t.Context()))
}
