package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testPolicy() Policy {
	return Policy{Min: 3 * time.Second, Max: 30 * time.Second, RandomFactor: 0.2}
}

// requireWithin asserts base <= d < base*(1+rf).
func requireWithin(t *testing.T, d, base time.Duration, rf float64) {
	t.Helper()
	require.GreaterOrEqual(t, d, base, "delay below base")
	require.Less(t, d, time.Duration(float64(base)*(1+rf)), "delay above jitter ceiling")
}

func TestNextDoublesWithinJitterRange(t *testing.T) {
	s := NewSeeded(testPolicy(), 42)

	requireWithin(t, s.Next(), 3*time.Second, 0.2)
	requireWithin(t, s.Next(), 6*time.Second, 0.2)
	requireWithin(t, s.Next(), 12*time.Second, 0.2)
	requireWithin(t, s.Next(), 24*time.Second, 0.2)
	require.Equal(t, 4, s.Attempt())
}

func TestNextCapsAtMax(t *testing.T) {
	s := NewSeeded(testPolicy(), 7)

	// Push the progression well past the cap.
	var last time.Duration
	for range 10 {
		last = s.Next()
	}

	requireWithin(t, last, 30*time.Second, 0.2)
	require.Less(t, last, 36*time.Second+time.Millisecond, "delay must never exceed max*(1+rf)")
	require.Equal(t, 30*time.Second, s.Current())
}

func TestObserveStableRunResets(t *testing.T) {
	s := NewSeeded(testPolicy(), 99)

	s.Next()
	s.Next()
	third := s.Next()

	// A run at least as long as the most recent delay counts as stable.
	s.Observe(third)
	require.Equal(t, 0, s.Attempt())

	requireWithin(t, s.Next(), 3*time.Second, 0.2)
}

func TestObserveShortRunKeepsProgression(t *testing.T) {
	s := NewSeeded(testPolicy(), 5)

	s.Next()
	s.Observe(time.Second) // shorter than any issued delay

	requireWithin(t, s.Next(), 6*time.Second, 0.2)
	require.Equal(t, 2, s.Attempt())
}

func TestObserveBeforeFirstDelayIsNoop(t *testing.T) {
	s := New(testPolicy())

	s.Observe(time.Hour)
	require.Equal(t, 0, s.Attempt())
	require.Equal(t, 3*time.Second, s.Current())
}

func TestZeroRandomFactorIsDeterministic(t *testing.T) {
	s := New(Policy{Min: 100 * time.Millisecond, Max: 400 * time.Millisecond})

	require.Equal(t, 100*time.Millisecond, s.Next())
	require.Equal(t, 200*time.Millisecond, s.Next())
	require.Equal(t, 400*time.Millisecond, s.Next())
	require.Equal(t, 400*time.Millisecond, s.Next())
}

func TestResetReturnsToMin(t *testing.T) {
	s := New(Policy{Min: time.Second, Max: 8 * time.Second})

	s.Next()
	s.Next()
	s.Reset()

	require.Equal(t, time.Second, s.Next())
}
