// Package backoff implements the jittered exponential restart delay used by
// pipeline supervision.
package backoff

import (
	rand "math/rand/v2"
	"time"
)

// Policy describes a restart delay progression.
type Policy struct {
	// Min is the delay after the first failure.
	Min time.Duration

	// Max caps the exponential growth.
	Max time.Duration

	// RandomFactor widens each delay by a uniform factor drawn from
	// [1, 1+RandomFactor), spreading simultaneous restarts apart.
	RandomFactor float64
}

// State tracks the current restart delay for one supervised pipeline.
//
// Next computes delay = random(1, 1+RandomFactor) * min(current, Max) and
// doubles current for the following failure (capped at Max). Observe applies
// the stability rule: a run that lasted at least the previously issued delay
// resets the progression to Min.
//
// State is not safe for concurrent use; each supervisor owns one.
type State struct {
	policy  Policy
	current time.Duration
	last    time.Duration
	attempt int
	rng     *rand.Rand
}

// New creates a State positioned at the policy's minimum delay, jittered by
// the package-level PRNG.
func New(policy Policy) *State {
	return &State{policy: policy, current: policy.Min}
}

// NewSeeded creates a State with a deterministic jitter source. Intended for
// tests; seed 0 falls back to the package-level PRNG.
func NewSeeded(policy Policy, seed int64) *State {
	s := New(policy)
	if seed != 0 {
		s1 := uint64(seed)

		s.rng = rand.New(rand.NewPCG(s1, s1^0x9e3779b97f4a7c15))
	}

	return s
}

// Next returns the delay to wait before the upcoming restart and advances
// the progression.
func (s *State) Next() time.Duration {
	base := s.current
	if s.policy.Max > 0 && base > s.policy.Max {
		base = s.policy.Max
	}

	delay := base
	if s.policy.RandomFactor > 0 {
		delay = time.Duration(float64(base) * (1 + s.policy.RandomFactor*s.random()))
	}

	s.last = delay
	s.attempt++
	s.current *= 2
	if s.policy.Max > 0 && s.current > s.policy.Max {
		s.current = s.policy.Max
	}

	return delay
}

// Observe records how long the last run lasted before failing. A runtime of
// at least the previously issued delay counts as a stable run and resets the
// progression.
func (s *State) Observe(runtime time.Duration) {
	if s.last > 0 && runtime >= s.last {
		s.Reset()
	}
}

// Reset returns the progression to the minimum delay.
func (s *State) Reset() {
	s.current = s.policy.Min
	s.last = 0
	s.attempt = 0
}

// Attempt returns the number of delays issued since the last reset.
func (s *State) Attempt() int { return s.attempt }

// Current returns the undithered delay the next failure would start from.
func (s *State) Current() time.Duration {
	if s.policy.Max > 0 && s.current > s.policy.Max {
		return s.policy.Max
	}

	return s.current
}

func (s *State) random() float64 {
	if s.rng != nil {
		return s.rng.Float64()
	}

	return rand.Float64() //nolint:gosec // non-crypto restart jitter
}
