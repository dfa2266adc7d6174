package heartbeat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/relay/internal/logger"
	"github.com/arloliu/relay/types"
)

// Common errors for heartbeat operations.
var (
	ErrNotStarted     = errors.New("announcer not started")
	ErrAlreadyStarted = errors.New("announcer already started")
	ErrNoMemberID     = errors.New("member ID not set")
)

// Beat is the JSON payload written to the membership bucket.
//
// Role lets watchers restrict a ring to members that can actually run the
// workload, for example only instances wired with an event source join the
// writer ring.
type Beat struct {
	MemberID string    `json:"member_id"`
	Role     string    `json:"role,omitempty"`
	Time     time.Time `json:"time"`
}

// ParseBeat decodes a beat payload read from the membership bucket.
func ParseBeat(data []byte) (Beat, error) {
	var b Beat
	if err := json.Unmarshal(data, &b); err != nil {
		return Beat{}, fmt.Errorf("failed to parse beat: %w", err)
	}

	return b, nil
}

// Announcer publishes periodic membership beats to a NATS KV bucket.
//
// Membership watchers treat the presence of a beat key as proof of life.
// The bucket TTL deletes keys of crashed members automatically; Stop deletes
// the key eagerly so clean shutdowns propagate without waiting for the TTL.
type Announcer struct {
	kv       jetstream.KeyValue
	prefix   string
	memberID string
	role     string
	interval time.Duration

	mu      sync.Mutex
	logger  types.Logger
	metrics types.CoordinatorMetrics
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	ticker  *time.Ticker
}

// New creates a new membership announcer.
//
// The KV bucket should be configured with a TTL of ~3x the announce interval
// so a member is declared gone after three missed beats.
//
// Parameters:
//   - kv: JetStream KV bucket for membership storage
//   - prefix: Key prefix for beat keys (e.g. "member")
//   - memberID: Unique ID of this member
//   - role: Optional role advertised to watchers ("" announces no role)
//   - interval: Announce interval (typically 2s)
//
// Returns:
//   - *Announcer: New announcer instance
func New(kv jetstream.KeyValue, prefix, memberID, role string, interval time.Duration) *Announcer {
	return &Announcer{
		kv:       kv,
		prefix:   prefix,
		memberID: memberID,
		role:     role,
		interval: interval,
		logger:   logger.NewNop(),
	}
}

// SetLogger sets the logger for announce failures.
//
// Optional. Defaults to a no-op logger.
func (a *Announcer) SetLogger(log types.Logger) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logger = log
}

// SetMetrics sets the metrics collector for heartbeat events.
//
// Optional. If not set, metrics are not recorded.
func (a *Announcer) SetMetrics(metrics types.CoordinatorMetrics) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.metrics = metrics
}

// Start begins announcing in the background.
//
// Publishes the first beat immediately, then at regular intervals until
// Stop is called.
//
// Returns:
//   - error: ErrAlreadyStarted if already running, ErrNoMemberID if the
//     member ID is empty, or the first beat's write error
func (a *Announcer) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return ErrAlreadyStarted
	}

	if a.memberID == "" {
		return ErrNoMemberID
	}

	a.started = true
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	a.ticker = time.NewTicker(a.interval)

	// Publish the first beat immediately so watchers see the member before
	// the first tick.
	if err := a.announce(ctx); err != nil {
		a.ticker.Stop()
		a.started = false
		return fmt.Errorf("failed to publish initial beat: %w", err)
	}

	go a.announceLoop()

	return nil
}

// Stop stops the announcer and deletes the beat key from KV.
//
// Blocks until the announcer goroutine exits. The beat key is deleted so
// membership watchers observe the shutdown immediately instead of waiting
// for the bucket TTL.
//
// Returns:
//   - error: ErrNotStarted if not running, or the delete error
func (a *Announcer) Stop() error {
	a.mu.Lock()

	if !a.started {
		a.mu.Unlock()
		return ErrNotStarted
	}

	a.ticker.Stop()
	close(a.stopCh)
	a.started = false

	a.mu.Unlock()

	<-a.doneCh

	// The member is shutting down; use a short background context for the
	// cleanup delete.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := a.kv.Delete(ctx, a.key()); err != nil {
		return fmt.Errorf("stopped but failed to delete beat: %w", err)
	}

	return nil
}

// MemberID returns the member ID this announcer advertises.
func (a *Announcer) MemberID() string {
	return a.memberID
}

// IsStarted returns whether the announcer is currently running.
func (a *Announcer) IsStarted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.started
}

// announceLoop is the background goroutine that publishes beats.
func (a *Announcer) announceLoop() {
	defer close(a.doneCh)

	for {
		select {
		case <-a.stopCh:
			return
		case <-a.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := a.announce(ctx)
			cancel()

			a.mu.Lock()
			log := a.logger
			metrics := a.metrics
			a.mu.Unlock()

			if metrics != nil {
				metrics.RecordHeartbeat(a.memberID, err == nil)
			}
			if err != nil {
				// Keep trying; the TTL only expires the key after several
				// missed beats.
				log.Warn("failed to publish beat", "member_id", a.memberID, "error", err)
			}
		}
	}
}

// announce writes the beat payload to NATS KV.
func (a *Announcer) announce(ctx context.Context) error {
	payload, err := json.Marshal(Beat{
		MemberID: a.memberID,
		Role:     a.role,
		Time:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode beat for %s: %w", a.memberID, err)
	}

	if _, err := a.kv.Put(ctx, a.key(), payload); err != nil {
		return fmt.Errorf("failed to publish beat for %s: %w", a.memberID, err)
	}

	return nil
}

// key generates the KV key for this member's beat.
func (a *Announcer) key() string {
	return fmt.Sprintf("%s.%s", a.prefix, a.memberID)
}
