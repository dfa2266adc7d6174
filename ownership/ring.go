package ownership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/relay/internal/hash"
	"github.com/arloliu/relay/internal/heartbeat"
	"github.com/arloliu/relay/internal/kvutil"
	"github.com/arloliu/relay/internal/logger"
	"github.com/arloliu/relay/types"
)

const (
	// DefaultBucket is the membership KV bucket name used by OpenBucket
	// when none is given.
	DefaultBucket = "relay-members"

	// DefaultPrefix is the beat key prefix shared by announcers and rings.
	DefaultPrefix = "member"

	defaultVirtualNodes = 50
	defaultDebounce     = 500 * time.Millisecond
	defaultPollInterval = 3 * time.Second
)

// RingConfig configures a Ring oracle.
type RingConfig struct {
	// MemberID is this member's identity on the ring. Required; must match
	// the ID this member's heartbeat announcer advertises.
	MemberID string

	// Role restricts membership to beats advertising this role. Empty
	// accepts every member. When AnnounceInterval is set, this member's own
	// beats advertise the same role.
	Role string

	// AnnounceInterval enables the built-in heartbeat announcer: the ring
	// publishes a beat for MemberID at this interval while started, so the
	// member joins the ring it watches. Zero disables announcing; run a
	// separate announcer or use the ring as a watch-only observer.
	AnnounceInterval time.Duration

	// Prefix is the beat key prefix, matching the announcer's.
	// Default: DefaultPrefix.
	Prefix string

	// Tags enumerates the tag universe to distribute. Required.
	Tags types.TagSource

	// VirtualNodes is the number of ring positions per member.
	// Default: 50.
	VirtualNodes int

	// Seed varies ring placement between independent clusters sharing a
	// bucket. Default: 0.
	Seed uint64

	// Debounce bounds how often membership churn rebuilds the ring: changes
	// arriving inside one window collapse into a single rebuild.
	// Default: 500ms.
	Debounce time.Duration

	// PollInterval paces the membership relist that backs up the watcher.
	// The bucket TTL expires a crashed member's beat without a watcher
	// event, so each poll relists the beat keys and drops members whose
	// keys are gone. Around half the bucket TTL works well. Default: 3s.
	PollInterval time.Duration

	// Logger for watch and rebuild events. Default: no-op logger.
	Logger types.Logger

	// Metrics records heartbeat outcomes when announcing is enabled.
	// Optional.
	Metrics types.CoordinatorMetrics
}

func (c *RingConfig) applyDefaults() {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}

	if c.VirtualNodes <= 0 {
		c.VirtualNodes = defaultVirtualNodes
	}

	if c.Debounce <= 0 {
		c.Debounce = defaultDebounce
	}

	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}

	if c.Logger == nil {
		c.Logger = logger.NewNop()
	}
}

func (c *RingConfig) validate() error {
	if c.MemberID == "" {
		return fmt.Errorf("%w: member ID is required", types.ErrInvalidConfig)
	}

	if c.Tags == nil {
		return fmt.Errorf("%w: tag source is required", types.ErrInvalidConfig)
	}

	return nil
}

// Ring is an ownership oracle that assigns each tag to exactly one live
// member via consistent hashing.
//
// Membership is read from the heartbeat bucket: every beat key under the
// configured prefix is one member, and the bucket TTL removes crashed
// members. Joins and clean departures arrive through a KV watcher; a
// periodic key relist catches the beats the TTL expires silently. With
// AnnounceInterval set the ring beats for its own member ID;
// the oracle learns its own membership the same way it learns everyone
// else's, so ActiveTags stays empty until the member's first beat lands.
//
// A Ring is single-use: Start it once and Stop it once.
type Ring struct {
	kv     jetstream.KeyValue
	config RingConfig

	mu        sync.Mutex
	members   map[string]struct{}
	ring      *hash.Ring
	changes   chan struct{}
	started   bool
	watcher   jetstream.KeyWatcher
	announcer *heartbeat.Announcer
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// Compile-time assertion that Ring implements Ownership.
var _ types.Ownership = (*Ring)(nil)

// NewRing creates a ring oracle over the given membership bucket.
//
// Parameters:
//   - kv: Membership KV bucket, shared with the heartbeat announcers
//   - config: Ring configuration
//
// Returns:
//   - *Ring: The oracle; call Start to begin watching membership
//   - error: Configuration error
func NewRing(kv jetstream.KeyValue, config RingConfig) (*Ring, error) {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &Ring{
		kv:      kv,
		config:  config,
		members: make(map[string]struct{}),
		changes: make(chan struct{}, 1),
	}, nil
}

// OpenBucket creates or opens the membership KV bucket.
//
// The TTL should be around 3x the announce interval so a member is
// declared gone after a few missed beats.
func OpenBucket(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}

	return kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "relay cluster membership",
		TTL:         ttl,
		History:     1,
	}, 3)
}

// Start begins watching the membership bucket and, when AnnounceInterval
// is set, announcing this member's beats.
//
// The current membership is loaded before the first change signal, so a
// receiver that queries ActiveTags after the signal sees a complete ring.
func (r *Ring) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return types.ErrAlreadyStarted
	}

	var announcer *heartbeat.Announcer
	if r.config.AnnounceInterval > 0 {
		announcer = heartbeat.New(r.kv, r.config.Prefix, r.config.MemberID, r.config.Role, r.config.AnnounceInterval)
		announcer.SetLogger(r.config.Logger)

		if r.config.Metrics != nil {
			announcer.SetMetrics(r.config.Metrics)
		}

		if err := announcer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start heartbeat announcer: %w", err)
		}
	}

	watcher, err := r.kv.Watch(ctx, r.config.Prefix+".>")
	if err != nil {
		if announcer != nil {
			_ = announcer.Stop()
		}

		return fmt.Errorf("failed to watch membership keys: %w", err)
	}

	r.started = true
	r.watcher = watcher
	r.announcer = announcer
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.watchLoop()

	return nil
}

// Stop stops watching, retires this member's beat, and closes the change
// channel.
func (r *Ring) Stop() error {
	r.mu.Lock()

	if !r.started {
		r.mu.Unlock()
		return types.ErrNotStarted
	}

	r.started = false
	close(r.stopCh)
	watcher := r.watcher
	announcer := r.announcer

	r.mu.Unlock()

	if watcher != nil {
		_ = watcher.Stop()
	}

	<-r.doneCh

	// Deleting the beat before the TTL lapses lets the surviving members
	// pick up this member's tags right away.
	var err error
	if announcer != nil {
		err = announcer.Stop()
	}

	close(r.changes)

	return err
}

// ActiveTags returns the tags the ring assigns to this member.
//
// Returns an empty set until at least one beat has been observed.
func (r *Ring) ActiveTags(ctx context.Context) ([]types.Tag, error) {
	all, err := r.config.Tags.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}

	r.mu.Lock()
	ring := r.ring
	r.mu.Unlock()

	if ring == nil || ring.Size() == 0 {
		return nil, nil
	}

	owned := make([]types.Tag, 0, len(all))

	for _, tag := range all {
		if ring.Owner(tag) == r.config.MemberID {
			owned = append(owned, tag)
		}
	}

	return owned, nil
}

// Changes returns the change-signal channel. Signals are coalesced;
// receivers re-query ActiveTags for the new set.
func (r *Ring) Changes() <-chan struct{} {
	return r.changes
}

// watchLoop consumes membership updates and rebuilds the ring.
func (r *Ring) watchLoop() {
	defer close(r.doneCh)

	debounce := time.NewTimer(time.Hour)
	if !debounce.Stop() {
		<-debounce.C
	}

	poll := time.NewTicker(r.config.PollInterval)
	defer poll.Stop()

	pending := false
	initial := true

	for {
		select {
		case <-r.stopCh:
			return

		case entry, ok := <-r.watcher.Updates():
			if !ok {
				return
			}

			if entry == nil {
				// Initial values delivered; build the first ring without
				// waiting out a debounce window.
				initial = false
				r.rebuild()
				r.signal()

				continue
			}

			if !r.applyEntry(entry) || initial {
				continue
			}

			if !pending {
				pending = true
				debounce.Reset(r.config.Debounce)
			}

		case <-poll.C:
			if r.rescan() {
				r.rebuild()
				r.signal()
			}

		case <-debounce.C:
			pending = false
			r.rebuild()
			r.signal()
		}
	}
}

// applyEntry folds one KV update into the member set and reports whether
// membership changed. The key, not the beat payload, identifies the
// member; delete entries carry no payload.
func (r *Ring) applyEntry(entry jetstream.KeyValueEntry) bool {
	memberID := strings.TrimPrefix(entry.Key(), r.config.Prefix+".")

	r.mu.Lock()
	defer r.mu.Unlock()

	switch entry.Operation() {
	case jetstream.KeyValuePut:
		beat, err := heartbeat.ParseBeat(entry.Value())
		if err != nil {
			r.config.Logger.Warn("ignoring malformed beat", "key", entry.Key(), "error", err)
			return false
		}

		if r.config.Role != "" && beat.Role != r.config.Role {
			return false
		}

		if _, ok := r.members[memberID]; ok {
			// Beat refresh, not a membership change.
			return false
		}

		r.members[memberID] = struct{}{}

		return true

	case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
		if _, ok := r.members[memberID]; !ok {
			return false
		}

		delete(r.members, memberID)

		return true
	}

	return false
}

// rescan reconciles the member set against a fresh key listing and
// reports whether membership changed. TTL expiry deletes a key without
// writing anything to the bucket, so the watcher never hears about it;
// only the listing shows the key is gone. Puts always reach the watcher,
// so the rescan only reconciles removals.
func (r *Ring) rescan() bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.PollInterval)
	defer cancel()

	keys, err := r.kv.Keys(ctx)
	if err != nil && !errors.Is(err, jetstream.ErrNoKeysFound) {
		r.config.Logger.Warn("failed to relist membership keys", "error", err)
		return false
	}

	live := make(map[string]struct{}, len(keys))

	for _, key := range keys {
		if memberID, ok := strings.CutPrefix(key, r.config.Prefix+"."); ok {
			live[memberID] = struct{}{}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false

	for id := range r.members {
		if _, ok := live[id]; !ok {
			delete(r.members, id)
			changed = true

			r.config.Logger.Info("member beat expired", "member_id", id)
		}
	}

	return changed
}

// rebuild recomputes the hash ring from the current member set.
func (r *Ring) rebuild() {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := make([]string, 0, len(r.members))
	for id := range r.members {
		members = append(members, id)
	}

	r.ring = hash.NewRing(members, r.config.VirtualNodes, r.config.Seed)

	r.config.Logger.Debug("membership ring rebuilt",
		"member_id", r.config.MemberID,
		"members", len(members),
	)
}

// signal notifies watchers that ownership may have changed. Non-blocking;
// an undrained signal covers this change too.
func (r *Ring) signal() {
	select {
	case r.changes <- struct{}{}:
	default:
	}
}
