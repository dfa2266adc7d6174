package relay

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// BackoffConfig controls the restart delay progression for supervised
// pipelines.
type BackoffConfig struct {
	// Min is the delay after the first failure.
	// Recommended: 3 seconds.
	Min time.Duration `yaml:"min"`

	// Max caps the exponential growth. Each consecutive failure doubles the
	// delay until it reaches Max.
	// Recommended: 30 seconds.
	Max time.Duration `yaml:"max"`

	// RandomFactor widens each delay by a uniform factor drawn from
	// [1, 1+RandomFactor), spreading simultaneous restarts apart.
	// For example, 0.2 turns a 3s delay into 3-3.6s.
	RandomFactor float64 `yaml:"randomFactor"`
}

// ConsumerConfig controls pull pacing and acknowledgement batching.
type ConsumerConfig struct {
	// AckDeadline is the redelivery window for pulled messages. A delivery
	// not acknowledged within it becomes eligible for redelivery.
	// Must be comfortably larger than BatchingInterval plus worst-case
	// processing time, or messages redeliver while still in flight.
	// Recommended: 30 seconds.
	AckDeadline time.Duration `yaml:"ackDeadline"`

	// PullInterval is the fixed pacing between pull requests. Each tick
	// fetches up to PullBatchSize messages; an empty result is normal.
	// Recommended: 1 second.
	PullInterval time.Duration `yaml:"pullInterval"`

	// PullBatchSize is the maximum number of messages fetched per pull.
	PullBatchSize int `yaml:"pullBatchSize"`

	// BufferSize is the capacity of the in-process delivery buffer between
	// the pull loop and the processing stage. A full buffer backpressures
	// pulling; messages are never dropped.
	BufferSize int `yaml:"bufferSize"`

	// BatchingSize flushes the pending acknowledgement batch when it reaches
	// this many deliveries.
	// Recommended: 100.
	BatchingSize int `yaml:"batchingSize"`

	// BatchingInterval flushes the pending acknowledgement batch when this
	// much time has passed since its first unflushed delivery, even if the
	// batch is not full. Whichever of size and interval trips first wins.
	// Recommended: 1 second.
	BatchingInterval time.Duration `yaml:"batchingInterval"`
}

// KVBucketConfig names the NATS JetStream KV buckets used by the bundled
// offset store and membership ring. The values here are consumed when wiring
// offsetstore/natskv and ownership; deployments sharing one JetStream domain
// isolate themselves by bucket name.
type KVBucketConfig struct {
	// OffsetBucket is the bucket name for committed publisher offsets.
	OffsetBucket string `yaml:"offsetBucket"`

	// MembershipBucket is the bucket name for member heartbeats.
	MembershipBucket string `yaml:"membershipBucket"`
}

// Config is the shared configuration for relay components.
//
// All duration fields accept standard Go duration strings like "500ms",
// "30s", "5m" when loaded from YAML.
type Config struct {
	// Namespace prefixes every topic name ("<namespace>-<tag>") so multiple
	// deployments can share one broker. Empty means bare tag names.
	Namespace string `yaml:"namespace"`

	// URL is the broker address examples and binaries connect to
	// (e.g. "nats://127.0.0.1:4222"). Library components take an already
	// connected Transport and do not read it.
	URL string `yaml:"url"`

	// CredsFile is an optional path to a credentials file for the broker
	// connection. Empty means unauthenticated.
	CredsFile string `yaml:"credsFile"`

	// MemberID identifies this process in cluster membership. Left empty, a
	// stable-for-the-process ID is generated from the hostname.
	MemberID string `yaml:"memberId"`

	// Role groups members for ownership purposes. Ring oracles only
	// distribute tags across members announcing the same role; empty matches
	// everything.
	Role string `yaml:"role"`

	// HeartbeatInterval is how often this member refreshes its membership
	// beat. Recommended: 2 seconds.
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`

	// HeartbeatTTL is how long a beat remains valid before the member is
	// considered gone. Must be at least 2x HeartbeatInterval.
	// Recommended: 3x HeartbeatInterval.
	HeartbeatTTL time.Duration `yaml:"heartbeatTtl"`

	// OperationTimeout bounds individual setup operations: topic
	// provisioning, offset loading, KV access.
	// Recommended: 10 seconds.
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown,
	// including draining supervised pipelines.
	// Recommended: 10 seconds.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// PublisherBackoff controls restart delays for publisher pipelines.
	PublisherBackoff BackoffConfig `yaml:"publisherBackoff"`

	// ConsumerBackoff controls restart delays for consumer pipelines.
	ConsumerBackoff BackoffConfig `yaml:"consumerBackoff"`

	// Consumer controls pull pacing and acknowledgement batching.
	Consumer ConsumerConfig `yaml:"consumer"`

	// KVBuckets names the JetStream KV buckets for offsets and membership.
	KVBuckets KVBucketConfig `yaml:"kvBuckets"`
}

// DefaultConfig returns a Config with production defaults.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		URL:               "nats://127.0.0.1:4222",
		HeartbeatInterval: 2 * time.Second,
		HeartbeatTTL:      6 * time.Second,
		OperationTimeout:  10 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		PublisherBackoff: BackoffConfig{
			Min:          3 * time.Second,
			Max:          30 * time.Second,
			RandomFactor: 0.2,
		},
		ConsumerBackoff: BackoffConfig{
			Min:          3 * time.Second,
			Max:          30 * time.Second,
			RandomFactor: 0.2,
		},
		Consumer: ConsumerConfig{
			AckDeadline:      30 * time.Second,
			PullInterval:     1 * time.Second,
			PullBatchSize:    100,
			BufferSize:       256,
			BatchingSize:     100,
			BatchingInterval: 1 * time.Second,
		},
		KVBuckets: KVBucketConfig{
			OffsetBucket:     "relay-offsets",
			MembershipBucket: "relay-members",
		},
	}
}

// SetDefaults fills in missing configuration values with production defaults
// and generates a MemberID when none is set.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.URL == "" {
		cfg.URL = defaults.URL
	}
	if cfg.MemberID == "" {
		cfg.MemberID = generateMemberID()
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if cfg.HeartbeatTTL == 0 {
		cfg.HeartbeatTTL = 3 * cfg.HeartbeatInterval
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}

	setBackoffDefaults(&cfg.PublisherBackoff, defaults.PublisherBackoff)
	setBackoffDefaults(&cfg.ConsumerBackoff, defaults.ConsumerBackoff)

	if cfg.Consumer.AckDeadline == 0 {
		cfg.Consumer.AckDeadline = defaults.Consumer.AckDeadline
	}
	if cfg.Consumer.PullInterval == 0 {
		cfg.Consumer.PullInterval = defaults.Consumer.PullInterval
	}
	if cfg.Consumer.PullBatchSize == 0 {
		cfg.Consumer.PullBatchSize = defaults.Consumer.PullBatchSize
	}
	if cfg.Consumer.BufferSize == 0 {
		cfg.Consumer.BufferSize = defaults.Consumer.BufferSize
	}
	if cfg.Consumer.BatchingSize == 0 {
		cfg.Consumer.BatchingSize = defaults.Consumer.BatchingSize
	}
	if cfg.Consumer.BatchingInterval == 0 {
		cfg.Consumer.BatchingInterval = defaults.Consumer.BatchingInterval
	}
	if cfg.KVBuckets.OffsetBucket == "" {
		cfg.KVBuckets.OffsetBucket = defaults.KVBuckets.OffsetBucket
	}
	if cfg.KVBuckets.MembershipBucket == "" {
		cfg.KVBuckets.MembershipBucket = defaults.KVBuckets.MembershipBucket
	}
	// Note: Namespace, CredsFile and Role default to empty on purpose.
}

func setBackoffDefaults(cfg *BackoffConfig, defaults BackoffConfig) {
	if cfg.Min == 0 {
		cfg.Min = defaults.Min
	}
	if cfg.Max == 0 {
		cfg.Max = defaults.Max
	}
	if cfg.RandomFactor == 0 {
		cfg.RandomFactor = defaults.RandomFactor
	}
}

func generateMemberID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "member"
	}

	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

// Validate checks configuration constraints and returns an error for invalid
// values. Call SetDefaults first; Validate rejects what defaults cannot fix,
// such as explicitly negative or inconsistent values.
//
// Hard Validation Rules:
//   - HeartbeatTTL >= 2 * HeartbeatInterval (allow one missed beat)
//   - Backoff Min > 0, Max >= Min, RandomFactor >= 0
//   - Consumer PullInterval, PullBatchSize, BufferSize > 0
//   - Consumer BatchingSize and BatchingInterval strictly positive
//   - Consumer AckDeadline > 0
//
// Returns:
//   - error: Validation error with a clear explanation, nil if valid
func (cfg *Config) Validate() error {
	// Rule 1: heartbeat sanity
	if cfg.HeartbeatInterval <= 0 {
		return fmt.Errorf("HeartbeatInterval must be > 0, got %v", cfg.HeartbeatInterval)
	}

	if cfg.HeartbeatTTL < 2*cfg.HeartbeatInterval {
		return fmt.Errorf(
			"HeartbeatTTL (%v) must be >= 2*HeartbeatInterval (%v) to allow one missed beat",
			cfg.HeartbeatTTL, cfg.HeartbeatInterval,
		)
	}

	// Rule 2: restart backoff progressions
	if err := validateBackoff("PublisherBackoff", cfg.PublisherBackoff); err != nil {
		return err
	}

	if err := validateBackoff("ConsumerBackoff", cfg.ConsumerBackoff); err != nil {
		return err
	}

	// Rule 3: pull pacing
	if cfg.Consumer.PullInterval <= 0 {
		return fmt.Errorf("Consumer.PullInterval must be > 0, got %v", cfg.Consumer.PullInterval)
	}

	if cfg.Consumer.PullBatchSize <= 0 {
		return fmt.Errorf("Consumer.PullBatchSize must be > 0, got %d", cfg.Consumer.PullBatchSize)
	}

	if cfg.Consumer.BufferSize <= 0 {
		return fmt.Errorf("Consumer.BufferSize must be > 0, got %d", cfg.Consumer.BufferSize)
	}

	// Rule 4: acknowledgement batching
	if cfg.Consumer.BatchingSize <= 0 {
		return fmt.Errorf("Consumer.BatchingSize must be > 0, got %d", cfg.Consumer.BatchingSize)
	}

	if cfg.Consumer.BatchingInterval <= 0 {
		return fmt.Errorf("Consumer.BatchingInterval must be > 0, got %v", cfg.Consumer.BatchingInterval)
	}

	if cfg.Consumer.AckDeadline <= 0 {
		return fmt.Errorf("Consumer.AckDeadline must be > 0, got %v", cfg.Consumer.AckDeadline)
	}

	return nil
}

func validateBackoff(name string, b BackoffConfig) error {
	if b.Min <= 0 {
		return fmt.Errorf("%s.Min must be > 0, got %v", name, b.Min)
	}

	if b.Max < b.Min {
		return fmt.Errorf("%s.Max (%v) must be >= %s.Min (%v)", name, b.Max, name, b.Min)
	}

	if b.RandomFactor < 0 {
		return fmt.Errorf("%s.RandomFactor must be >= 0, got %v", name, b.RandomFactor)
	}

	return nil
}

// ValidateWithWarnings checks configuration and logs warnings for
// non-recommended values.
//
// This is called after Validate() in component constructors to provide
// operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	// Warn if acks may flush too close to the redelivery deadline.
	if cfg.Consumer.BatchingInterval > cfg.Consumer.AckDeadline/2 {
		logger.Warn(
			"Consumer.BatchingInterval is close to the ack deadline, slow processing risks redelivery",
			"batchingInterval", cfg.Consumer.BatchingInterval,
			"ackDeadline", cfg.Consumer.AckDeadline,
			"recommended", cfg.Consumer.AckDeadline/2,
		)
	}

	// Warn if pull pacing amounts to hot polling.
	if cfg.Consumer.PullInterval < 10*time.Millisecond {
		logger.Warn(
			"Consumer.PullInterval is very short, pulls will hammer the broker",
			"pullInterval", cfg.Consumer.PullInterval,
			"recommended", "100ms or higher",
		)
	}

	// Warn if membership reacts slowly relative to the beat rate.
	if cfg.HeartbeatTTL > 5*cfg.HeartbeatInterval {
		logger.Warn(
			"HeartbeatTTL is large relative to HeartbeatInterval, member failures detect slowly",
			"heartbeatTTL", cfg.HeartbeatTTL,
			"heartbeatInterval", cfg.HeartbeatInterval,
			"recommended", 3*cfg.HeartbeatInterval,
		)
	}
}

// LoadConfig reads, defaults and validates a YAML configuration file.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - Config: Loaded configuration with defaults applied
//   - error: Read, parse or validation failure
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	SetDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return cfg, nil
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Test timings are 10-100x faster than production defaults to enable rapid
// iteration without sacrificing coverage. Use DefaultConfig() for production
// deployments.
//
// Returns:
//   - Config: Configuration with fast timings for tests
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.HeartbeatInterval = 100 * time.Millisecond // 20x faster
	cfg.HeartbeatTTL = 300 * time.Millisecond      // 20x faster
	cfg.OperationTimeout = 5 * time.Second
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.PublisherBackoff = BackoffConfig{Min: 20 * time.Millisecond, Max: 200 * time.Millisecond, RandomFactor: 0.2}
	cfg.ConsumerBackoff = BackoffConfig{Min: 20 * time.Millisecond, Max: 200 * time.Millisecond, RandomFactor: 0.2}
	cfg.Consumer.AckDeadline = 5 * time.Second
	cfg.Consumer.PullInterval = 20 * time.Millisecond // 50x faster
	cfg.Consumer.PullBatchSize = 16
	cfg.Consumer.BufferSize = 64
	cfg.Consumer.BatchingSize = 4
	cfg.Consumer.BatchingInterval = 100 * time.Millisecond // 10x faster
	cfg.KVBuckets.OffsetBucket = "relay-offsets-test"
	cfg.KVBuckets.MembershipBucket = "relay-members-test"

	return cfg
}
