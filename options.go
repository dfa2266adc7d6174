package relay

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/relay/internal/hooks"
	"github.com/arloliu/relay/internal/logger"
	"github.com/arloliu/relay/internal/logging"
	"github.com/arloliu/relay/internal/metrics"
)

// Option configures a component with optional dependencies.
type Option func(*componentOptions)

// componentOptions holds optional component configuration.
type componentOptions struct {
	logger      Logger
	metrics     MetricsCollector
	hooks       *Hooks
	backoffSeed int64
}

// applyOptions runs the options and substitutes no-op implementations for
// anything left unset, so components never nil-check their collaborators.
func applyOptions(opts []Option) *componentOptions {
	o := &componentOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = logger.NewNop()
	}
	if o.metrics == nil {
		o.metrics = metrics.NewNop()
	}
	if o.hooks == nil {
		nopHooks := hooks.NewNop()
		o.hooks = &nopHooks
	}

	return o
}

// NewSlogLogger adapts an *slog.Logger to the Logger interface; nil wraps
// slog.Default(). Fatal logs at Error level and exits the process.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		return logging.NewSlogDefault()
	}

	return logging.NewSlog(l)
}

// NewPrometheusMetrics returns a MetricsCollector registering its vectors
// with reg; nil uses prometheus.DefaultRegisterer. The namespace prefixes
// every metric family and defaults to "relay" when empty.
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) MetricsCollector {
	return metrics.NewPrometheus(reg, namespace)
}

// WithLogger sets a logger. Components default to a silent logger, so set
// one to see lifecycle transitions, restarts, and reconcile results.
//
// Example:
//
//	pub, err := relay.NewPublisher(&cfg, tag, transport, store, src, nil,
//	    relay.WithLogger(relay.NewSlogLogger(slog.Default())))
func WithLogger(logger Logger) Option {
	return func(o *componentOptions) {
		o.logger = logger
	}
}

// WithMetrics sets a metrics collector. The default collector discards
// everything.
//
// Example:
//
//	collector := relay.NewPrometheusMetrics(nil, "relay")
//	coord, err := relay.NewCoordinator(&cfg, oracle, factory, relay.WithMetrics(collector))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *componentOptions) {
		o.metrics = metrics
	}
}

// WithHooks sets lifecycle event hooks. Unset callbacks are no-ops.
//
// Example:
//
//	hooks := &relay.Hooks{
//	    OnTagsReassigned: func(ctx context.Context, added, removed []relay.Tag) error {
//	        return handleChanges(added, removed)
//	    },
//	}
//	coord, err := relay.NewCoordinator(&cfg, oracle, factory, relay.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *componentOptions) {
		o.hooks = hooks
	}
}

// WithBackoffSeed fixes the jitter source for restart delays, making
// supervision timing deterministic. Intended for tests; seed 0 keeps the
// shared PRNG.
func WithBackoffSeed(seed int64) Option {
	return func(o *componentOptions) {
		o.backoffSeed = seed
	}
}
