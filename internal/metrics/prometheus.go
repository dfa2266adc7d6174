package metrics

import (
	"sync"

	"github.com/arloliu/relay/types"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Metric families are registered lazily on first use so constructing the
// collector never panics on duplicate registration in tests.
type PrometheusCollector struct {
	*NopMetrics

	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	// Publisher metrics
	pubStateTransitions *prometheus.CounterVec
	pubPublishes        *prometheus.CounterVec
	pubPublishLatency   *prometheus.HistogramVec
	pubOffset           *prometheus.GaugeVec

	// Consumer metrics
	conPullBatch      *prometheus.HistogramVec
	conProcessed      *prometheus.CounterVec
	conProcessLatency *prometheus.HistogramVec
	conAckFlushes     *prometheus.CounterVec
	conAckBatchSize   *prometheus.HistogramVec

	// Supervisor metrics
	supRestarts     *prometheus.CounterVec
	supRestartDelay *prometheus.HistogramVec
	supResets       *prometheus.CounterVec
	supCompletions  *prometheus.CounterVec

	// Coordinator metrics
	coordOwnedTags     prometheus.Gauge
	coordReassignments *prometheus.CounterVec
	coordHeartbeats    *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "relay" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "relay"
	}

	return &PrometheusCollector{NopMetrics: NewNop(), reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.pubStateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "publisher",
			Name:      "state_transitions_total",
			Help:      "Total publisher state transitions by tag and target state.",
		}, []string{"tag", "to"})

		p.pubPublishes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "publisher",
			Name:      "publishes_total",
			Help:      "Total publish attempts by tag and result.",
		}, []string{"tag", "result"})

		p.pubPublishLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "publisher",
			Name:      "publish_latency_seconds",
			Help:      "Publish round-trip latency in seconds by tag.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~4s
		}, []string{"tag"})

		p.pubOffset = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "publisher",
			Name:      "committed_offset",
			Help:      "Last committed offset by tag.",
		}, []string{"tag"})

		p.conPullBatch = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "consumer",
			Name:      "pull_batch_size",
			Help:      "Messages returned per pull by subscription.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}, []string{"subscription"})

		p.conProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "consumer",
			Name:      "processed_total",
			Help:      "Total processed messages by subscription and result.",
		}, []string{"subscription", "result"})

		p.conProcessLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "consumer",
			Name:      "process_latency_seconds",
			Help:      "Processing stage latency in seconds by subscription.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"subscription"})

		p.conAckFlushes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "consumer",
			Name:      "ack_flushes_total",
			Help:      "Total ack batch flushes by subscription and trigger (size|interval).",
		}, []string{"subscription", "reason"})

		p.conAckBatchSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "consumer",
			Name:      "ack_batch_size",
			Help:      "Deliveries per flushed ack batch by subscription.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}, []string{"subscription"})

		p.supRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "supervisor",
			Name:      "restarts_total",
			Help:      "Total pipeline restarts by pipeline.",
		}, []string{"pipeline"})

		p.supRestartDelay = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "supervisor",
			Name:      "restart_delay_seconds",
			Help:      "Backoff delay before each restart in seconds by pipeline.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms .. ~3.4min
		}, []string{"pipeline"})

		p.supResets = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "supervisor",
			Name:      "backoff_resets_total",
			Help:      "Total backoff resets after stable runs by pipeline.",
		}, []string{"pipeline"})

		p.supCompletions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "supervisor",
			Name:      "completions_total",
			Help:      "Total clean pipeline completions by pipeline.",
		}, []string{"pipeline"})

		p.coordOwnedTags = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "owned_tags",
			Help:      "Current number of tags owned by this member.",
		})

		p.coordReassignments = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "reassignments_total",
			Help:      "Total tag ownership changes by direction (added|removed).",
		}, []string{"direction"})

		p.coordHeartbeats = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "heartbeats_total",
			Help:      "Total membership heartbeat attempts by member and result.",
		}, []string{"member", "result"})

		p.reg.MustRegister(p.pubStateTransitions)
		p.reg.MustRegister(p.pubPublishes)
		p.reg.MustRegister(p.pubPublishLatency)
		p.reg.MustRegister(p.pubOffset)
		p.reg.MustRegister(p.conPullBatch)
		p.reg.MustRegister(p.conProcessed)
		p.reg.MustRegister(p.conProcessLatency)
		p.reg.MustRegister(p.conAckFlushes)
		p.reg.MustRegister(p.conAckBatchSize)
		p.reg.MustRegister(p.supRestarts)
		p.reg.MustRegister(p.supRestartDelay)
		p.reg.MustRegister(p.supResets)
		p.reg.MustRegister(p.supCompletions)
		p.reg.MustRegister(p.coordOwnedTags)
		p.reg.MustRegister(p.coordReassignments)
		p.reg.MustRegister(p.coordHeartbeats)
	})
}

// PublisherMetrics implementation

// RecordPublisherState counts a state transition for the tag.
func (p *PrometheusCollector) RecordPublisherState(tag string, _, to types.PublisherState) {
	p.ensureRegistered()
	p.pubStateTransitions.WithLabelValues(tag, to.String()).Inc()
}

// RecordPublish counts a publish attempt and observes its latency.
func (p *PrometheusCollector) RecordPublish(tag string, success bool, duration float64) {
	p.ensureRegistered()
	p.pubPublishes.WithLabelValues(tag, resultLabel(success)).Inc()
	p.pubPublishLatency.WithLabelValues(tag).Observe(duration)
}

// RecordOffsetCommit sets the committed offset gauge for the tag.
func (p *PrometheusCollector) RecordOffsetCommit(tag string, offset int64) {
	p.ensureRegistered()
	p.pubOffset.WithLabelValues(tag).Set(float64(offset))
}

// ConsumerMetrics implementation

// RecordPullBatch observes the size of one pull result.
func (p *PrometheusCollector) RecordPullBatch(subscription string, count int) {
	p.ensureRegistered()
	p.conPullBatch.WithLabelValues(subscription).Observe(float64(count))
}

// RecordProcess counts a processing-stage invocation and observes latency.
func (p *PrometheusCollector) RecordProcess(subscription string, success bool, duration float64) {
	p.ensureRegistered()
	p.conProcessed.WithLabelValues(subscription, resultLabel(success)).Inc()
	p.conProcessLatency.WithLabelValues(subscription).Observe(duration)
}

// RecordAckFlush counts a flush and observes the batch size.
func (p *PrometheusCollector) RecordAckFlush(subscription string, size int, reason string) {
	p.ensureRegistered()
	p.conAckFlushes.WithLabelValues(subscription, reason).Inc()
	p.conAckBatchSize.WithLabelValues(subscription).Observe(float64(size))
}

// SupervisorMetrics implementation

// RecordRestart counts a restart and observes its backoff delay.
func (p *PrometheusCollector) RecordRestart(pipeline string, _ int, delay float64) {
	p.ensureRegistered()
	p.supRestarts.WithLabelValues(pipeline).Inc()
	p.supRestartDelay.WithLabelValues(pipeline).Observe(delay)
}

// RecordBackoffReset counts a reset after a stable run.
func (p *PrometheusCollector) RecordBackoffReset(pipeline string) {
	p.ensureRegistered()
	p.supResets.WithLabelValues(pipeline).Inc()
}

// RecordCompletion counts a clean completion.
func (p *PrometheusCollector) RecordCompletion(pipeline string, _ float64) {
	p.ensureRegistered()
	p.supCompletions.WithLabelValues(pipeline).Inc()
}

// CoordinatorMetrics implementation

// RecordOwnedTags sets the owned tag gauge.
func (p *PrometheusCollector) RecordOwnedTags(count int) {
	p.ensureRegistered()
	p.coordOwnedTags.Set(float64(count))
}

// RecordReassignment counts ownership changes in both directions.
func (p *PrometheusCollector) RecordReassignment(added, removed int) {
	p.ensureRegistered()
	if added > 0 {
		p.coordReassignments.WithLabelValues("added").Add(float64(added))
	}
	if removed > 0 {
		p.coordReassignments.WithLabelValues("removed").Add(float64(removed))
	}
}

// RecordHeartbeat counts a membership heartbeat attempt.
func (p *PrometheusCollector) RecordHeartbeat(memberID string, success bool) {
	p.ensureRegistered()
	p.coordHeartbeats.WithLabelValues(memberID, resultLabel(success)).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}

	return "failure"
}
