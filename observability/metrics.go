package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type engineMetrics struct {
	operations *prometheus.CounterVec
	errors     *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

type protocolMetrics struct {
	arbRounds      *prometheus.CounterVec
	hubBatches     *prometheus.CounterVec
	ampzExecutions *prometheus.CounterVec
	compounds      prometheus.Counter
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *engineMetrics

	protocolMetricsOnce sync.Once
	protocolRegistry    *protocolMetrics
)

// Engine returns the lazily-initialised registry used to record engine
// operation activity across modules.
func Engine() *engineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &engineMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "amplifier",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Total engine operations segmented by module, operation, and outcome.",
			}, []string{"module", "operation", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "amplifier",
				Subsystem: "engine",
				Name:      "errors_total",
				Help:      "Total engine operation errors segmented by module and operation.",
			}, []string{"module", "operation"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "amplifier",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for engine operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "operation"}),
		}
		prometheus.MustRegister(
			engineRegistry.operations,
			engineRegistry.errors,
			engineRegistry.latency,
		)
	})
	return engineRegistry
}

// Observe records one engine operation outcome with its duration.
func (m *engineMetrics) Observe(module, operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	module = normalizeLabel(module)
	operation = normalizeLabel(operation)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.errors.WithLabelValues(module, operation).Inc()
	}
	m.operations.WithLabelValues(module, operation, outcome).Inc()
	m.latency.WithLabelValues(module, operation).Observe(duration.Seconds())
}

// Protocol returns the registry tracking protocol-level activity.
func Protocol() *protocolMetrics {
	protocolMetricsOnce.Do(func() {
		protocolRegistry = &protocolMetrics{
			arbRounds: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "amplifier",
				Subsystem: "arbvault",
				Name:      "rounds_total",
				Help:      "Count of arbitrage rounds segmented by phase.",
			}, []string{"phase"}),
			hubBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "amplifier",
				Subsystem: "hub",
				Name:      "batches_total",
				Help:      "Count of hub batch transitions segmented by state.",
			}, []string{"state"}),
			ampzExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "amplifier",
				Subsystem: "ampz",
				Name:      "executions_total",
				Help:      "Count of scheduler execution lifecycle transitions.",
			}, []string{"transition"}),
			compounds: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "amplifier",
				Subsystem: "farm",
				Name:      "compounds_total",
				Help:      "Count of successful farm compound rounds.",
			}),
		}
		prometheus.MustRegister(
			protocolRegistry.arbRounds,
			protocolRegistry.hubBatches,
			protocolRegistry.ampzExecutions,
			protocolRegistry.compounds,
		)
	})
	return protocolRegistry
}

// RecordArbRound counts a round phase ("opened" or "settled").
func (m *protocolMetrics) RecordArbRound(phase string) {
	if m == nil {
		return
	}
	m.arbRounds.WithLabelValues(normalizeLabel(phase)).Inc()
}

// RecordHubBatch counts a batch transition ("submitted" or "reconciled").
func (m *protocolMetrics) RecordHubBatch(state string) {
	if m == nil {
		return
	}
	m.hubBatches.WithLabelValues(normalizeLabel(state)).Inc()
}

// RecordAmpzExecution counts a scheduler lifecycle transition.
func (m *protocolMetrics) RecordAmpzExecution(transition string) {
	if m == nil {
		return
	}
	m.ampzExecutions.WithLabelValues(normalizeLabel(transition)).Inc()
}

// RecordCompound counts one farm compound round.
func (m *protocolMetrics) RecordCompound() {
	if m == nil {
		return
	}
	m.compounds.Inc()
}

func normalizeLabel(label string) string {
	normalized := strings.TrimSpace(strings.ToLower(label))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
