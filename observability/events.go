package observability

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"amplifier/core/events"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking emitted protocol events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "amplifier",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of emitted protocol events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// Record increments the event counter for the supplied type.
func (m *eventMetrics) Record(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(eventType))
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(normalized).Inc()
}

// EventEmitter is an events.Emitter that logs every event and feeds the
// event counter. It is the emitter the daemon wires into the engines.
type EventEmitter struct {
	logger *slog.Logger
}

// NewEventEmitter builds an emitter over the given logger. A nil logger
// falls back to the default slog logger.
func NewEventEmitter(logger *slog.Logger) *EventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventEmitter{logger: logger}
}

// Emit implements events.Emitter.
func (e *EventEmitter) Emit(event events.Event) {
	if event == nil {
		return
	}
	Events().Record(event.EventType())
	recordProtocolActivity(event.EventType())
	e.logger.Info("event emitted", "type", event.EventType())
}

// recordProtocolActivity maps lifecycle events onto the protocol counters.
func recordProtocolActivity(eventType string) {
	switch eventType {
	case events.TypeArbOpened:
		Protocol().RecordArbRound("opened")
	case events.TypeArbSettled:
		Protocol().RecordArbRound("settled")
	case events.TypeHubBatchSubmitted:
		Protocol().RecordHubBatch("submitted")
	case events.TypeHubBatchReconciled:
		Protocol().RecordHubBatch("reconciled")
	case events.TypeAmpzExecutionStarted:
		Protocol().RecordAmpzExecution("started")
	case events.TypeAmpzExecutionFinished:
		Protocol().RecordAmpzExecution("finished")
	case events.TypeFarmCompounded:
		Protocol().RecordCompound()
	}
}
