package metrics

import (
	"sync"

	"poolhost/core/events"

	"github.com/prometheus/client_golang/prometheus"
)

// EventMetrics counts emitted engine events. It satisfies events.Emitter so it
// can sit in the daemon's emitter fan-out.
type EventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventOnce     sync.Once
	eventRegistry *EventMetrics
)

// Events returns the metrics registry tracking structured engine events.
func Events() *EventMetrics {
	eventOnce.Do(func() {
		eventRegistry = &EventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "poolhost",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Engine events emitted after commit, segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

func (m *EventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.emitted.WithLabelValues(normalizeLabel(evt.EventType())).Inc()
}
