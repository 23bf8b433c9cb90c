package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics records pool engine activity. It satisfies pool.Observer.
type EngineMetrics struct {
	actions  *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	skips    *prometheus.CounterVec
	unlocked *prometheus.CounterVec
}

var (
	engineOnce     sync.Once
	engineRegistry *EngineMetrics
)

// Engine returns the lazily-initialised engine metrics registry.
func Engine() *EngineMetrics {
	engineOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			actions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "poolhost",
				Subsystem: "engine",
				Name:      "actions_total",
				Help:      "Pool engine actions segmented by action and outcome.",
			}, []string{"action", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "poolhost",
				Subsystem: "engine",
				Name:      "action_duration_seconds",
				Help:      "Latency distribution of pool engine actions.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"action"}),
			skips: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "poolhost",
				Subsystem: "engine",
				Name:      "pool_skips_total",
				Help:      "Pools passed over by the allocator segmented by reason.",
			}, []string{"reason"}),
			unlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "poolhost",
				Subsystem: "engine",
				Name:      "unlocked_tokens_total",
				Help:      "Raw token units returned to availability by unlock sweeps.",
			}, []string{"scope"}),
		}
		prometheus.MustRegister(
			engineRegistry.actions,
			engineRegistry.latency,
			engineRegistry.skips,
			engineRegistry.unlocked,
		)
	})
	return engineRegistry
}

func (m *EngineMetrics) ObserveAction(action, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	action = normalizeLabel(action)
	m.actions.WithLabelValues(action, normalizeLabel(outcome)).Inc()
	m.latency.WithLabelValues(action).Observe(elapsed.Seconds())
}

func (m *EngineMetrics) ObservePoolSkip(reason string) {
	if m == nil {
		return
	}
	m.skips.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveUnlock adds amount to the released total of scope ("pool" or
// "holder"). Zero amounts are ignored.
func (m *EngineMetrics) ObserveUnlock(scope string, amount uint64) {
	if m == nil || amount == 0 {
		return
	}
	m.unlocked.WithLabelValues(normalizeLabel(scope)).Add(float64(amount))
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}
