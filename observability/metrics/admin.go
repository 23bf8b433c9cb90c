package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type AdminMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles prometheus.Counter
}

var (
	adminOnce     sync.Once
	adminRegistry *AdminMetrics
)

// Admin returns the registry for the daemon's HTTP admin surface.
func Admin() *AdminMetrics {
	adminOnce.Do(func() {
		adminRegistry = &AdminMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "poolhost",
				Subsystem: "admin",
				Name:      "requests_total",
				Help:      "Admin API requests segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "poolhost",
				Subsystem: "admin",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for admin API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "poolhost",
				Subsystem: "admin",
				Name:      "throttles_total",
				Help:      "Admin API requests rejected by the rate limiter.",
			}),
		}
		prometheus.MustRegister(
			adminRegistry.requests,
			adminRegistry.latency,
			adminRegistry.throttles,
		)
	})
	return adminRegistry
}

// Observe records one handled request. Route should be the router pattern,
// not the raw path, to keep label cardinality bounded.
func (m *AdminMetrics) Observe(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	route = normalizeRoute(route)
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *AdminMetrics) Throttled() {
	if m == nil {
		return
	}
	m.throttles.Inc()
}

func normalizeRoute(route string) string {
	if route == "" {
		return "unmatched"
	}
	return route
}
