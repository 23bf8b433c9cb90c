package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pendingOnce sync.Once
	pendingMu   sync.RWMutex
	pendingFn   func() int
)

// TrackPending exposes the depth reported by fn as poolhost_scheduler_pending.
// Later calls replace the source; the gauge is registered once.
func TrackPending(fn func() int) {
	pendingMu.Lock()
	pendingFn = fn
	pendingMu.Unlock()
	pendingOnce.Do(func() {
		prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "poolhost",
			Subsystem: "scheduler",
			Name:      "pending",
			Help:      "Unlock callbacks waiting in the scheduler queue.",
		}, pendingDepth))
	})
}

func pendingDepth() float64 {
	pendingMu.RLock()
	defer pendingMu.RUnlock()
	if pendingFn == nil {
		return 0
	}
	return float64(pendingFn())
}
