package metrics

import (
	"testing"
	"time"

	"poolhost/core/events"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type namedEvent string

func (e namedEvent) EventType() string { return string(e) }

func TestEngineMetricsCountActions(t *testing.T) {
	m := Engine()
	before := testutil.ToFloat64(m.actions.WithLabelValues("reqservice", "ok"))
	m.ObserveAction("ReqService", "ok", 5*time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.actions.WithLabelValues("reqservice", "ok")))

	skips := testutil.ToFloat64(m.skips.WithLabelValues("restricted"))
	m.ObservePoolSkip("restricted")
	require.Equal(t, skips+1, testutil.ToFloat64(m.skips.WithLabelValues("restricted")))
}

func TestEngineMetricsIgnoreEmptyUnlock(t *testing.T) {
	m := Engine()
	before := testutil.ToFloat64(m.unlocked.WithLabelValues("pool"))
	m.ObserveUnlock("pool", 0)
	m.ObserveUnlock("pool", 1_000_000)
	require.Equal(t, before+1_000_000, testutil.ToFloat64(m.unlocked.WithLabelValues("pool")))

	var nilMetrics *EngineMetrics
	nilMetrics.ObserveUnlock("pool", 1)
}

func TestEventMetricsEmit(t *testing.T) {
	var emitter events.Emitter = Events()
	before := testutil.ToFloat64(Events().emitted.WithLabelValues("pool.created"))
	emitter.Emit(namedEvent("pool.created"))
	emitter.Emit(nil)
	require.Equal(t, before+1, testutil.ToFloat64(Events().emitted.WithLabelValues("pool.created")))
}

func TestTrackPendingReplacesSource(t *testing.T) {
	TrackPending(func() int { return 3 })
	require.Equal(t, float64(3), pendingDepth())
	TrackPending(func() int { return 7 })
	require.Equal(t, float64(7), pendingDepth())
}

func TestAdminMetricsObserve(t *testing.T) {
	m := Admin()
	before := testutil.ToFloat64(m.requests.WithLabelValues("unmatched", "404"))
	m.Observe("", 404, time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.requests.WithLabelValues("unmatched", "404")))
	m.Throttled()
	require.GreaterOrEqual(t, testutil.ToFloat64(m.throttles), float64(1))
}
