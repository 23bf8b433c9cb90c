package sched

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/time/rate"
)

// ErrClosed is returned when scheduling onto a queue that has stopped.
var ErrClosed = errors.New("sched: queue closed")

const (
	defaultRetryDelay = 5 * time.Second
	defaultBurst      = 1
)

// Option adjusts the behaviour of a Queue.
type Option func(*queueConfig)

type queueConfig struct {
	limit      rate.Limit
	burst      int
	retryDelay time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// WithRateLimit caps how often fired callbacks run.
func WithRateLimit(every time.Duration, burst int) Option {
	return func(cfg *queueConfig) {
		if every > 0 {
			cfg.limit = rate.Every(every)
		}
		if burst > 0 {
			cfg.burst = burst
		}
	}
}

// WithRetryDelay sets how long a failed callback waits before it runs again.
func WithRetryDelay(delay time.Duration) Option {
	return func(cfg *queueConfig) {
		if delay > 0 {
			cfg.retryDelay = delay
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *queueConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// withClock overrides the clock used to decide what is due (test only).
func withClock(now func() time.Time) Option {
	return func(cfg *queueConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

type entry struct {
	id    string
	due   time.Time
	index int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].id < h[j].id
	}
	return h[i].due.Before(h[j].due)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue defers named callbacks. Entries sharing an id collapse into one that
// fires at the earliest requested time. Callbacks due together are coalesced
// into a single invocation, which suits idempotent sweeps.
type Queue struct {
	mu         sync.Mutex
	entries    entryHeap
	byID       map[string]*entry
	wake       chan struct{}
	closed     bool
	limiter    *rate.Limiter
	retryDelay time.Duration
	now        func() time.Time
	logger     *slog.Logger
	metrics    *queueMetrics
}

// NewQueue constructs an empty queue.
func NewQueue(opts ...Option) *Queue {
	cfg := queueConfig{
		limit:      rate.Inf,
		burst:      defaultBurst,
		retryDelay: defaultRetryDelay,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Queue{
		byID:       make(map[string]*entry),
		wake:       make(chan struct{}, 1),
		limiter:    rate.NewLimiter(cfg.limit, cfg.burst),
		retryDelay: cfg.retryDelay,
		now:        cfg.now,
		logger:     cfg.logger,
		metrics:    schedMetrics(),
	}
}

// Schedule registers id to fire no earlier than delay from now.
func (q *Queue) Schedule(id string, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	due := q.now().Add(delay)
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if existing, ok := q.byID[id]; ok {
		if due.Before(existing.due) {
			existing.due = due
			heap.Fix(&q.entries, existing.index)
		}
	} else {
		e := &entry{id: id, due: due}
		heap.Push(&q.entries, e)
		q.byID[id] = e
	}
	q.mu.Unlock()
	q.metrics.scheduled.Add(context.Background(), 1)
	q.signal()
	return nil
}

// Len reports how many callbacks are waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// NextDue reports when the earliest callback is due.
func (q *Queue) NextDue() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return time.Time{}, false
	}
	return q.entries[0].due, true
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// popDue removes every entry due at now and returns their ids.
func (q *Queue) popDue(now time.Time) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var ids []string
	for len(q.entries) > 0 && !q.entries[0].due.After(now) {
		e := heap.Pop(&q.entries).(*entry)
		delete(q.byID, e.id)
		ids = append(ids, e.id)
	}
	return ids
}

// Run fires fn whenever callbacks fall due until ctx is cancelled. A failed
// invocation is retried after the retry delay under the first coalesced id.
func (q *Queue) Run(ctx context.Context, fn func(context.Context) error) error {
	defer func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
	}()
	for {
		ids := q.popDue(q.now())
		if len(ids) > 0 {
			if err := q.limiter.Wait(ctx); err != nil {
				return nil
			}
			started := time.Now()
			err := fn(ctx)
			outcome := "ok"
			if err != nil {
				outcome = "error"
				q.logger.Warn("scheduled callback failed",
					slog.String("callback", ids[0]),
					slog.Int("coalesced", len(ids)),
					slog.String("error", err.Error()))
				_ = q.Schedule(ids[0], q.retryDelay)
			}
			q.metrics.fired.Add(ctx, int64(len(ids)), metric.WithAttributes(attribute.String("outcome", outcome)))
			q.metrics.latency.Record(ctx, time.Since(started).Seconds())
			continue
		}

		var timer *time.Timer
		var timerC <-chan time.Time
		if due, ok := q.NextDue(); ok {
			timer = time.NewTimer(due.Sub(q.now()))
			timerC = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case <-q.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

var (
	metricsOnce   sync.Once
	sharedMetrics *queueMetrics
)

type queueMetrics struct {
	scheduled metric.Int64Counter
	fired     metric.Int64Counter
	latency   metric.Float64Histogram
}

func schedMetrics() *queueMetrics {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("poolhost/core/sched")
		fallback := noop.NewMeterProvider().Meter("poolhost/core/sched")
		m := &queueMetrics{}
		var err error
		if m.scheduled, err = meter.Int64Counter("poolhost.sched.scheduled"); err != nil {
			m.scheduled, _ = fallback.Int64Counter("poolhost.sched.scheduled")
		}
		if m.fired, err = meter.Int64Counter("poolhost.sched.fired"); err != nil {
			m.fired, _ = fallback.Int64Counter("poolhost.sched.fired")
		}
		if m.latency, err = meter.Float64Histogram("poolhost.sched.callback.seconds"); err != nil {
			m.latency, _ = fallback.Float64Histogram("poolhost.sched.callback.seconds")
		}
		sharedMetrics = m
	})
	return sharedMetrics
}
