package events

import (
	"log/slog"
	"sync"
)

// Multi fans an event out to every emitter in order.
type Multi []Emitter

func (m Multi) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Recorder keeps a bounded history of emitted events.
type Recorder struct {
	mu       sync.Mutex
	capacity int
	events   []Event
}

// NewRecorder retains at most capacity events; older ones are dropped first.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 256
	}
	return &Recorder{capacity: capacity}
}

func (r *Recorder) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == r.capacity {
		copy(r.events, r.events[1:])
		r.events = r.events[:len(r.events)-1]
	}
	r.events = append(r.events, evt)
}

// Events returns a snapshot of the retained history, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// LogEmitter writes each event to a structured logger at info level.
type LogEmitter struct {
	Logger *slog.Logger
}

func (l LogEmitter) Emit(evt Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{slog.String("type", evt.EventType())}
	if payload := Attributes(evt); payload != nil {
		for _, key := range payload.SortedKeys() {
			attrs = append(attrs, slog.String(key, payload.Attr(key)))
		}
	}
	logger.Info("engine event", attrs...)
}
