// Package diag is the internal diagnostic stream for the delivery pipeline.
// Channel and fetch failures are silent to the user by contract, but they
// must stay visible to engineering: every swallowed error becomes a
// structured event that is logged, kept in a bounded ring for the status
// endpoint, and fanned out to subscribers (used by tests and dev tooling).
package diag

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultRingSize = 100

// Event is one recorded diagnostic.
type Event struct {
	ID        string    `json:"id"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// Recorder collects diagnostic events.
type Recorder struct {
	mu     sync.Mutex
	logger *slog.Logger
	ring   []Event
	limit  int
	subs   map[chan Event]struct{}
}

// NewRecorder creates a Recorder logging through logger. A nil logger
// disables log output but events are still recorded.
func NewRecorder(logger *slog.Logger) *Recorder {
	return &Recorder{
		logger: logger,
		limit:  defaultRingSize,
		subs:   make(map[chan Event]struct{}),
	}
}

// Record captures one diagnostic event. err may be nil for informational
// transitions.
func (r *Recorder) Record(component, message string, err error) {
	event := Event{
		ID:        uuid.New().String(),
		Component: component,
		Message:   message,
		Time:      time.Now(),
	}
	if err != nil {
		event.Error = err.Error()
	}

	if r.logger != nil {
		if err != nil {
			r.logger.Warn(message, "component", component, "error", err)
		} else {
			r.logger.Debug(message, "component", component)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.ring = append(r.ring, event)
	if len(r.ring) > r.limit {
		r.ring = append([]Event(nil), r.ring[len(r.ring)-r.limit:]...)
	}
	for ch := range r.subs {
		select {
		case ch <- event:
		default:
			// Slow subscriber; drop rather than block the pipeline
		}
	}
}

// Recent returns the retained events, oldest first.
func (r *Recorder) Recent() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.ring...)
}

// Subscribe registers a listener for subsequent events and returns the
// channel and a cleanup function.
func (r *Recorder) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)

	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()

	cleanup := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.subs[ch]; ok {
			delete(r.subs, ch)
			close(ch)
		}
	}
	return ch, cleanup
}
