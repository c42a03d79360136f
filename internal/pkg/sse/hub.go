// Package sse fans events out to the local UI surfaces over server-sent
// events. The agent serves a single operator, so the hub broadcasts: every
// subscriber is another window of the same session.
package sse

import (
	"sync"
)

// Event names pushed to the UI stream.
const (
	EventNotification = "notification" // new entry landed in the store
	EventToast        = "toast"        // transient popup request
	EventNavigate     = "navigate"     // UI should open a notification's action target
	EventBadge        = "badge"        // unread count changed
	EventStatus       = "status"       // connection state changed
)

// Event is one SSE event to be written to subscribers.
type Event struct {
	Event string
	Data  interface{}
}

// Hub manages SSE subscribers and event broadcasting.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewHub creates a new SSE Hub instance.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe registers a subscriber and returns the event channel and cleanup
// function.
func (h *Hub) Subscribe() (chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, 10)
	h.subscribers[ch] = struct{}{}

	cleanup := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subscribers, ch)
		close(ch)
	}

	return ch, cleanup
}

// Publish sends an event to every subscriber.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			// Skip if channel is full (non-blocking to prevent deadlock)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
