package notification

// Store is the local notification store: the single source of truth for the
// unread badge and the notification panel. Entries are appended via atomic
// add operations and never mutated in place except the read flag.
type Store interface {
	// Add appends a notification unless an entry with the same id already
	// exists. Reports whether the entry was added.
	Add(n Notification) bool
	// AddBatch appends a batch atomically (one mutation, one listener
	// round) and returns the number of entries actually added.
	AddBatch(ns []Notification) int
	// List returns all entries, newest first.
	List() []Notification
	Get(id string) (Notification, error)
	UnreadCount() int
	MarkAsRead(ids []string) error
	MarkAllAsRead()
	Len() int
}

// Sink consumes canonical notifications produced by the channel adapters and
// enforces at-most-once delivery to the store and the popup side effects.
type Sink interface {
	Deliver(n Notification)
	// DeliverBatch applies a reconciliation batch with a single store
	// mutation.
	DeliverBatch(ns []Notification)
}
