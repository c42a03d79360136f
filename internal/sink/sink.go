// Package sink applies notifications arriving from the channel adapters to
// the local store exactly once and drives the popup side effects: an SSE
// toast for connected UI windows and a desktop notification when none are
// visible.
package sink

import (
	"time"

	"github.com/consite-erp/notify-agent/internal/dedupe"
	"github.com/consite-erp/notify-agent/internal/diag"
	"github.com/consite-erp/notify-agent/internal/domain/notification"
	"github.com/consite-erp/notify-agent/internal/pkg/sse"
	"github.com/consite-erp/notify-agent/internal/session"
)

// popupRecency is how fresh a notification must be to warrant a popup.
// Reconciliation backfill routinely replays hours-old entries; those belong
// in the panel, not on the screen.
const popupRecency = 5 * time.Minute

// Notifier raises a desktop notification.
type Notifier interface {
	Notify(title, message string) error
}

// Visibility reports whether an operator-facing UI surface is currently
// showing. When one is, the SSE toast is enough and the desktop popup is
// skipped.
type Visibility interface {
	Visible() bool
}

// workflow kinds are popup-suppressed when the session user triggered the
// action themselves; the entry still lands in the store.
var workflowKinds = map[notification.Kind]struct{}{
	notification.KindPurchaseSubmitted: {},
	notification.KindPurchaseApproved:  {},
	notification.KindPurchaseRejected:  {},
	notification.KindPurchaseForwarded: {},
}

// Sink is the single funnel between the channel adapters and the store.
// Every adapter calls Deliver concurrently; the dedupe sets guarantee that a
// notification seen on two channels is stored and popped up at most once.
type Sink struct {
	store    notification.Store
	hub      *sse.Hub
	notifier Notifier
	visible  Visibility
	diag     *diag.Recorder
	creds    func() session.Credentials

	stored  *dedupe.Set
	toasted *dedupe.Set
	popped  *dedupe.Set

	now func() time.Time
}

// New creates the sink. notifier and visible may be nil, disabling desktop
// popups.
func New(store notification.Store, hub *sse.Hub, notifier Notifier, visible Visibility, recorder *diag.Recorder, creds func() session.Credentials) *Sink {
	return &Sink{
		store:    store,
		hub:      hub,
		notifier: notifier,
		visible:  visible,
		diag:     recorder,
		creds:    creds,
		stored:   dedupe.NewSet(0),
		toasted:  dedupe.NewSet(0),
		popped:   dedupe.NewSet(0),
		now:      time.Now,
	}
}

// Deliver applies one notification. Duplicates and entries addressed to
// someone else are dropped.
func (s *Sink) Deliver(n notification.Notification) {
	creds := s.creds()
	if !notification.AddressedTo(n, creds.UserID, creds.Role) {
		s.diag.Record("sink", "dropped notification "+n.ID, notification.ErrNotAddressed)
		return
	}
	if !s.stored.CheckAndAdd(n.ID) {
		return
	}
	s.store.Add(n)
	s.hub.Publish(sse.Event{Event: sse.EventNotification, Data: notification.ToResponse(n)})
	s.publishBadge()
	s.popup(n, creds)
}

// DeliverBatch applies a reconciliation batch with a single store mutation.
// Popup side effects still run per entry so a fresh notification fetched via
// reconciliation is surfaced exactly like a pushed one.
func (s *Sink) DeliverBatch(ns []notification.Notification) {
	creds := s.creds()

	fresh := make([]notification.Notification, 0, len(ns))
	for _, n := range ns {
		if !notification.AddressedTo(n, creds.UserID, creds.Role) {
			continue
		}
		if !s.stored.CheckAndAdd(n.ID) {
			continue
		}
		fresh = append(fresh, n)
	}
	if len(fresh) == 0 {
		return
	}

	s.store.AddBatch(fresh)
	for _, n := range fresh {
		s.hub.Publish(sse.Event{Event: sse.EventNotification, Data: notification.ToResponse(n)})
	}
	s.publishBadge()
	for _, n := range fresh {
		s.popup(n, creds)
	}
}

func (s *Sink) publishBadge() {
	s.hub.Publish(sse.Event{Event: sse.EventBadge, Data: map[string]int{"unread": s.store.UnreadCount()}})
}

// popup raises the transient surfaces for n when it deserves attention right
// now: recent, and not an echo of the session user's own action.
func (s *Sink) popup(n notification.Notification, creds session.Credentials) {
	if s.now().Sub(n.Timestamp) > popupRecency {
		return
	}
	if s.selfAction(n, creds) {
		return
	}

	if s.toasted.CheckAndAdd(n.ID) {
		s.hub.Publish(sse.Event{Event: sse.EventToast, Data: notification.ToResponse(n)})
	}

	if s.notifier == nil || (s.visible != nil && s.visible.Visible()) {
		return
	}
	if s.popped.CheckAndAdd(n.ID) {
		if err := s.notifier.Notify(n.Title, n.Message); err != nil {
			s.diag.Record("sink", "desktop notification failed for "+n.ID, err)
		}
	}
}

func (s *Sink) selfAction(n notification.Notification, creds session.Credentials) bool {
	if _, ok := workflowKinds[n.Kind]; !ok {
		return false
	}
	return n.SenderID != "" && n.SenderID == creds.UserID
}
