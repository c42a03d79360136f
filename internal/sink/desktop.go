package sink

import (
	"github.com/gen2brain/beeep"

	"github.com/consite-erp/notify-agent/internal/pkg/sse"
)

// DesktopNotifier raises OS-level notifications through the platform's
// notification service.
type DesktopNotifier struct {
	icon string
}

// NewDesktopNotifier creates a desktop notifier. icon is a path to the
// notification icon and may be empty.
func NewDesktopNotifier(icon string) *DesktopNotifier {
	return &DesktopNotifier{icon: icon}
}

func (d *DesktopNotifier) Notify(title, message string) error {
	return beeep.Notify(title, message, d.icon)
}

// HubPresence treats a connected SSE subscriber as a visible UI surface:
// while a window holds the stream open, toasts reach the operator and the
// desktop popup would be noise.
type HubPresence struct {
	hub *sse.Hub
}

func NewHubPresence(hub *sse.Hub) *HubPresence {
	return &HubPresence{hub: hub}
}

func (p *HubPresence) Visible() bool {
	return p.hub.SubscriberCount() > 0
}
