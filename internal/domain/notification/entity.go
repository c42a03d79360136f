package notification

import (
	"time"
)

// Kind represents the kind of notification
type Kind string

const (
	KindGeneric           Kind = "generic"
	KindPurchaseSubmitted Kind = "purchase_submitted"
	KindPurchaseApproved  Kind = "purchase_approved"
	KindPurchaseRejected  Kind = "purchase_rejected"
	KindPurchaseForwarded Kind = "purchase_forwarded"
	KindChangeRequest     Kind = "change_request"
	KindInventoryAlert    Kind = "inventory_alert"
	KindLabourUpdate      Kind = "labour_update"
	KindVendorUpdate      Kind = "vendor_update"
	KindAssetAssignment   Kind = "asset_assignment"
	KindScheduleUpdated   Kind = "schedule_updated"
)

// AllKinds returns all available notification kinds
func AllKinds() []Kind {
	return []Kind{
		KindGeneric,
		KindPurchaseSubmitted,
		KindPurchaseApproved,
		KindPurchaseRejected,
		KindPurchaseForwarded,
		KindChangeRequest,
		KindInventoryAlert,
		KindLabourUpdate,
		KindVendorUpdate,
		KindAssetAssignment,
		KindScheduleUpdated,
	}
}

// ParseKind maps a raw type string to a known Kind, defaulting to generic.
func ParseKind(s string) Kind {
	for _, k := range AllKinds() {
		if string(k) == s {
			return k
		}
	}
	return KindGeneric
}

// Priority represents notification urgency
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority maps a raw priority string to a known Priority, defaulting
// to medium.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return Priority(s)
	}
	return PriorityMedium
}

// Channel identifies the transport a notification arrived on
type Channel string

const (
	ChannelPush       Channel = "push"
	ChannelChangeFeed Channel = "changefeed"
	ChannelPoll       Channel = "poll"
)

// Notification is the canonical shape every channel payload is normalized
// into before filtering and delivery. ID is stable across channels for the
// same logical event and is always carried as a string. Immutable once
// created; only the store toggles the Read flag on its own copy.
type Notification struct {
	ID           string
	Kind         Kind
	Title        string
	Message      string
	Priority     Priority
	Timestamp    time.Time
	TargetUserID string
	TargetRole   string
	SenderID     string
	SenderName   string
	ActionURL    string
	ActionLabel  string
	Category     string
	Metadata     map[string]interface{}

	// Local delivery state
	Read    bool
	ReadAt  *time.Time
	Channel Channel
}
