package notification

import (
	"encoding/json"
	"fmt"
	"time"
)

// Push event names the backend emits alongside the generic "notification"
// event. Each carries the acting user as sender so a session can suppress
// popups for its own actions.
const (
	EventNotification      = "notification"
	EventPurchaseSubmitted = "purchase_submitted"
	EventPurchaseApproved  = "purchase_approved"
	EventPurchaseRejected  = "purchase_rejected"
	EventPurchaseForwarded = "purchase_forwarded"
)

var pushEventKinds = map[string]Kind{
	EventPurchaseSubmitted: KindPurchaseSubmitted,
	EventPurchaseApproved:  KindPurchaseApproved,
	EventPurchaseRejected:  KindPurchaseRejected,
	EventPurchaseForwarded: KindPurchaseForwarded,
}

// PushEventNames lists every named event the push channel subscribes to.
func PushEventNames() []string {
	return []string{
		EventNotification,
		EventPurchaseSubmitted,
		EventPurchaseApproved,
		EventPurchaseRejected,
		EventPurchaseForwarded,
	}
}

// timestampLayouts covers the formats the three channels have been observed
// to emit: RFC3339 from the API, the Postgres text format from the change
// feed.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseTimestamp coerces a raw timestamp string, falling back to the current
// time so live events without one still pass the popup recency gate.
func parseTimestamp(raw string) time.Time {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Now()
}

// NormalizePush converts a raw push-socket payload into the canonical shape.
// The event name decides the kind for the workflow event family; the generic
// notification event carries its own type field.
func NormalizePush(event string, data []byte) (Notification, error) {
	var raw PushEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw.ID == "" {
		return Notification{}, ErrMissingID
	}

	kind := ParseKind(raw.Type)
	if k, ok := pushEventKinds[event]; ok {
		kind = k
	}

	return Notification{
		ID:           string(raw.ID),
		Kind:         kind,
		Title:        raw.Title,
		Message:      raw.Message,
		Priority:     ParsePriority(raw.Priority),
		Timestamp:    parseTimestamp(raw.Timestamp),
		TargetUserID: string(raw.UserID),
		TargetRole:   raw.Role,
		SenderID:     string(raw.SenderID),
		SenderName:   raw.SenderName,
		ActionURL:    raw.ActionURL,
		ActionLabel:  raw.ActionLabel,
		Category:     raw.Category,
		Metadata:     raw.Metadata,
		Channel:      ChannelPush,
	}, nil
}

// NormalizeChangeRow converts a change-feed row payload into the canonical
// shape. Row ids are numeric; they are carried as strings so a change-feed
// row and a push event for the same backend notification share one id.
func NormalizeChangeRow(data []byte) (Notification, error) {
	var raw ChangeRow
	if err := json.Unmarshal(data, &raw); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw.ID == "" {
		return Notification{}, ErrMissingID
	}

	return Notification{
		ID:           string(raw.ID),
		Kind:         ParseKind(raw.Type),
		Title:        raw.Title,
		Message:      raw.Message,
		Priority:     ParsePriority(raw.Priority),
		Timestamp:    parseTimestamp(raw.CreatedAt),
		TargetUserID: string(raw.RecipientID),
		TargetRole:   raw.TargetRole,
		SenderID:     string(raw.SenderID),
		SenderName:   raw.SenderName,
		ActionURL:    raw.ActionURL,
		ActionLabel:  raw.ActionLabel,
		Category:     raw.Category,
		Metadata:     raw.Data,
		Read:         raw.IsRead,
		Channel:      ChannelChangeFeed,
	}, nil
}

// NormalizePollItem converts one GET /notifications list entry into the
// canonical shape.
func NormalizePollItem(item PollItem) (Notification, error) {
	if item.ID == "" {
		return Notification{}, ErrMissingID
	}

	return Notification{
		ID:           string(item.ID),
		Kind:         ParseKind(item.Type),
		Title:        item.Title,
		Message:      item.Message,
		Priority:     ParsePriority(item.Priority),
		Timestamp:    parseTimestamp(item.CreatedAt),
		TargetUserID: string(item.TargetUserID),
		TargetRole:   item.TargetRole,
		SenderID:     string(item.SenderID),
		SenderName:   item.SenderName,
		ActionURL:    item.ActionURL,
		ActionLabel:  item.ActionLabel,
		Category:     item.Category,
		Metadata:     item.Data,
		Read:         item.IsRead,
		Channel:      ChannelPoll,
	}, nil
}
