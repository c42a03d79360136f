package notification

import (
	"bytes"
	"encoding/json"
	"time"
)

// FlexID is a notification id that may arrive as a JSON string or number
// depending on the channel. It always unmarshals to its string form so the
// same logical notification deduplicates correctly across channels.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

// ============= Raw channel payloads =============

// PushEvent is the payload shape emitted on the websocket channel. Field
// names follow the backend's socket emitter (camelCase).
type PushEvent struct {
	ID          FlexID                 `json:"id"`
	Type        string                 `json:"type"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Priority    string                 `json:"priority"`
	Timestamp   string                 `json:"timestamp"`
	UserID      FlexID                 `json:"userId"`
	Role        string                 `json:"role"`
	SenderID    FlexID                 `json:"senderId"`
	SenderName  string                 `json:"senderName"`
	ActionURL   string                 `json:"actionUrl"`
	ActionLabel string                 `json:"actionLabel"`
	Category    string                 `json:"category"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// ChangeRow is the payload shape delivered by the database change feed: the
// inserted notifications row serialized with its column names.
type ChangeRow struct {
	ID          FlexID                 `json:"id"`
	RecipientID FlexID                 `json:"recipient_id"`
	TargetRole  string                 `json:"target_role"`
	SenderID    FlexID                 `json:"sender_id"`
	SenderName  string                 `json:"sender_name"`
	Type        string                 `json:"type"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Priority    string                 `json:"priority"`
	ActionURL   string                 `json:"action_url"`
	ActionLabel string                 `json:"action_label"`
	Category    string                 `json:"category"`
	Data        map[string]interface{} `json:"data"`
	IsRead      bool                   `json:"is_read"`
	CreatedAt   string                 `json:"created_at"`
}

// PollItem is one entry of the backend's GET /notifications response.
type PollItem struct {
	ID           FlexID                 `json:"id"`
	Type         string                 `json:"type"`
	Title        string                 `json:"title"`
	Message      string                 `json:"message"`
	Priority     string                 `json:"priority"`
	TargetUserID FlexID                 `json:"target_user_id"`
	TargetRole   string                 `json:"target_role"`
	SenderID     FlexID                 `json:"sender_id"`
	SenderName   string                 `json:"sender_name"`
	ActionURL    string                 `json:"action_url"`
	ActionLabel  string                 `json:"action_label"`
	Category     string                 `json:"category"`
	Data         map[string]interface{} `json:"data"`
	IsRead       bool                   `json:"is_read"`
	CreatedAt    string                 `json:"created_at"`
}

// PollResponse is the backend's GET /notifications envelope.
type PollResponse struct {
	Success       bool       `json:"success"`
	Notifications []PollItem `json:"notifications"`
}

// ============= Local API DTOs =============

// NotificationResponse represents a notification in local API responses
type NotificationResponse struct {
	ID          string                 `json:"id"`
	Kind        Kind                   `json:"kind"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Priority    Priority               `json:"priority"`
	Timestamp   time.Time              `json:"timestamp"`
	SenderID    string                 `json:"sender_id,omitempty"`
	SenderName  string                 `json:"sender_name,omitempty"`
	ActionURL   string                 `json:"action_url,omitempty"`
	ActionLabel string                 `json:"action_label,omitempty"`
	Category    string                 `json:"category,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	IsRead      bool                   `json:"is_read"`
	ReadAt      *time.Time             `json:"read_at,omitempty"`
	Channel     Channel                `json:"channel"`
}

// NotificationListResponse represents the local notification panel payload
type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	Total         int                    `json:"total"`
	UnreadCount   int                    `json:"unread_count"`
}

// UnreadCountResponse represents unread count response
type UnreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

// MarkAsReadRequest represents a request to mark notifications as read
type MarkAsReadRequest struct {
	NotificationIDs []string `json:"notification_ids"`
}

// ToResponse converts a Notification entity to NotificationResponse
func ToResponse(n Notification) NotificationResponse {
	return NotificationResponse{
		ID:          n.ID,
		Kind:        n.Kind,
		Title:       n.Title,
		Message:     n.Message,
		Priority:    n.Priority,
		Timestamp:   n.Timestamp,
		SenderID:    n.SenderID,
		SenderName:  n.SenderName,
		ActionURL:   n.ActionURL,
		ActionLabel: n.ActionLabel,
		Category:    n.Category,
		Metadata:    n.Metadata,
		IsRead:      n.Read,
		ReadAt:      n.ReadAt,
		Channel:     n.Channel,
	}
}
