package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/consite-erp/notify-agent/internal/domain/notification"
	"github.com/consite-erp/notify-agent/internal/handler/http/response"
	"github.com/consite-erp/notify-agent/internal/pkg/sse"
)

// NotificationHandler serves the local read model: the notification panel,
// the unread badge, and the SSE stream the UI windows subscribe to.
type NotificationHandler interface {
	List(w http.ResponseWriter, r *http.Request)
	UnreadCount(w http.ResponseWriter, r *http.Request)
	MarkAsRead(w http.ResponseWriter, r *http.Request)
	MarkAllAsRead(w http.ResponseWriter, r *http.Request)
	Open(w http.ResponseWriter, r *http.Request)

	// SSE
	Stream(w http.ResponseWriter, r *http.Request)
}

type notificationHandlerImpl struct {
	store notification.Store
	ui    *sse.Hub
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(store notification.Store, ui *sse.Hub) NotificationHandler {
	return &notificationHandlerImpl{
		store: store,
		ui:    ui,
	}
}

// getIntQueryParam gets an int query parameter with a default value
func getIntQueryParam(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}

// getBoolQueryParam gets a bool query parameter with a default value
func getBoolQueryParam(r *http.Request, key string, defaultVal bool) bool {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1"
}

// List returns notifications from the local store, newest first
func (h *notificationHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	limit := getIntQueryParam(r, "limit", 50)
	unreadOnly := getBoolQueryParam(r, "unread_only", false)

	all := h.store.List()
	items := make([]notification.NotificationResponse, 0, len(all))
	for _, n := range all {
		if unreadOnly && n.Read {
			continue
		}
		items = append(items, notification.ToResponse(n))
		if len(items) == limit {
			break
		}
	}

	response.Success(w, notification.NotificationListResponse{
		Notifications: items,
		Total:         h.store.Len(),
		UnreadCount:   h.store.UnreadCount(),
	})
}

// UnreadCount returns the count of unread notifications
func (h *notificationHandlerImpl) UnreadCount(w http.ResponseWriter, r *http.Request) {
	response.Success(w, notification.UnreadCountResponse{UnreadCount: h.store.UnreadCount()})
}

// MarkAsRead marks specified notifications as read
func (h *notificationHandlerImpl) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	var req notification.MarkAsReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	if len(req.NotificationIDs) == 0 {
		response.BadRequest(w, "notification_ids is required", nil)
		return
	}

	if err := h.store.MarkAsRead(req.NotificationIDs); err != nil {
		response.HandleError(w, err)
		return
	}

	h.publishBadge()
	response.SuccessWithMessage(w, "Notifications marked as read", nil)
}

// MarkAllAsRead marks all notifications as read
func (h *notificationHandlerImpl) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	h.store.MarkAllAsRead()
	h.publishBadge()
	response.SuccessWithMessage(w, "All notifications marked as read", nil)
}

// Open marks a notification as read and tells the UI windows to navigate to
// its action target.
func (h *notificationHandlerImpl) Open(w http.ResponseWriter, r *http.Request) {
	notifID := chi.URLParam(r, "id")
	if notifID == "" {
		response.BadRequest(w, "Notification ID is required", nil)
		return
	}

	n, err := h.store.Get(notifID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	if !n.Read {
		if err := h.store.MarkAsRead([]string{notifID}); err != nil {
			response.HandleError(w, err)
			return
		}
		h.publishBadge()
	}

	if n.ActionURL != "" {
		h.ui.Publish(sse.Event{Event: sse.EventNavigate, Data: map[string]string{
			"id":  n.ID,
			"url": n.ActionURL,
		}})
	}

	response.Success(w, notification.ToResponse(n))
}

func (h *notificationHandlerImpl) publishBadge() {
	h.ui.Publish(sse.Event{Event: sse.EventBadge, Data: map[string]int{"unread": h.store.UnreadCount()}})
}

// Stream handles the SSE connection the UI windows hold open
func (h *notificationHandlerImpl) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events, cleanup := h.ui.Subscribe()
	defer cleanup()

	// Send initial connection event
	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"unread\":%d}\n\n", h.store.UnreadCount())
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event.Data)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Event, data)
			flusher.Flush()

		case <-keepalive.C:
			// Send keepalive ping
			fmt.Fprintf(w, "event: ping\ndata: {\"timestamp\":%d}\n\n", time.Now().Unix())
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
