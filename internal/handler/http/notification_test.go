package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consite-erp/notify-agent/internal/diag"
	"github.com/consite-erp/notify-agent/internal/domain/notification"
	"github.com/consite-erp/notify-agent/internal/hub"
	"github.com/consite-erp/notify-agent/internal/pkg/sse"
	"github.com/consite-erp/notify-agent/internal/session"
	"github.com/consite-erp/notify-agent/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, notification.Store, *sse.Hub) {
	t.Helper()
	st := store.NewMemoryStore()
	ui := sse.NewHub()
	recorder := diag.NewRecorder(nil)

	sessions := session.NewStore(filepath.Join(t.TempDir(), "session.json"), recorder)
	t.Cleanup(sessions.Close)
	lifecycle := hub.New(hub.Config{APIBaseURL: "http://backend.invalid"}, sessions, nil, ui, recorder)

	r := NewRouter("test", NewNotificationHandler(st, ui), NewStatusHandler(lifecycle, recorder))
	return r, st, ui
}

func seed(t *testing.T, st notification.Store, id string, read bool) {
	t.Helper()
	added := st.Add(notification.Notification{
		ID:        id,
		Kind:      notification.KindGeneric,
		Title:     "Title " + id,
		Timestamp: time.Now(),
		ActionURL: "/purchases/" + id,
		Read:      read,
	})
	require.True(t, added)
}

func doRequest(t *testing.T, h http.Handler, method, target string, body []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return rec, envelope
}

func TestList(t *testing.T) {
	r, st, _ := newTestRouter(t)
	seed(t, st, "n-1", true)
	seed(t, st, "n-2", false)
	seed(t, st, "n-3", false)

	rec, envelope := doRequest(t, r, http.MethodGet, "/api/v1/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, envelope["success"])

	data := envelope["data"].(map[string]any)
	assert.Len(t, data["notifications"], 3)
	assert.EqualValues(t, 3, data["total"])
	assert.EqualValues(t, 2, data["unread_count"])

	// Newest first.
	items := data["notifications"].([]any)
	assert.Equal(t, "n-3", items[0].(map[string]any)["id"])
}

func TestList_UnreadOnlyAndLimit(t *testing.T) {
	r, st, _ := newTestRouter(t)
	seed(t, st, "n-1", true)
	seed(t, st, "n-2", false)
	seed(t, st, "n-3", false)

	_, envelope := doRequest(t, r, http.MethodGet, "/api/v1/notifications?unread_only=true&limit=1", nil)
	data := envelope["data"].(map[string]any)
	items := data["notifications"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "n-3", items[0].(map[string]any)["id"])
}

func TestUnreadCount(t *testing.T) {
	r, st, _ := newTestRouter(t)
	seed(t, st, "n-1", false)
	seed(t, st, "n-2", true)

	rec, envelope := doRequest(t, r, http.MethodGet, "/api/v1/notifications/unread-count", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := envelope["data"].(map[string]any)
	assert.EqualValues(t, 1, data["unread_count"])
}

func TestMarkAsRead(t *testing.T) {
	r, st, ui := newTestRouter(t)
	seed(t, st, "n-1", false)
	events, cleanup := ui.Subscribe()
	defer cleanup()

	body, _ := json.Marshal(map[string]any{"notification_ids": []string{"n-1"}})
	rec, envelope := doRequest(t, r, http.MethodPost, "/api/v1/notifications/mark-read", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, envelope["success"])
	assert.Zero(t, st.UnreadCount())

	ev := <-events
	assert.Equal(t, sse.EventBadge, ev.Event)
}

func TestMarkAsRead_Validation(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec, _ := doRequest(t, r, http.MethodPost, "/api/v1/notifications/mark-read", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, _ := json.Marshal(map[string]any{"notification_ids": []string{}})
	rec, _ = doRequest(t, r, http.MethodPost, "/api/v1/notifications/mark-read", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, _ = json.Marshal(map[string]any{"notification_ids": []string{"n-missing"}})
	rec, _ = doRequest(t, r, http.MethodPost, "/api/v1/notifications/mark-read", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkAllAsRead(t *testing.T) {
	r, st, _ := newTestRouter(t)
	seed(t, st, "n-1", false)
	seed(t, st, "n-2", false)

	rec, _ := doRequest(t, r, http.MethodPost, "/api/v1/notifications/mark-all-read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, st.UnreadCount())
}

func TestOpen(t *testing.T) {
	r, st, ui := newTestRouter(t)
	seed(t, st, "n-1", false)
	events, cleanup := ui.Subscribe()
	defer cleanup()

	rec, envelope := doRequest(t, r, http.MethodPost, "/api/v1/notifications/n-1/open", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := envelope["data"].(map[string]any)
	assert.Equal(t, "n-1", data["id"])
	assert.Zero(t, st.UnreadCount())

	var names []string
	for i := 0; i < 2; i++ {
		names = append(names, (<-events).Event)
	}
	assert.Equal(t, []string{sse.EventBadge, sse.EventNavigate}, names)
}

func TestOpen_NotFound(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec, envelope := doRequest(t, r, http.MethodPost, "/api/v1/notifications/n-missing/open", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, envelope["success"])
}

func TestStatus(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec, envelope := doRequest(t, r, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := envelope["data"].(map[string]any)
	assert.Equal(t, "disconnected", data["state"])
}

func TestDiagnostics(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec, envelope := doRequest(t, r, http.MethodGet, "/api/v1/diagnostics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, envelope["success"])
}
