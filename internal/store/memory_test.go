package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consite-erp/notify-agent/internal/domain/notification"
)

func entry(id string) notification.Notification {
	return notification.Notification{
		ID:        id,
		Kind:      notification.KindGeneric,
		Title:     "title " + id,
		Timestamp: time.Now(),
	}
}

func TestAdd_DuplicateIgnored(t *testing.T) {
	s := NewMemoryStore()

	assert.True(t, s.Add(entry("1")))
	assert.False(t, s.Add(entry("1")))
	assert.Equal(t, 1, s.Len())
}

func TestAddBatch_AtomicAndCounted(t *testing.T) {
	s := NewMemoryStore()
	s.Add(entry("2"))

	added := s.AddBatch([]notification.Notification{entry("1"), entry("2"), entry("3")})
	assert.Equal(t, 2, added)
	assert.Equal(t, 3, s.Len())
}

func TestList_NewestFirst(t *testing.T) {
	s := NewMemoryStore()
	s.Add(entry("1"))
	s.Add(entry("2"))
	s.Add(entry("3"))

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "3", list[0].ID)
	assert.Equal(t, "1", list[2].ID)
}

func TestMarkAsRead(t *testing.T) {
	s := NewMemoryStore()
	s.Add(entry("1"))
	s.Add(entry("2"))
	assert.Equal(t, 2, s.UnreadCount())

	require.NoError(t, s.MarkAsRead([]string{"1"}))
	assert.Equal(t, 1, s.UnreadCount())

	got, err := s.Get("1")
	require.NoError(t, err)
	assert.True(t, got.Read)
	require.NotNil(t, got.ReadAt)

	assert.ErrorIs(t, s.MarkAsRead([]string{"99"}), notification.ErrNotificationNotFound)
}

func TestMarkAsRead_UnknownIDLeavesBatchUntouched(t *testing.T) {
	s := NewMemoryStore()
	s.Add(entry("1"))
	s.Add(entry("2"))

	err := s.MarkAsRead([]string{"1", "99", "2"})
	assert.ErrorIs(t, err, notification.ErrNotificationNotFound)

	// The failed batch must not half-apply.
	assert.Equal(t, 2, s.UnreadCount())
	got, err := s.Get("1")
	require.NoError(t, err)
	assert.False(t, got.Read)
}

func TestMarkAllAsRead(t *testing.T) {
	s := NewMemoryStore()
	s.Add(entry("1"))
	s.Add(entry("2"))

	s.MarkAllAsRead()
	assert.Equal(t, 0, s.UnreadCount())
}

func TestGet_NotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get("nope")
	assert.ErrorIs(t, err, notification.ErrNotificationNotFound)
}
