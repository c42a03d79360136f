// Package store holds the in-memory notification store backing the local
// notification panel and unread badge for the lifetime of the agent process.
package store

import (
	"sync"
	"time"

	"github.com/consite-erp/notify-agent/internal/domain/notification"
)

type memoryStore struct {
	mu      sync.RWMutex
	entries []notification.Notification
	index   map[string]int
}

// NewMemoryStore creates an empty in-memory notification store.
func NewMemoryStore() notification.Store {
	return &memoryStore{
		index: make(map[string]int),
	}
}

func (s *memoryStore) Add(n notification.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(n)
}

func (s *memoryStore) AddBatch(ns []notification.Notification) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, n := range ns {
		if s.add(n) {
			added++
		}
	}
	return added
}

// add appends unless the id is already present. Caller holds the lock.
func (s *memoryStore) add(n notification.Notification) bool {
	if n.ID == "" {
		return false
	}
	if _, exists := s.index[n.ID]; exists {
		return false
	}
	s.index[n.ID] = len(s.entries)
	s.entries = append(s.entries, n)
	return true
}

func (s *memoryStore) List() []notification.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]notification.Notification, len(s.entries))
	for i, n := range s.entries {
		out[len(s.entries)-1-i] = n
	}
	return out
}

func (s *memoryStore) Get(id string) (notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return notification.Notification{}, notification.ErrNotificationNotFound
	}
	return s.entries[i], nil
}

func (s *memoryStore) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.entries {
		if !n.Read {
			count++
		}
	}
	return count
}

func (s *memoryStore) MarkAsRead(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch first so an unknown id leaves no partial
	// state behind.
	for _, id := range ids {
		if _, ok := s.index[id]; !ok {
			return notification.ErrNotificationNotFound
		}
	}

	now := time.Now()
	for _, id := range ids {
		i := s.index[id]
		if !s.entries[i].Read {
			s.entries[i].Read = true
			s.entries[i].ReadAt = &now
		}
	}
	return nil
}

func (s *memoryStore) MarkAllAsRead() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for i := range s.entries {
		if !s.entries[i].Read {
			s.entries[i].Read = true
			s.entries[i].ReadAt = &now
		}
	}
}

func (s *memoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
