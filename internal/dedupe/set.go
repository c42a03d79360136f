// Package dedupe provides the bounded id sets backing the at-most-once
// guarantees: one set for store delivery, separate sets per popup side
// effect.
package dedupe

import (
	"sync"
)

const defaultLimit = 100

// Set is a bounded insertion-ordered set of notification ids. Once the
// configured ceiling is exceeded the oldest half is evicted: over a
// long-lived session a false negative (re-processing a very old id) is
// acceptable, unbounded growth is not.
type Set struct {
	mu    sync.Mutex
	limit int
	ids   map[string]struct{}
	order []string
}

// NewSet creates a Set holding at most limit ids (100 if limit <= 0).
func NewSet(limit int) *Set {
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Set{
		limit: limit,
		ids:   make(map[string]struct{}),
	}
}

// CheckAndAdd records id and reports whether it was newly added. The check
// and the insert happen under one lock so two channels racing on the same id
// can never both observe "new".
func (s *Set) CheckAndAdd(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.ids[id]; seen {
		return false
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > s.limit {
		s.evictOldest()
	}
	return true
}

// Contains reports whether id has been recorded.
func (s *Set) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, seen := s.ids[id]
	return seen
}

// Len returns the number of recorded ids.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// evictOldest drops the oldest half, keeping the most recent entries.
// Caller holds the lock.
func (s *Set) evictOldest() {
	keep := s.limit / 2
	if keep < 1 {
		keep = 1
	}
	cut := len(s.order) - keep
	for _, id := range s.order[:cut] {
		delete(s.ids, id)
	}
	s.order = append([]string(nil), s.order[cut:]...)
}
