package engine

import "sync"

// seenSet is a bounded set of recently observed event ids. When the
// capacity is reached the oldest entry is evicted, ring-buffer style.
// At-least-once delivery means the same envelope can arrive twice; a
// bounded window is enough because redeliveries cluster close to the
// original delivery.
type seenSet struct {
	mu    sync.Mutex
	limit int
	ids   map[string]struct{}
	ring  []string
	next  int
}

func newSeenSet(limit int) *seenSet {
	if limit <= 0 {
		limit = 1024
	}
	return &seenSet{
		limit: limit,
		ids:   make(map[string]struct{}, limit),
		ring:  make([]string, limit),
	}
}

// Observe records id and reports whether this is the first time it was
// seen within the retention window.
func (s *seenSet) Observe(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return false
	}

	if evicted := s.ring[s.next]; evicted != "" {
		delete(s.ids, evicted)
	}
	s.ring[s.next] = id
	s.next = (s.next + 1) % s.limit
	s.ids[id] = struct{}{}
	return true
}
