package fetch

import "sync"

// busySet tracks in-flight identifiers with atomic check-and-insert.
// It is the only shared mutable state in the orchestrator.
type busySet struct {
	mu  sync.Mutex
	ids map[int64]struct{}
}

func newBusySet() *busySet {
	return &busySet{ids: make(map[int64]struct{})}
}

// acquire inserts id and reports whether it was free.
func (s *busySet) acquire(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *busySet) release(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}
