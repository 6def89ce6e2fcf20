package scoring

import "sync"

// busySet guards at most one calculation per rally id.
type busySet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newBusySet() *busySet {
	return &busySet{ids: make(map[string]struct{})}
}

func (b *busySet) acquire(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.ids[id]; ok {
		return false
	}
	b.ids[id] = struct{}{}
	return true
}

func (b *busySet) release(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.ids, id)
}
