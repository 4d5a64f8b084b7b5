package ratex

import (
	"context"
	"sync"
	"time"
)

type memoryWindow struct {
	attempts int
	resetAt  time.Time
}

// MemoryStore is a single-process, lock-guarded counter store. Stale keys
// persist until their window is next touched; with action+client-identity
// keys the key space stays bounded, so there is no background eviction.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow

	// now is swappable for tests.
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{attempts: 1, resetAt: now.Add(window)}
		s.windows[key] = w
		return w.attempts, w.resetAt, nil
	}

	w.attempts++
	return w.attempts, w.resetAt, nil
}
