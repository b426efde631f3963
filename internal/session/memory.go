package session

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	report  PendingReport
	expires time.Time
}

type memoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

// NewMemoryStore - хранилище одного процесса для локального запуска
func NewMemoryStore(ttl time.Duration) PendingStore {
	return newMemoryStore(ttl, time.Now)
}

func newMemoryStore(ttl time.Duration, now func() time.Time) *memoryStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &memoryStore{ttl: ttl, now: now, entries: make(map[string]entry)}
}

func (s *memoryStore) Save(_ context.Context, conversationID string, report PendingReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[conversationID] = entry{report: report, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *memoryStore) Get(_ context.Context, conversationID string) (PendingReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[conversationID]
	if !ok {
		return PendingReport{}, ErrNotFound
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, conversationID)
		return PendingReport{}, ErrNotFound
	}
	return e.report, nil
}

func (s *memoryStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, conversationID)
	return nil
}
