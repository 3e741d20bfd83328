package service

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

// RunStore retains runs between the search and a later save. Get returns
// appErrors.ErrCacheMiss for unknown or expired runs.
type RunStore interface {
	Get(ctx context.Context, id string) (*dto.TimetableRun, error)
	Put(ctx context.Context, run *dto.TimetableRun, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

type memoryRunEntry struct {
	run     dto.TimetableRun
	expires time.Time
}

// MemoryRunStore keeps runs in process memory with a per-entry TTL.
type MemoryRunStore struct {
	mu    sync.RWMutex
	items map[string]memoryRunEntry
	now   func() time.Time
}

// NewMemoryRunStore builds an empty in-memory run store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{items: make(map[string]memoryRunEntry), now: time.Now}
}

// Get returns a copy of the stored run.
func (s *MemoryRunStore) Get(_ context.Context, id string) (*dto.TimetableRun, error) {
	s.mu.RLock()
	entry, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, appErrors.ErrCacheMiss
	}
	if !entry.expires.IsZero() && s.now().After(entry.expires) {
		s.mu.Lock()
		delete(s.items, id)
		s.mu.Unlock()
		return nil, appErrors.ErrCacheMiss
	}
	run := entry.run
	run.Best = entry.run.Best.Clone()
	return &run, nil
}

// Put stores a copy of run; a non-positive ttl keeps it until deleted.
func (s *MemoryRunStore) Put(_ context.Context, run *dto.TimetableRun, ttl time.Duration) error {
	copied := *run
	copied.Best = run.Best.Clone()
	entry := memoryRunEntry{run: copied}
	if ttl > 0 {
		entry.expires = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.items[run.ID] = entry
	s.mu.Unlock()
	return nil
}

// Delete removes a run.
func (s *MemoryRunStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
	return nil
}
