package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory checkpoint store for tests and local
// development
type MemoryStore struct {
	checkpoints map[string]*Checkpoint
	mu          sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkpoints: make(map[string]*Checkpoint),
	}
}

// Save writes a snapshot, preserving CreatedAt and bumping Version
func (s *MemoryStore) Save(ctx context.Context, cp *Checkpoint) (*Checkpoint, error) {
	if cp.SessionID == "" {
		return nil, fmt.Errorf("checkpoint session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := *cp
	saved.UpdatedAt = time.Now()
	if existing, ok := s.checkpoints[cp.SessionID]; ok {
		saved.CreatedAt = existing.CreatedAt
		saved.Version = existing.Version + 1
	} else {
		saved.CreatedAt = saved.UpdatedAt
		saved.Version = 1
	}

	s.checkpoints[saved.SessionID] = &saved
	copied := saved
	return &copied, nil
}

// Overwrite stores a checkpoint verbatim, without touching timestamps or
// version. Test hook for constructing aged checkpoints.
func (s *MemoryStore) Overwrite(cp *Checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *cp
	s.checkpoints[copied.SessionID] = &copied
}

// Load returns the checkpoint for a session, or nil when absent
func (s *MemoryStore) Load(ctx context.Context, sessionID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[sessionID]
	if !ok {
		return nil, nil
	}
	copied := *cp
	return &copied, nil
}

// Delete removes a checkpoint and reports whether one existed
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.checkpoints[sessionID]
	delete(s.checkpoints, sessionID)
	return ok, nil
}

// List returns summaries of the most recently updated sessions, newest
// first
func (s *MemoryStore) List(ctx context.Context, limit int) ([]*Summary, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]*Summary, 0, len(s.checkpoints))
	for _, cp := range s.checkpoints {
		summaries = append(summaries, summarize(cp))
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})

	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// Cleanup removes every checkpoint not updated since the cutoff
func (s *MemoryStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for sessionID, cp := range s.checkpoints {
		if !cp.UpdatedAt.After(olderThan) {
			delete(s.checkpoints, sessionID)
			count++
		}
	}
	return count, nil
}
