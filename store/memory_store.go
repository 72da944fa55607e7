package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store, used when database.driver is "memory" and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   uint
	byPrompt map[string]*GenerationRecord
	byJobID  map[string]string // job id -> prompt
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byPrompt: make(map[string]*GenerationRecord),
		byJobID:  make(map[string]string),
	}
}

func (s *MemoryStore) Find(ctx context.Context, prompt string) (*GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byPrompt[prompt]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) FindByJobID(ctx context.Context, jobID string) (*GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prompt, ok := s.byJobID[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(s.byPrompt[prompt]), nil
}

func (s *MemoryStore) Upsert(ctx context.Context, prompt, image, jobID string) (*GenerationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if jobID != "" {
		if owner, ok := s.byJobID[jobID]; ok && owner != prompt {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateJobID, jobID)
		}
	}

	now := time.Now()
	rec, ok := s.byPrompt[prompt]
	if !ok {
		s.nextID++
		rec = &GenerationRecord{ID: s.nextID, Prompt: prompt, CreatedAt: now}
		s.byPrompt[prompt] = rec
	}
	if old := rec.JobRef(); old != "" {
		delete(s.byJobID, old)
	}

	rec.Image = image
	rec.JobID = jobIDPtr(jobID)
	rec.UpdatedAt = now
	if jobID != "" {
		s.byJobID[jobID] = prompt
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) List(ctx context.Context, limit int) ([]GenerationRecord, error) {
	s.mu.RLock()
	recs := make([]GenerationRecord, 0, len(s.byPrompt))
	for _, rec := range s.byPrompt {
		recs = append(recs, *cloneRecord(rec))
	}
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].UpdatedAt.Equal(recs[j].UpdatedAt) {
			return recs[i].ID > recs[j].ID
		}
		return recs[i].UpdatedAt.After(recs[j].UpdatedAt)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func cloneRecord(rec *GenerationRecord) *GenerationRecord {
	out := *rec
	if rec.JobID != nil {
		out.JobID = jobIDPtr(*rec.JobID)
	}
	return &out
}
