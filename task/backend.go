package task

import (
	"context"
	"sync"
	"time"
)

// Backend stores job state. Implementations must be safe for concurrent use.
type Backend interface {
	// Save creates or replaces the job.
	Save(ctx context.Context, job *Job) error

	// Get returns the job or ErrJobNotFound.
	Get(ctx context.Context, id string) (*Job, error)

	// Ping checks the backend connection.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// MemoryBackend keeps jobs in process memory. Terminal jobs expire after ttl.
type MemoryBackend struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryBackend creates an in-memory backend. ttl <= 0 keeps jobs forever.
func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	return &MemoryBackend{
		jobs: make(map[string]*Job),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (b *MemoryBackend) Save(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.jobs[job.ID] = job.Clone()
	if b.ttl > 0 {
		b.pruneLocked()
	}
	return nil
}

func (b *MemoryBackend) Get(ctx context.Context, id string) (*Job, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	job, ok := b.jobs[id]
	if !ok || b.expired(job) {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

func (b *MemoryBackend) Ping(ctx context.Context) error { return nil }

func (b *MemoryBackend) Close() error { return nil }

// Len returns the number of retained jobs.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.jobs)
}

func (b *MemoryBackend) expired(job *Job) bool {
	return b.ttl > 0 && job.CompletedAt != nil && b.now().Sub(*job.CompletedAt) > b.ttl
}

func (b *MemoryBackend) pruneLocked() {
	for id, job := range b.jobs {
		if b.expired(job) {
			delete(b.jobs, id)
		}
	}
}

var (
	_ Backend = (*MemoryBackend)(nil)
	_ Backend = (*RedisBackend)(nil)
)
