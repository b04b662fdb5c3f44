package job

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory implementation of Store.
// It uses a map with RWMutex for thread-safe access.
// Suitable for development and testing; production sweeps use PostgresStore.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[int64]*Job
	now  func() time.Time
}

// NewMemoryStore creates a new in-memory job store seeded with the given jobs.
func NewMemoryStore(jobs ...*Job) *MemoryStore {
	s := &MemoryStore{
		jobs: make(map[int64]*Job, len(jobs)),
		now:  time.Now,
	}
	for _, j := range jobs {
		s.jobs[j.ID] = j.Clone()
	}
	return s
}

// Put inserts or replaces a job.
// Stores a clone to avoid external mutations.
func (s *MemoryStore) Put(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j.Clone()
}

// Get returns a clone of the job with the given ID.
func (s *MemoryStore) Get(id int64) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.Clone(), nil
}

// FetchPending returns clones of all eligible jobs ordered by ID.
func (s *MemoryStore) FetchPending(_ context.Context) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.Eligible() {
			result = append(result, j.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *Job) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return result, nil
}

// MarkPublished flags the job as merged and records its public URL.
func (s *MemoryStore) MarkPublished(_ context.Context, id int64, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.Merged = true
	j.PublishedURL = url
	j.ProcessedAt = s.now()
	return nil
}

// MarkStale clears the crawled flag of the job.
func (s *MemoryStore) MarkStale(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.Crawled = false
	return nil
}
