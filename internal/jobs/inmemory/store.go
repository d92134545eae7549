package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/isony10/EntryChecker/internal/jobs"
)

// Store keeps review jobs in memory. It is safe for concurrent use and loses
// everything on restart.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.ReviewJob
}

// NewStore creates an empty job store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*jobs.ReviewJob)}
}

// Save stores a copy of job, replacing any previous state.
func (s *Store) Save(ctx context.Context, job *jobs.ReviewJob) error {
	if job.JobID == "" {
		return errors.New("Save: job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *job
	s.jobs[job.JobID] = &c
	return nil
}

// Get returns a copy of the job with the given ID.
func (s *Store) Get(ctx context.Context, jobID string) (*jobs.ReviewJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("Get: %w: %s", jobs.ErrJobNotFound, jobID)
	}
	c := *job
	return &c, nil
}

// List returns copies of matching jobs, newest first.
func (s *Store) List(ctx context.Context, filter jobs.Filter) ([]*jobs.ReviewJob, error) {
	s.mu.RLock()
	result := make([]*jobs.ReviewJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		c := *job
		result = append(result, &c)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].JobID < result[j].JobID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.ReviewJob{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

var _ jobs.Store = (*Store)(nil)
