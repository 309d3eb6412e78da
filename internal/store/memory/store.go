// Package memory implements internal/store.JobStore with an in-process
// map, for tests and as a local/offline fallback when no database DSN
// is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/etmap/rawdata/internal/models"
	"github.com/etmap/rawdata/internal/store"
)

// Store is a map-backed store.JobStore guarded by a single RWMutex.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

// New returns an empty Store.
func New() *Store {
	return &Store{jobs: make(map[string]*models.Job)}
}

func copyJob(j *models.Job) *models.Job {
	cp := *j
	if j.ErrorMessage != nil {
		msg := *j.ErrorMessage
		cp.ErrorMessage = &msg
	}
	return &cp
}

func (s *Store) Create(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.RequestID]; exists {
		return store.ErrDuplicateIdentifier
	}
	s.jobs[job.RequestID] = copyJob(job)
	return nil
}

func (s *Store) Get(ctx context.Context, requestID string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[requestID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyJob(job), nil
}

func (s *Store) UpdateStatus(ctx context.Context, requestID string, status models.JobStatus, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[requestID]
	if !ok {
		return store.ErrNotFound
	}
	job.Status = status
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) FindByDateRangeAndGeometry(ctx context.Context, dateFrom, dateTo string) ([]*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Job
	for _, job := range s.jobs {
		if job.DateFrom == dateFrom && job.DateTo == dateTo {
			out = append(out, copyJob(job))
		}
	}
	return out, nil
}
