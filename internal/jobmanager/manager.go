// Package jobmanager implements job creation, dedup lookup, and status
// transitions on top of a store.JobStore.
package jobmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/etmap/rawdata/internal/geo"
	"github.com/etmap/rawdata/internal/models"
	"github.com/etmap/rawdata/internal/store"
)

// Manager wraps a store.JobStore with the create/find/update/status
// operations from RawDataJobManager.
type Manager struct {
	store store.JobStore
}

// New returns a Manager backed by s.
func New(s store.JobStore) *Manager {
	return &Manager{store: s}
}

// Create canonicalizes the request's geometry, assigns a fresh
// identifier, and persists a queued job.
func (m *Manager) Create(ctx context.Context, req models.CreateRequest) (*models.Job, error) {
	canonGeom, err := geo.Canonicalize(req.Geometry)
	if err != nil {
		return nil, fmt.Errorf("jobmanager: canonicalize geometry: %w", err)
	}

	reqForStorage := struct {
		DateFrom string          `json:"date_from"`
		DateTo   string          `json:"date_to"`
		Geometry json.RawMessage `json:"geometry"`
	}{req.DateFrom, req.DateTo, canonGeom}
	reqJSON, err := json.Marshal(reqForStorage)
	if err != nil {
		return nil, fmt.Errorf("jobmanager: marshal request: %w", err)
	}
	canonReq, err := geo.Canonicalize(reqJSON)
	if err != nil {
		return nil, fmt.Errorf("jobmanager: canonicalize request: %w", err)
	}

	now := time.Now().UTC()
	job := &models.Job{
		RequestID:   uuid.NewString(),
		DateFrom:    req.DateFrom,
		DateTo:      req.DateTo,
		Geometry:    canonGeom,
		OriginalReq: canonReq,
		Status:      models.StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// FindExisting returns the first existing job for the same date range
// whose stored geometry is value-equal to geometry, or nil if none
// exists. Value equality (not byte equality) matches the original's
// dict comparison after json.loads, which is order-independent.
func (m *Manager) FindExisting(ctx context.Context, dateFrom, dateTo string, geometry json.RawMessage) (*models.Job, error) {
	candidates, err := m.store.FindByDateRangeAndGeometry(ctx, dateFrom, dateTo)
	if err != nil {
		return nil, err
	}
	for _, job := range candidates {
		eq, err := geo.Equal(job.Geometry, geometry)
		if err != nil {
			continue
		}
		if eq {
			return job, nil
		}
	}
	return nil, nil
}

// UpdateStatus transitions a job's status and optional error message.
func (m *Manager) UpdateStatus(ctx context.Context, requestID string, status models.JobStatus, errMsg *string) error {
	return m.store.UpdateStatus(ctx, requestID, status, errMsg)
}

// GetStatus returns the HTTP-facing projection of a job, or
// store.ErrNotFound.
func (m *Manager) GetStatus(ctx context.Context, requestID string) (*models.StatusView, error) {
	job, err := m.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	view := job.ToView()
	return &view, nil
}

// Get returns the raw job record, or store.ErrNotFound.
func (m *Manager) Get(ctx context.Context, requestID string) (*models.Job, error) {
	return m.store.Get(ctx, requestID)
}
