// Package store defines the persistence contract for ET map jobs.
package store

import (
	"context"
	"errors"

	"github.com/etmap/rawdata/internal/models"
)

var (
	// ErrDuplicateIdentifier is returned when Create is called with a
	// request_id that already exists.
	ErrDuplicateIdentifier = errors.New("store: duplicate request id")
	// ErrNotFound is returned when a lookup finds no matching job.
	ErrNotFound = errors.New("store: job not found")
	// ErrStoreUnavailable wraps connectivity/transport failures against
	// the backing store, distinct from "not found" or "duplicate".
	ErrStoreUnavailable = errors.New("store: unavailable")
)

// JobStore persists Job records. Implementations must make UpdateStatus
// and Get safe for concurrent use across goroutines handling different
// jobs, and must never hand back a Job whose fields alias mutable
// internal state.
type JobStore interface {
	// Create inserts a new job. Returns ErrDuplicateIdentifier if the
	// request id is already present.
	Create(ctx context.Context, job *models.Job) error

	// Get fetches a job by request id. Returns ErrNotFound if absent.
	Get(ctx context.Context, requestID string) (*models.Job, error)

	// UpdateStatus transitions a job's status, optionally setting an
	// error message, and bumps UpdatedAt. Returns ErrNotFound if the
	// job does not exist.
	UpdateStatus(ctx context.Context, requestID string, status models.JobStatus, errMsg *string) error

	// FindByDateRangeAndGeometry scans for an existing job matching the
	// same date_from/date_to pair, for dedup-by-geometry comparison at
	// the call site (geometry equality is value-based, not delegated to
	// the store — see internal/jobmanager).
	FindByDateRangeAndGeometry(ctx context.Context, dateFrom, dateTo string) ([]*models.Job, error)
}
