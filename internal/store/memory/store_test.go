package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etmap/rawdata/internal/models"
	"github.com/etmap/rawdata/internal/store"
)

func newJob(id string) *models.Job {
	now := time.Now().UTC()
	return &models.Job{
		RequestID:   id,
		DateFrom:    "2024-01-01",
		DateTo:      "2024-01-31",
		Geometry:    []byte(`{"type":"Point","coordinates":[0,0]}`),
		OriginalReq: []byte(`{}`),
		Status:      models.StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestCreateAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()
	job := newJob("job-1")

	require.NoError(t, s.Create(ctx, job))

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.RequestID, got.RequestID)
	assert.Equal(t, models.StatusQueued, got.Status)
}

func TestCreateDuplicate(t *testing.T) {
	s := New()
	ctx := context.Background()
	job := newJob("dup-1")

	require.NoError(t, s.Create(ctx, job))
	err := s.Create(ctx, newJob("dup-1"))
	assert.True(t, errors.Is(err, store.ErrDuplicateIdentifier))
}

func TestGetNotFound(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestUpdateStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	job := newJob("job-2")
	require.NoError(t, s.Create(ctx, job))

	msg := "boom"
	require.NoError(t, s.UpdateStatus(ctx, "job-2", models.StatusFailed, &msg))

	got, err := s.Get(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "boom", *got.ErrorMessage)
}

func TestUpdateStatusNotFound(t *testing.T) {
	s := New()
	err := s.UpdateStatus(context.Background(), "missing", models.StatusFailed, nil)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestFindByDateRangeAndGeometry(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newJob("a")))
	other := newJob("b")
	other.DateFrom = "2023-01-01"
	require.NoError(t, s.Create(ctx, other))

	found, err := s.FindByDateRangeAndGeometry(ctx, "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "a", found[0].RequestID)
}

func TestCopyJobIsolatesMutation(t *testing.T) {
	s := New()
	ctx := context.Background()
	job := newJob("iso")
	require.NoError(t, s.Create(ctx, job))

	job.Status = models.StatusFailed // mutate caller's copy after Create

	got, err := s.Get(ctx, "iso")
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, got.Status)
}
