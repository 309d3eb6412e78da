package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etmap/rawdata/internal/fetch"
	"github.com/etmap/rawdata/internal/geo"
	"github.com/etmap/rawdata/internal/jobmanager"
	"github.com/etmap/rawdata/internal/models"
	"github.com/etmap/rawdata/internal/store/memory"
)

type fakeBoundsReader struct{ bounds geo.Bounds }

func (f *fakeBoundsReader) ReadBounds(path string) (geo.Bounds, error) {
	return f.bounds, nil
}

type fakeFetcher struct {
	calls int
	fail  bool
}

func (f *fakeFetcher) FetchData(ctx context.Context, dateFrom, dateTo string, geometry json.RawMessage) error {
	f.calls++
	if f.fail {
		return assert.AnError
	}
	return nil
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newOrchestrator(t *testing.T, jobs *jobmanager.Manager) (*Orchestrator, *fakeFetcher, *fakeFetcher, *fakeFetcher) {
	t.Helper()
	checker := geo.NewCoverageChecker(t.TempDir(), &fakeBoundsReader{})
	mgr := fetch.NewManager(silentLogger())
	landsat, prism, nldas := &fakeFetcher{}, &fakeFetcher{}, &fakeFetcher{}
	mgr.Register("landsat", landsat)
	mgr.Register("prism", prism)
	mgr.Register("nldas", nldas)

	return &Orchestrator{
		Jobs:            jobs,
		Coverage:        checker,
		Fetchers:        mgr,
		AutoCalculation: false,
		Log:             silentLogger(),
	}, landsat, prism, nldas
}

func TestRunFetchesAllUncoveredDatasetsThenSucceeds(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	jobs := jobmanager.New(st)

	job, err := jobs.Create(ctx, models.CreateRequest{
		DateFrom: "2024-01-01",
		DateTo:   "2024-01-01",
		Geometry: json.RawMessage(`{"type":"Polygon","coordinates":[[[-1,-1],[1,-1],[1,1],[-1,1],[-1,-1]]]}`),
	})
	require.NoError(t, err)

	orch, landsat, prism, nldas := newOrchestrator(t, jobs)
	orch.Run(ctx, job.RequestID)

	got, err := jobs.Get(ctx, job.RequestID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.Equal(t, 1, landsat.calls)
	assert.Equal(t, 1, prism.calls)
	assert.Equal(t, 1, nldas.calls)
}

func TestRunStopsAtFirstFailingDataset(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	jobs := jobmanager.New(st)

	job, err := jobs.Create(ctx, models.CreateRequest{
		DateFrom: "2024-01-01",
		DateTo:   "2024-01-01",
		Geometry: json.RawMessage(`{"type":"Polygon","coordinates":[[[-1,-1],[1,-1],[1,1],[-1,1],[-1,-1]]]}`),
	})
	require.NoError(t, err)

	orch, landsat, prism, nldas := newOrchestrator(t, jobs)
	prism.fail = true
	orch.Run(ctx, job.RequestID)

	got, err := jobs.Get(ctx, job.RequestID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "prism")
	assert.Equal(t, 1, landsat.calls)
	assert.Equal(t, 1, prism.calls)
	assert.Equal(t, 0, nldas.calls, "nldas must not run after prism fails")
}

func TestRunEmptyGeometryMeansEveryDatasetCovered(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	jobs := jobmanager.New(st)

	job, err := jobs.Create(ctx, models.CreateRequest{
		DateFrom: "2024-01-01",
		DateTo:   "2024-01-01",
		Geometry: json.RawMessage(`null`),
	})
	require.NoError(t, err)

	orch, landsat, prism, nldas := newOrchestrator(t, jobs)
	orch.Run(ctx, job.RequestID)

	got, err := jobs.Get(ctx, job.RequestID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.Equal(t, 0, landsat.calls)
	assert.Equal(t, 0, prism.calls)
	assert.Equal(t, 0, nldas.calls)
}
