package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etmap/rawdata/internal/fetch"
	"github.com/etmap/rawdata/internal/geo"
	"github.com/etmap/rawdata/internal/jobmanager"
	"github.com/etmap/rawdata/internal/models"
	"github.com/etmap/rawdata/internal/orchestrator"
	"github.com/etmap/rawdata/internal/store/memory"
)

type noopBoundsReader struct{}

func (noopBoundsReader) ReadBounds(path string) (geo.Bounds, error) {
	return geo.Bounds{}, nil
}

func newTestHandlers(t *testing.T) (*Handlers, *jobmanager.Manager) {
	t.Helper()
	st := memory.New()
	jobs := jobmanager.New(st)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	orch := &orchestrator.Orchestrator{
		Jobs:     jobs,
		Coverage: geo.NewCoverageChecker(t.TempDir(), noopBoundsReader{}),
		Fetchers: fetch.NewManager(log),
		Log:      log,
	}

	h := New(jobs, orch, nil, nil, t.TempDir(), log)
	return h, jobs
}

func newRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestCreateJobValidationFailure(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := newRouter(h)

	body := strings.NewReader(`{"date_from":"not-a-date","date_to":"2024-01-01","geometry":null}`)
	req := httptest.NewRequest(http.MethodPost, "/etmap", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJobThenGetStatus(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := newRouter(h)

	body := strings.NewReader(`{"date_from":"2024-01-01","date_to":"2024-01-01","geometry":null}`)
	req := httptest.NewRequest(http.MethodPost, "/etmap", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["request_id"]
	require.NotEmpty(t, id)

	// the orchestrator goroutine runs detached; give it a moment to
	// reach success on an empty geometry (everything covered).
	require.Eventually(t, func() bool {
		rec2 := httptest.NewRecorder()
		router.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/etmap/"+id+".json", nil))
		if rec2.Code != http.StatusOK {
			return false
		}
		var view models.StatusView
		_ = json.Unmarshal(rec2.Body.Bytes(), &view)
		return view.Status == models.StatusSuccess
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreateJobDuplicateReturnsSameID(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := newRouter(h)

	body := `{"date_from":"2024-02-01","date_to":"2024-02-01","geometry":null}`

	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, httptest.NewRequest(http.MethodPost, "/etmap", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec1.Code)
	var first map[string]string
	require.NoError(t, json.Unmarshal(rec1.Body.Bytes(), &first))

	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, httptest.NewRequest(http.MethodPost, "/etmap", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec2.Code)
	var second map[string]string
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &second))

	assert.Equal(t, first["request_id"], second["request_id"])
}

func TestGetStatusUnknownID(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := newRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/etmap/00000000-0000-0000-0000-000000000000.json", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStatusMalformedID(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := newRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/etmap/not-a-uuid.json", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetResultRedirectsWhenNotReady(t *testing.T) {
	h, jobs := newTestHandlers(t)
	router := newRouter(h)

	job, err := jobs.Create(context.Background(), models.CreateRequest{
		DateFrom: "2024-03-01",
		DateTo:   "2024-03-01",
		Geometry: json.RawMessage(`null`),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/etmap/"+job.RequestID+"/result", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestGetArtifactRejectsIncompleteJob(t *testing.T) {
	h, jobs := newTestHandlers(t)
	router := newRouter(h)

	job, err := jobs.Create(context.Background(), models.CreateRequest{
		DateFrom: "2024-04-01",
		DateTo:   "2024-04-01",
		Geometry: json.RawMessage(`null`),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/etmap/"+job.RequestID+".png", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
