// Package handlers provides the HTTP front-end for the ET map request
// pipeline. Handlers follow a consistent pattern for request processing.
//
// # Handler Pattern
//
// Every handler should follow this structure:
//
//  1. Extract URL parameters: id := chi.URLParam(r, "id")
//  2. Parse request body (if any): json.NewDecoder(r.Body).Decode(&req)
//  3. Validate input parameters
//  4. Delegate to the Job Manager / Orchestrator — no business logic here
//  5. Return response: RespondJSON(w, http.StatusOK, result)
//
// # Response Helpers
//
// Use the helpers in response.go for consistent JSON responses:
//   - RespondJSON: success responses
//   - RespondError: the { "error", "details" } envelope
package handlers

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/etmap/rawdata/internal/artifacts"
	"github.com/etmap/rawdata/internal/cache"
	"github.com/etmap/rawdata/internal/jobmanager"
	"github.com/etmap/rawdata/internal/orchestrator"
)

// Handlers holds the dependencies every ET map endpoint needs.
type Handlers struct {
	Jobs         *jobmanager.Manager
	Orchestrator *orchestrator.Orchestrator
	Cache        *cache.Cache     // optional
	Artifacts    *artifacts.Store // optional
	ResultsDir   string
	Log          *slog.Logger
}

// New creates a Handlers instance. c and as may be nil.
func New(jobs *jobmanager.Manager, orch *orchestrator.Orchestrator, c *cache.Cache, as *artifacts.Store, resultsDir string, log *slog.Logger) *Handlers {
	return &Handlers{
		Jobs:         jobs,
		Orchestrator: orch,
		Cache:        c,
		Artifacts:    as,
		ResultsDir:   resultsDir,
		Log:          log,
	}
}

// Routes mounts every ET map endpoint onto r.
func (h *Handlers) Routes(r chi.Router) {
	r.Post("/etmap", h.CreateJob)
	r.Get("/etmap/{id}.json", h.GetStatus)
	r.Get("/etmap/{id}/result", h.GetResult)
	r.Get("/etmap/{id}.png", h.GetArtifact)
	r.Get("/etmap/{id}.tif", h.GetArtifact)
}
