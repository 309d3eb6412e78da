package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/etmap/rawdata/internal/models"
	"github.com/etmap/rawdata/internal/store"
)

// detachContext strips a request's cancellation so background
// orchestration outlives the HTTP response that kicked it off, per
// spec.md §4.7: "the HTTP endpoint that created the job returns
// immediately".
func detachContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// CreateJob handles POST /etmap (spec.md §6.1).
//
//  1. Parse request body.
//  2. Validate input parameters.
//  3. Dedup against existing jobs by (date_from, date_to, geometry).
//  4. Create or reuse, spawn orchestration, respond.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	if err := validateCreateRequest(req); err != nil {
		respondBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()

	existing, err := h.Jobs.FindExisting(ctx, req.DateFrom, req.DateTo, req.Geometry)
	if err != nil {
		respondInternal(w, err)
		return
	}
	if existing != nil {
		// A duplicate request does not restart orchestration unless the
		// prior job already succeeded and auto-calc is enabled, in which
		// case calculation is re-triggered (spec.md §6.1).
		if existing.Status == models.StatusSuccess && h.Orchestrator.AutoCalculation {
			go h.Orchestrator.TriggerCalculation(detachContext(ctx), existing.RequestID)
		}
		RespondJSON(w, http.StatusOK, map[string]string{"request_id": existing.RequestID})
		return
	}

	job, err := h.Jobs.Create(ctx, req)
	if err != nil {
		respondInternal(w, err)
		return
	}

	go h.Orchestrator.Run(detachContext(ctx), job.RequestID)

	RespondJSON(w, http.StatusCreated, map[string]string{"request_id": job.RequestID})
}

// GetStatus handles GET /etmap/<uuid>.json.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		respondBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()

	if h.Cache != nil {
		if cached, err := h.Cache.GetStatus(ctx, id); err == nil && cached != nil {
			RespondJSON(w, http.StatusOK, cached)
			return
		}
	}

	view, err := h.Jobs.GetStatus(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondNotFound(w, "no job with that identifier")
			return
		}
		respondInternal(w, err)
		return
	}

	if h.Cache != nil {
		if err := h.Cache.SetStatus(ctx, view); err != nil {
			h.Log.Warn("handlers: cache status failed", "request_id", id, "error", err)
		}
	}

	RespondJSON(w, http.StatusOK, view)
}

// resultReadyStates are the statuses for which /result and artifact
// endpoints serve data, per spec.md §6.1.
var resultReadyStates = map[models.JobStatus]bool{
	models.StatusSuccess:      true,
	models.StatusCalcComplete: true,
}

// GetResult handles GET /etmap/<uuid>/result.
func (h *Handlers) GetResult(w http.ResponseWriter, r *http.Request) {
	id, err := parseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		respondBadRequest(w, err.Error())
		return
	}

	job, err := h.Jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondNotFound(w, "no job with that identifier")
			return
		}
		respondInternal(w, err)
		return
	}

	if !resultReadyStates[job.Status] {
		http.Redirect(w, r, fmt.Sprintf("/etmap/%s.json", id), http.StatusFound)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"request_id": job.RequestID,
		"status":     job.Status,
		"preview_url": fmt.Sprintf("/etmap/%s.png", id),
		"raster_url":  fmt.Sprintf("/etmap/%s.tif", id),
	})
}

// GetArtifact handles GET /etmap/<uuid>.png and GET /etmap/<uuid>.tif.
// Both routes share this handler; the extension is read off the
// request path rather than the "id" URL param, since chi's mixed
// literal/capture route patterns strip the literal suffix from the
// captured group.
func (h *Handlers) GetArtifact(w http.ResponseWriter, r *http.Request) {
	var contentType, filename string
	switch {
	case strings.HasSuffix(r.URL.Path, ".png"):
		contentType, filename = "image/png", "result.png"
	case strings.HasSuffix(r.URL.Path, ".tif"):
		contentType, filename = "image/tiff", "result.tif"
	default:
		respondBadRequest(w, "unsupported artifact extension")
		return
	}

	id, err := parseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		respondBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()
	job, err := h.Jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondNotFound(w, "no job with that identifier")
			return
		}
		respondInternal(w, err)
		return
	}
	if !resultReadyStates[job.Status] {
		respondBadRequest(w, "calculation not complete")
		return
	}

	localPath := filepath.Join(h.ResultsDir, id, filename)
	if f, err := os.Open(localPath); err == nil {
		defer f.Close()
		w.Header().Set("Content-Type", contentType)
		if _, err := io.Copy(w, f); err != nil {
			h.Log.Warn("handlers: stream artifact failed", "request_id", id, "error", err)
		}
		return
	}

	if h.Artifacts != nil {
		body, err := h.Artifacts.Download(ctx, id, filename)
		if err == nil && body != nil {
			defer body.Close()
			w.Header().Set("Content-Type", contentType)
			if _, err := io.Copy(w, body); err != nil {
				h.Log.Warn("handlers: stream mirrored artifact failed", "request_id", id, "error", err)
			}
			return
		}
	}

	respondNotFound(w, "artifact not found on disk or in object storage")
}
