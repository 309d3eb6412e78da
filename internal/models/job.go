// Package models holds the persisted and transient data types shared across
// the job store, job manager, coverage checker, and orchestrator.
package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the tagged enumeration driving the orchestrator's state
// machine (spec §4.7). Values are stored verbatim in the job store so a
// crash-recovered reader can resume from any non-terminal state.
type JobStatus string

const (
	StatusQueued            JobStatus = "queued"
	StatusCheckingCoverage  JobStatus = "checking_coverage"
	StatusLandsatStarted    JobStatus = "landsat_started"
	StatusLandsatDone       JobStatus = "landsat_done"
	StatusLandsatError      JobStatus = "landsat_error"
	StatusLandsatSkipped    JobStatus = "landsat_skipped_covered"
	StatusPrismStarted      JobStatus = "prism_started"
	StatusPrismDone         JobStatus = "prism_done"
	StatusPrismError        JobStatus = "prism_error"
	StatusPrismSkipped      JobStatus = "prism_skipped_covered"
	StatusNLDASStarted      JobStatus = "nldas_started"
	StatusNLDASDone         JobStatus = "nldas_done"
	StatusNLDASError        JobStatus = "nldas_error"
	StatusNLDASSkipped      JobStatus = "nldas_skipped_covered"
	StatusSuccess           JobStatus = "success"
	StatusFailed            JobStatus = "failed"
	StatusCalcStarted       JobStatus = "calculation_started"
	StatusCalcComplete      JobStatus = "calculation_complete"
	StatusCalcFailed        JobStatus = "calculation_failed"
)

// TerminalStates are statuses from which no further transition is defined.
var TerminalStates = map[JobStatus]bool{
	StatusFailed:       true,
	StatusCalcComplete: true,
	StatusCalcFailed:   true,
}

// DatasetName identifies one of the three raw-data providers.
type DatasetName string

const (
	DatasetLandsat DatasetName = "landsat"
	DatasetPrism   DatasetName = "prism"
	DatasetNLDAS   DatasetName = "nldas"
)

// StartedStatus returns the "_started" status for a dataset.
func (d DatasetName) StartedStatus() JobStatus {
	switch d {
	case DatasetLandsat:
		return StatusLandsatStarted
	case DatasetPrism:
		return StatusPrismStarted
	case DatasetNLDAS:
		return StatusNLDASStarted
	default:
		return StatusQueued
	}
}

// DoneStatus returns the "_done" status for a dataset.
func (d DatasetName) DoneStatus() JobStatus {
	switch d {
	case DatasetLandsat:
		return StatusLandsatDone
	case DatasetPrism:
		return StatusPrismDone
	case DatasetNLDAS:
		return StatusNLDASDone
	default:
		return StatusQueued
	}
}

// ErrorStatus returns the "_error" status for a dataset.
func (d DatasetName) ErrorStatus() JobStatus {
	switch d {
	case DatasetLandsat:
		return StatusLandsatError
	case DatasetPrism:
		return StatusPrismError
	case DatasetNLDAS:
		return StatusNLDASError
	default:
		return StatusFailed
	}
}

// SkippedStatus returns the "_skipped_covered" status for a dataset.
func (d DatasetName) SkippedStatus() JobStatus {
	switch d {
	case DatasetLandsat:
		return StatusLandsatSkipped
	case DatasetPrism:
		return StatusPrismSkipped
	case DatasetNLDAS:
		return StatusNLDASSkipped
	default:
		return StatusQueued
	}
}

// OrderedDatasets is the fixed per-job processing order (spec §4.7/§5):
// scene archive, then gridded climate, then hourly forcing.
var OrderedDatasets = []DatasetName{DatasetLandsat, DatasetPrism, DatasetNLDAS}

// Geometry wraps a GeoJSON geometry object in its canonical
// (sorted-key) serialized form. Job keeps its geometry as a plain
// json.RawMessage rather than this type.
type Geometry struct {
	Canonical json.RawMessage `json:"-"`
}

// Job is the durable record of one ET map request (spec §3).
type Job struct {
	RequestID      string
	DateFrom       string // YYYY-MM-DD
	DateTo         string // YYYY-MM-DD
	Geometry       json.RawMessage
	OriginalReq    json.RawMessage
	Status         JobStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ErrorMessage   *string
}

// IsTerminal reports whether the job's status is a terminal state.
func (j *Job) IsTerminal() bool {
	return TerminalStates[j.Status]
}

// StatusView is the JSON-facing projection returned by GET /etmap/<uuid>.json.
type StatusView struct {
	RequestID    string          `json:"request_id"`
	Status       JobStatus       `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Request      json.RawMessage `json:"request"`
	ErrorMessage *string         `json:"error_message,omitempty"`
}

// ToView projects a Job into its HTTP-facing representation.
func (j *Job) ToView() StatusView {
	return StatusView{
		RequestID:    j.RequestID,
		Status:       j.Status,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		Request:      j.OriginalReq,
		ErrorMessage: j.ErrorMessage,
	}
}

// CreateRequest is the validated POST /etmap payload.
type CreateRequest struct {
	DateFrom string          `json:"date_from"`
	DateTo   string          `json:"date_to"`
	Geometry json.RawMessage `json:"geometry"`
}
