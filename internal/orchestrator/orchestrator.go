// Package orchestrator drives the per-job state machine: coverage
// check, sequential dataset fetch, and the downstream compute-step
// spawn on success.
package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/etmap/rawdata/internal/cache"
	"github.com/etmap/rawdata/internal/fetch"
	"github.com/etmap/rawdata/internal/geo"
	"github.com/etmap/rawdata/internal/jobmanager"
	"github.com/etmap/rawdata/internal/models"
)

// Orchestrator owns the components needed to run a job from queued
// through success/failure and, optionally, the compute step.
type Orchestrator struct {
	Jobs     *jobmanager.Manager
	Coverage *geo.CoverageChecker
	Fetchers *fetch.Manager
	Cache    *cache.Cache // optional; nil disables status invalidation

	AutoCalculation bool
	CalcBinaryPath  string
	DBDSN           string

	Log *slog.Logger
}

func (o *Orchestrator) setStatus(ctx context.Context, requestID string, status models.JobStatus, errMsg *string) {
	if err := o.Jobs.UpdateStatus(ctx, requestID, status, errMsg); err != nil {
		o.Log.Error("orchestrator: update status failed", "request_id", requestID, "status", status, "error", err)
	}
	if o.Cache != nil {
		if err := o.Cache.InvalidateStatus(ctx, requestID); err != nil {
			o.Log.Warn("orchestrator: invalidate cached status failed", "request_id", requestID, "error", err)
		}
	}
}

// Run executes the full per-job pipeline: coverage check, sequential
// fetch of missing datasets, success/failure transition, and optional
// compute spawn. It is intended to run as a detached goroutine spawned
// by the HTTP handler immediately after job creation.
func (o *Orchestrator) Run(ctx context.Context, requestID string) {
	job, err := o.Jobs.Get(ctx, requestID)
	if err != nil {
		o.Log.Error("orchestrator: load job failed", "request_id", requestID, "error", err)
		return
	}

	o.Log.Info("orchestrator: starting data collection", "request_id", requestID)
	o.setStatus(ctx, requestID, models.StatusCheckingCoverage, nil)

	var toFetch []models.DatasetName
	for _, ds := range models.OrderedDatasets {
		covered, err := o.Coverage.IsCovered(string(ds), job.Geometry, job.DateFrom, job.DateTo)
		if err != nil {
			msg := err.Error()
			o.Log.Error("orchestrator: coverage check failed", "request_id", requestID, "dataset", ds, "error", err)
			o.setStatus(ctx, requestID, models.StatusFailed, &msg)
			return
		}
		if covered {
			o.Log.Info("orchestrator: dataset already covered, skipping", "request_id", requestID, "dataset", ds)
			o.setStatus(ctx, requestID, ds.SkippedStatus(), nil)
			continue
		}
		toFetch = append(toFetch, ds)
	}

	if len(toFetch) == 0 {
		o.Log.Info("orchestrator: all datasets already covered", "request_id", requestID)
		o.setStatus(ctx, requestID, models.StatusSuccess, nil)
		o.maybeTriggerCalculation(ctx, requestID)
		return
	}

	o.Log.Info("orchestrator: fetching datasets", "request_id", requestID, "datasets", toFetch)
	for _, ds := range toFetch {
		o.setStatus(ctx, requestID, ds.StartedStatus(), nil)

		ok := o.Fetchers.FetchDataset(ctx, string(ds), job.DateFrom, job.DateTo, job.Geometry)
		if !ok {
			msg := fmt.Sprintf("%s: fetch failed", ds)
			o.setStatus(ctx, requestID, ds.ErrorStatus(), &msg)
			o.setStatus(ctx, requestID, models.StatusFailed, &msg)
			return
		}
		o.setStatus(ctx, requestID, ds.DoneStatus(), nil)
		o.Log.Info("orchestrator: dataset fetch complete", "request_id", requestID, "dataset", ds)
	}

	o.setStatus(ctx, requestID, models.StatusSuccess, nil)
	o.Log.Info("orchestrator: data collection complete", "request_id", requestID)
	o.maybeTriggerCalculation(ctx, requestID)
}

func (o *Orchestrator) maybeTriggerCalculation(ctx context.Context, requestID string) {
	if !o.AutoCalculation {
		o.Log.Info("orchestrator: automatic calculation disabled", "request_id", requestID)
		return
	}
	o.TriggerCalculation(ctx, requestID)
}

// TriggerCalculation spawns the external compute-step process and
// monitors it in the background. Called both from the success path of
// Run and directly by the HTTP handler when a duplicate request
// targets an already-successful job — the original re-triggers
// calculation in that case too, which is preserved here.
func (o *Orchestrator) TriggerCalculation(ctx context.Context, requestID string) {
	o.setStatus(ctx, requestID, models.StatusCalcStarted, nil)

	cmd := exec.Command(o.CalcBinaryPath, "--uuid", requestID, "--db-dsn", o.DBDSN)

	pipeReader, pipeWriter, err := os.Pipe()
	if err != nil {
		msg := err.Error()
		o.Log.Error("orchestrator: pipe calc output failed", "request_id", requestID, "error", err)
		o.setStatus(ctx, requestID, models.StatusCalcFailed, &msg)
		return
	}
	cmd.Stdout = pipeWriter
	cmd.Stderr = pipeWriter // combine streams, matching subprocess.STDOUT in the original

	if err := cmd.Start(); err != nil {
		pipeWriter.Close()
		pipeReader.Close()
		msg := fmt.Sprintf("%s not found or failed to start: %v", o.CalcBinaryPath, err)
		o.Log.Error("orchestrator: start calc process failed", "request_id", requestID, "error", err)
		o.setStatus(ctx, requestID, models.StatusCalcFailed, &msg)
		return
	}
	pipeWriter.Close() // parent's copy; the child holds its own dup
	o.Log.Info("orchestrator: calc process started", "request_id", requestID, "pid", cmd.Process.Pid)

	go o.monitorCalculation(ctx, cmd, pipeReader, requestID)
}

func (o *Orchestrator) monitorCalculation(ctx context.Context, cmd *exec.Cmd, stdout *os.File, requestID string) {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		o.Log.Info("calc output", "request_id", requestID, "line", scanner.Text())
	}

	err := cmd.Wait()
	if err == nil {
		o.Log.Info("orchestrator: calculation completed successfully", "request_id", requestID)
		o.setStatus(ctx, requestID, models.StatusCalcComplete, nil)
		return
	}

	msg := fmt.Sprintf("process exited with error: %v", err)
	o.Log.Error("orchestrator: calculation failed", "request_id", requestID, "error", err)
	o.setStatus(ctx, requestID, models.StatusCalcFailed, &msg)
}
