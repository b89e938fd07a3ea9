package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/tader68/spdata/pkg/dataset"
	"github.com/tader68/spdata/pkg/logging"
	"github.com/tader68/spdata/pkg/models"
	"github.com/tader68/spdata/pkg/store"
)

// driver walks one job through its rows on a dedicated goroutine. It owns
// the job's mutable state (all writes go through the registry lock), pauses
// cooperatively at row/batch boundaries, and checkpoints the full snapshot
// after every step so a crash loses at most one in-flight row or batch.
type driver struct {
	jobID     string
	kind      models.JobKind
	registry  *Registry
	store     store.Store
	exec      *executor
	rows      []dataset.Row
	batchSize int // 1 means row mode
	startAt   int // resume offset, 0 for fresh jobs
	log       *logging.Logger
	metrics   MetricsRecorder
	done      chan struct{}
}

func (d *driver) run() {
	defer close(d.done)
	defer func() {
		if r := recover(); r != nil {
			d.fail(fmt.Sprintf("internal error: %v", r))
		}
	}()

	d.log.Info("job processing started", map[string]interface{}{
		"job_id": d.jobID, "kind": string(d.kind),
		"rows": len(d.rows), "batch_size": d.batchSize, "offset": d.startAt,
	})

	ctx := context.Background()

	if d.batchSize > 1 {
		for start := d.startAt; start < len(d.rows); start += d.batchSize {
			d.waitIfPaused()
			end := start + d.batchSize
			if end > len(d.rows) {
				end = len(d.rows)
			}
			results := d.exec.batch(ctx, start, d.rows[start:end])
			if !d.record(results) {
				return
			}
		}
	} else {
		for i := d.startAt; i < len(d.rows); i++ {
			d.waitIfPaused()
			res := d.exec.row(ctx, i, d.rows[i])
			if !d.record([]models.Result{res}) {
				return
			}
		}
	}

	d.complete()
}

// record appends results, advances the processed count and checkpoints.
// A checkpoint write failure is job-fatal: without a durable snapshot the
// resumability guarantee is gone.
func (d *driver) record(results []models.Result) bool {
	for _, res := range results {
		d.metrics.RowProcessed(string(d.kind), len(res.Errors) > 0)
	}
	d.registry.Update(d.jobID, func(j *models.Job) {
		j.Results = append(j.Results, results...)
		j.ProcessedRows = len(j.Results)
	})
	if err := d.checkpoint(); err != nil {
		d.fail(fmt.Sprintf("checkpoint write failed: %v", err))
		return false
	}
	return true
}

// waitIfPaused blocks at a row/batch boundary while a pause is in effect
func (d *driver) waitIfPaused() {
	resume, paused := d.registry.pauseWait(d.jobID)
	if !paused {
		return
	}

	d.setStatus(models.JobStatusPaused)
	if err := d.checkpoint(); err != nil {
		d.log.Error("checkpoint write failed while pausing", map[string]interface{}{
			"job_id": d.jobID, "error": err.Error(),
		})
	}
	d.log.Info("job paused", map[string]interface{}{"job_id": d.jobID})

	<-resume

	d.setStatus(models.JobStatusProcessing)
	if err := d.checkpoint(); err != nil {
		d.log.Error("checkpoint write failed while resuming", map[string]interface{}{
			"job_id": d.jobID, "error": err.Error(),
		})
	}
	d.log.Info("job resumed", map[string]interface{}{"job_id": d.jobID})
}

func (d *driver) complete() {
	now := time.Now().UTC()
	d.setStatus(models.JobStatusCompleted)
	d.registry.Update(d.jobID, func(j *models.Job) {
		j.EndTime = &now
	})
	if err := d.checkpoint(); err != nil {
		d.log.Error("final checkpoint write failed", map[string]interface{}{
			"job_id": d.jobID, "error": err.Error(),
		})
	}
	d.metrics.JobFinished(string(d.kind), string(models.JobStatusCompleted))
	d.log.Info("job completed", map[string]interface{}{"job_id": d.jobID})
}

func (d *driver) fail(msg string) {
	now := time.Now().UTC()
	d.setStatus(models.JobStatusFailed)
	d.registry.Update(d.jobID, func(j *models.Job) {
		j.Error = msg
		j.EndTime = &now
	})
	if err := d.checkpoint(); err != nil {
		d.log.Error("checkpoint write failed for failed job", map[string]interface{}{
			"job_id": d.jobID, "error": err.Error(),
		})
	}
	d.metrics.JobFinished(string(d.kind), string(models.JobStatusFailed))
	d.log.Error("job failed", map[string]interface{}{"job_id": d.jobID, "error": msg})
}

func (d *driver) setStatus(next models.JobStatus) {
	d.registry.Update(d.jobID, func(j *models.Job) {
		if err := models.ValidateTransition(j.Status, next); err != nil {
			d.log.Warn("forcing status transition", map[string]interface{}{
				"job_id": d.jobID, "from": string(j.Status), "to": string(next),
			})
		}
		j.Status = next
	})
}

func (d *driver) checkpoint() error {
	snapshot, ok := d.registry.Snapshot(d.jobID)
	if !ok {
		return ErrJobNotActive
	}
	return d.store.SaveJob(snapshot)
}
