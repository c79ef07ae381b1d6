package training

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"

	"iotml/internal/common/fsutil"
	"iotml/internal/engine"
	"iotml/internal/events"
)

// Run executes a PENDING job on the calling goroutine. Unknown jobs and
// jobs in any other state are ignored with a warning, so duplicate
// scheduling runs the pipeline at most once.
func (o *Orchestrator) Run(ctx context.Context, jobID string) {
	o.mu.Lock()
	r, ok := o.jobs[jobID]
	if !ok {
		o.mu.Unlock()
		o.log.Warn().Str("job_id", jobID).Msg("run requested for unknown job")
		return
	}
	if r.job.Status != StatusPending {
		st := r.job.Status
		o.mu.Unlock()
		o.log.Warn().Str("job_id", jobID).Str("status", string(st)).Msg("job is not pending; skipping run")
		return
	}
	now := o.cfg.Now().UTC()
	r.job.Status = StatusRunning
	r.job.StartedAt = &now
	o.addLogLocked(&r.job, "Training started")
	job := r.job.clone()
	o.mu.Unlock()

	activeJobs.Inc()
	defer activeJobs.Dec()
	o.log.Info().Str("job_id", jobID).Str("model_id", job.ModelID).Msg("training started")
	o.pub.Publish(events.Event{Name: "job_started", JobID: jobID, ModelID: job.ModelID})

	metrics, path, err := o.execute(ctx, job)
	o.finish(jobID, metrics, path, err)
}

// execute runs the staged pipeline. Panics are converted to errors.
func (o *Orchestrator) execute(ctx context.Context, job Job) (metrics engine.Metrics, path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Str("job_id", job.ID).Str("stack", string(debug.Stack())).Msgf("training panicked: %v", r)
			metrics, path, err = nil, "", fmt.Errorf("training panicked: %v", r)
		}
	}()

	if err := o.stage(ctx, job.ID, 10, "Generating training data"); err != nil {
		return nil, "", err
	}
	data, err := o.fetchData(ctx, job)
	if err != nil {
		return nil, "", err
	}
	o.mu.Lock()
	if r, ok := o.jobs[job.ID]; ok {
		r.job.RecordCount = int64(data.Frame.Len())
		r.job.DeviceCount = data.DeviceCount
	}
	o.mu.Unlock()

	if err := o.stage(ctx, job.ID, 20, fmt.Sprintf("Initializing %s engine", job.ModelType)); err != nil {
		return nil, "", err
	}
	model, err := engine.New(job.ModelType, job.ModelID)
	if err != nil {
		return nil, "", err
	}

	if err := o.stage(ctx, job.ID, 30, "Training model"); err != nil {
		return nil, "", err
	}
	metrics, err = model.Train(data.Frame, data.Features, data.Target, hyperparameters(job.Config))
	if err != nil {
		return nil, "", fmt.Errorf("train: %w", err)
	}

	if err := o.stage(ctx, job.ID, 80, "Training complete, saving model"); err != nil {
		return nil, "", err
	}
	if err := o.stage(ctx, job.ID, 90, "Saving model to disk"); err != nil {
		return nil, "", err
	}
	target, err := o.artifactPath(job.ModelID)
	if err != nil {
		return nil, "", err
	}
	path, err = model.Save(target)
	if err != nil {
		return nil, "", fmt.Errorf("save: %w", err)
	}
	return metrics, path, nil
}

// stage advances progress and reports errCancelled once the job has left
// RUNNING. A cancelled ctx cancels the job first.
func (o *Orchestrator) stage(ctx context.Context, jobID string, percent int, step string) error {
	if ctx.Err() != nil {
		o.CancelJob(jobID)
		return errCancelled
	}
	if !o.UpdateProgress(jobID, percent, step) {
		return errCancelled
	}
	return nil
}

func (o *Orchestrator) artifactPath(modelID string) (string, error) {
	root, err := fsutil.ResolveExisting(o.cfg.ModelsDir)
	if err != nil {
		return "", err
	}
	p, err := fsutil.ResolveExisting(engine.ArtifactPath(root, modelID))
	if err != nil || !fsutil.Within(root, p) {
		return "", &ValidationError{Field: "model_id", Message: "does not map to a path inside the model store"}
	}
	return p, nil
}

// finish records the outcome unless the job left RUNNING in the meantime.
func (o *Orchestrator) finish(jobID string, metrics engine.Metrics, path string, runErr error) {
	o.mu.Lock()
	r, ok := o.jobs[jobID]
	if !ok {
		o.mu.Unlock()
		return
	}
	if r.job.Status != StatusRunning {
		st := r.job.Status
		if runErr == nil || errors.Is(runErr, errCancelled) {
			o.addLogLocked(&r.job, "Training stopped after cancellation; result discarded")
		}
		o.mu.Unlock()
		o.log.Info().Str("job_id", jobID).Str("status", string(st)).Msg("job left running state during training; keeping status")
		return
	}
	o.stampCompletionLocked(&r.job)
	job := &r.job
	if runErr != nil {
		msg := o.publicMessage(runErr)
		job.Status = StatusFailed
		job.ErrorMessage = msg
		o.addLogLocked(job, "Training failed: "+msg)
	} else {
		job.Status = StatusCompleted
		job.ProgressPercent = 100
		job.CurrentStep = "Training complete"
		job.ResultMetrics = metrics
		job.ArtifactPath = path
		o.addLogLocked(job, "Training completed successfully. Model saved as "+filepath.Base(path))
		o.addLogLocked(job, fmt.Sprintf("Metrics: %v", map[string]float64(metrics)))
	}
	snap := job.clone()
	o.mu.Unlock()

	jobsFinished.WithLabelValues(string(snap.Status)).Inc()
	if snap.DurationSeconds != nil {
		jobDuration.WithLabelValues(string(snap.ModelType)).Observe(float64(*snap.DurationSeconds))
	}
	if runErr != nil {
		o.log.Error().Err(runErr).Str("job_id", jobID).Msg("training job failed")
		o.pub.Publish(events.Event{Name: "job_failed", JobID: jobID, ModelID: snap.ModelID,
			Fields: map[string]any{"error": snap.ErrorMessage}})
		return
	}
	o.log.Info().Str("job_id", jobID).Str("model_id", snap.ModelID).Msg("training job completed")
	o.pub.Publish(events.Event{Name: "job_completed", JobID: jobID, ModelID: snap.ModelID,
		Fields: map[string]any{"model_type": string(snap.ModelType), "artifact_path": path}})
}

// publicMessage keeps validation messages and, in production, hides the
// detail of anything unexpected.
func (o *Orchestrator) publicMessage(err error) string {
	if IsValidation(err) || !o.cfg.Production {
		return err.Error()
	}
	return genericFailureMessage
}
