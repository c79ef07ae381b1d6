package training

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"iotml/internal/events"
)

type record struct {
	job Job
	seq uint64
}

// Orchestrator owns the job store and the worker pool.
type Orchestrator struct {
	cfg      Config
	log      zerolog.Logger
	pub      events.Publisher
	validate *validator.Validate

	mu   sync.Mutex
	jobs map[string]*record
	seq  uint64

	pool *pool
}

// New returns an orchestrator with its workers already started. Call
// Shutdown to stop them.
func New(cfg Config) (*Orchestrator, error) {
	cfg.applyDefaults()
	if cfg.ModelsDir == "" {
		return nil, fmt.Errorf("training: models directory is required")
	}
	if cfg.MinSamples > cfg.MaxSamples {
		return nil, fmt.Errorf("training: min samples %d exceeds max samples %d", cfg.MinSamples, cfg.MaxSamples)
	}
	o := &Orchestrator{
		cfg:      cfg,
		pub:      events.OrNoop(cfg.Publisher),
		validate: newValidator(),
		jobs:     make(map[string]*record),
	}
	if cfg.Logger != nil {
		o.log = cfg.Logger.With().Str("component", "training").Logger()
	} else {
		o.log = zerolog.Nop()
	}
	o.pool = newPool(o, cfg.Workers, cfg.QueueDepth)
	o.log.Info().
		Int("max_jobs", cfg.MaxJobs).
		Int("workers", cfg.Workers).
		Int("queue_depth", cfg.QueueDepth).
		Msg("training orchestrator initialised")
	return o, nil
}

// CreateJob validates req and stores a PENDING job. It does not schedule
// the job; see Submit and Run.
func (o *Orchestrator) CreateJob(req CreateJobRequest) (Job, error) {
	if err := o.validateRequest(&req); err != nil {
		return Job{}, err
	}
	if req.JobType == "" {
		req.JobType = DefaultJobType
	}
	cfg := cloneMap(req.Config)
	if cfg == nil {
		cfg = map[string]any{}
	}

	o.mu.Lock()
	evicted, err := o.makeRoomLocked()
	if err != nil {
		o.mu.Unlock()
		o.log.Warn().Int("max_jobs", o.cfg.MaxJobs).Msg("job store full of active jobs")
		return Job{}, err
	}
	o.seq++
	rec := &record{
		seq: o.seq,
		job: Job{
			ID:             uuid.NewString(),
			ModelID:        req.ModelID,
			OrganizationID: req.OrganizationID,
			ModelType:      req.ModelType,
			JobType:        req.JobType,
			Status:         StatusPending,
			Config:         cfg,
			DataStart:      cloneTime(req.DataStart),
			DataEnd:        cloneTime(req.DataEnd),
			TriggeredBy:    req.TriggeredBy,
			CreatedAt:      o.cfg.Now().UTC(),
		},
	}
	o.jobs[rec.job.ID] = rec
	o.addLogLocked(&rec.job, fmt.Sprintf("Training job created: %s for model %s", req.JobType, req.ModelID))
	snap := rec.job.clone()
	o.mu.Unlock()

	for _, id := range evicted {
		o.pub.Publish(events.Event{Name: "job_evicted", JobID: id})
	}
	jobsCreated.Inc()
	o.log.Info().Str("job_id", snap.ID).Str("model_id", snap.ModelID).Str("model_type", string(snap.ModelType)).Msg("created training job")
	o.pub.Publish(events.Event{Name: "job_created", JobID: snap.ID, ModelID: snap.ModelID})
	return snap, nil
}

// makeRoomLocked evicts the oldest terminal job when the store is full.
func (o *Orchestrator) makeRoomLocked() ([]string, error) {
	var evicted []string
	for len(o.jobs) >= o.cfg.MaxJobs {
		var oldest *record
		for _, r := range o.jobs {
			if r.job.Status.Terminal() && (oldest == nil || r.seq < oldest.seq) {
				oldest = r
			}
		}
		if oldest == nil {
			return evicted, &CapacityError{Limit: o.cfg.MaxJobs, Reason: "all job slots are occupied by active jobs"}
		}
		delete(o.jobs, oldest.job.ID)
		evicted = append(evicted, oldest.job.ID)
		o.log.Debug().Str("job_id", oldest.job.ID).Msg("evicted terminal job")
	}
	return evicted, nil
}

// GetJob returns a copy of the job.
func (o *Orchestrator) GetJob(id string) (Job, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.jobs[id]
	if !ok {
		return Job{}, false
	}
	return r.job.clone(), true
}

// ListJobs returns copies of matching jobs, most recently created first.
func (o *Orchestrator) ListJobs(f Filter) []Job {
	o.mu.Lock()
	recs := make([]*record, 0, len(o.jobs))
	for _, r := range o.jobs {
		if f.match(&r.job) {
			recs = append(recs, r)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.job.CreatedAt.Equal(b.job.CreatedAt) {
			return a.job.CreatedAt.After(b.job.CreatedAt)
		}
		return a.seq > b.seq
	})
	out := make([]Job, len(recs))
	for i, r := range recs {
		out[i] = r.job.clone()
	}
	o.mu.Unlock()
	return out
}

// CancelJob moves a PENDING or RUNNING job to CANCELLED. It returns false
// for unknown ids and for jobs that already finished.
func (o *Orchestrator) CancelJob(id string) bool {
	o.mu.Lock()
	r, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return false
	}
	if r.job.Status != StatusPending && r.job.Status != StatusRunning {
		st := r.job.Status
		o.mu.Unlock()
		o.log.Warn().Str("job_id", id).Str("status", string(st)).Msg("cannot cancel finished job")
		return false
	}
	r.job.Status = StatusCancelled
	o.stampCompletionLocked(&r.job)
	o.addLogLocked(&r.job, "Job cancelled")
	modelID := r.job.ModelID
	o.mu.Unlock()

	jobsFinished.WithLabelValues(string(StatusCancelled)).Inc()
	o.log.Info().Str("job_id", id).Msg("cancelled training job")
	o.pub.Publish(events.Event{Name: "job_cancelled", JobID: id, ModelID: modelID})
	return true
}

// UpdateProgress records progress for a RUNNING job. Progress never moves
// backwards. It reports whether the job is still running.
func (o *Orchestrator) UpdateProgress(id string, percent int, step string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.jobs[id]
	if !ok || r.job.Status != StatusRunning {
		return false
	}
	if percent > 100 {
		percent = 100
	}
	if percent > r.job.ProgressPercent {
		r.job.ProgressPercent = percent
	}
	r.job.CurrentStep = step
	o.addLogLocked(&r.job, fmt.Sprintf("Progress: %d%% - %s", r.job.ProgressPercent, step))
	return true
}

// Logs returns up to tail of the most recent log lines (all when tail <= 0).
func (o *Orchestrator) Logs(id string, tail int) ([]string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.jobs[id]
	if !ok {
		return nil, false
	}
	lines := r.job.Logs
	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	return append([]string(nil), lines...), true
}

// addLogLocked appends a timestamped line, dropping the oldest lines once
// the per-job cap is reached.
func (o *Orchestrator) addLogLocked(j *Job, msg string) {
	line := fmt.Sprintf("[%s] %s", o.cfg.Now().UTC().Format(time.RFC3339Nano), msg)
	if over := len(j.Logs) + 1 - o.cfg.MaxLogsPerJob; over > 0 {
		n := copy(j.Logs, j.Logs[over:])
		j.Logs = j.Logs[:n]
	}
	j.Logs = append(j.Logs, line)
}

func (o *Orchestrator) stampCompletionLocked(j *Job) {
	now := o.cfg.Now().UTC()
	j.CompletedAt = &now
	if j.StartedAt != nil {
		d := int64(now.Sub(*j.StartedAt).Seconds())
		j.DurationSeconds = &d
	}
}

// Submit queues a job for a worker. A full queue is reported as a
// *CapacityError.
func (o *Orchestrator) Submit(id string) error {
	o.mu.Lock()
	_, ok := o.jobs[id]
	o.mu.Unlock()
	if !ok {
		return jobNotFoundError{id: id}
	}
	return o.pool.submit(id)
}

// Shutdown stops accepting work, cancels queued jobs and waits for running
// ones. When ctx expires first, in-flight runs are told to stop at their
// next stage boundary and ctx's error is returned.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	return o.pool.shutdown(ctx)
}
