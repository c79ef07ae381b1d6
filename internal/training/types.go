package training

import (
	"fmt"
	"strings"
	"time"

	"iotml/internal/engine"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transitions can leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ParseStatus accepts a status name in any letter case.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// DefaultJobType is used when a request does not name one.
const DefaultJobType = "INITIAL_TRAINING"

// Job is a snapshot of a training job.
type Job struct {
	ID              string         `json:"id"`
	ModelID         string         `json:"model_id"`
	OrganizationID  int64          `json:"organization_id"`
	ModelType       engine.Kind    `json:"model_type"`
	JobType         string         `json:"job_type"`
	Status          Status         `json:"status"`
	Config          map[string]any `json:"training_config"`
	DataStart       *time.Time     `json:"training_data_start,omitempty"`
	DataEnd         *time.Time     `json:"training_data_end,omitempty"`
	RecordCount     int64          `json:"record_count,omitempty"`
	DeviceCount     int64          `json:"device_count,omitempty"`
	ProgressPercent int            `json:"progress_percent"`
	CurrentStep     string         `json:"current_step,omitempty"`
	ResultMetrics   engine.Metrics `json:"result_metrics,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	ArtifactPath    string         `json:"-"`
	TriggeredBy     string         `json:"triggered_by,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	DurationSeconds *int64         `json:"duration_seconds,omitempty"`
	Logs            []string       `json:"-"`
}

// CreateJobRequest describes a job to enqueue.
type CreateJobRequest struct {
	ModelID        string         `json:"model_id" validate:"required,max=128,model_id"`
	OrganizationID int64          `json:"organization_id" validate:"gt=0"`
	ModelType      engine.Kind    `json:"model_type" validate:"required,model_kind"`
	JobType        string         `json:"job_type" validate:"omitempty,max=64"`
	Config         map[string]any `json:"training_config"`
	DataStart      *time.Time     `json:"training_data_start,omitempty"`
	DataEnd        *time.Time     `json:"training_data_end,omitempty"`
	TriggeredBy    string         `json:"triggered_by,omitempty" validate:"omitempty,max=128"`
}

// Filter selects jobs in ListJobs. Zero fields match everything.
type Filter struct {
	OrganizationID int64
	ModelID        string
	Status         Status
}

func (f Filter) match(j *Job) bool {
	if f.OrganizationID != 0 && j.OrganizationID != f.OrganizationID {
		return false
	}
	if f.ModelID != "" && j.ModelID != f.ModelID {
		return false
	}
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	return true
}

// clone returns a deep copy that shares no mutable state with j.
func (j *Job) clone() Job {
	out := *j
	out.Config = cloneMap(j.Config)
	out.DataStart = cloneTime(j.DataStart)
	out.DataEnd = cloneTime(j.DataEnd)
	out.StartedAt = cloneTime(j.StartedAt)
	out.CompletedAt = cloneTime(j.CompletedAt)
	if j.DurationSeconds != nil {
		d := *j.DurationSeconds
		out.DurationSeconds = &d
	}
	if j.ResultMetrics != nil {
		out.ResultMetrics = make(engine.Metrics, len(j.ResultMetrics))
		for k, v := range j.ResultMetrics {
			out.ResultMetrics[k] = v
		}
	}
	out.Logs = append([]string(nil), j.Logs...)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []float64:
		return append([]float64(nil), t...)
	default:
		return v
	}
}
