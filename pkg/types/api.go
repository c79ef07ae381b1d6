package types

import "time"

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not found: pump-7
	Error string `json:"error" example:"model not found: pump-7"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// CreateJobRequest is the body of POST /training/jobs.
// The model type travels inside training_config as "model_type".
type CreateJobRequest struct {
	// Identifier of the model being trained.
	// example: pump-7
	ModelID string `json:"model_id" example:"pump-7"`
	// Owning organization.
	// example: 1
	OrganizationID int64 `json:"organization_id" example:"1"`
	// Job type label, defaults to INITIAL_TRAINING.
	// example: RETRAINING
	JobType string `json:"job_type,omitempty" example:"RETRAINING"`
	// Training options: model_type (required), n_samples, device_count,
	// data_source ("synthetic" or "telemetry") and hyperparameters.
	TrainingConfig map[string]any `json:"training_config"`
	// Optional telemetry window.
	TrainingDataStart *time.Time `json:"training_data_start,omitempty"`
	TrainingDataEnd   *time.Time `json:"training_data_end,omitempty"`
	// Who or what started the job.
	// example: scheduler
	TriggeredBy string `json:"triggered_by,omitempty" example:"scheduler"`
}

// LogsResponse is returned by GET /training/jobs/{id}/logs.
type LogsResponse struct {
	Logs []string `json:"logs"`
}

// InferenceRequest is the body of POST /inference/{model_id}.
type InferenceRequest struct {
	// Expected model type; a cached model of another type is rejected.
	// example: ENERGY_FORECAST
	ModelType string `json:"model_type" example:"ENERGY_FORECAST"`
	// Optional artifact path, relative to the storage root.
	// example: pump-7.model
	Path string `json:"path,omitempty" example:"pump-7.model"`
	// Column-oriented input rows.
	Data map[string][]float64 `json:"data"`
	// Optional column selection; defaults to the columns used in training.
	Features []string `json:"features,omitempty"`
}

// InferenceResponse carries one prediction per input row.
type InferenceResponse struct {
	// example: pump-7
	ModelID string `json:"model_id" example:"pump-7"`
	// example: ENERGY_FORECAST
	ModelType   string    `json:"model_type" example:"ENERGY_FORECAST"`
	Predictions []float64 `json:"predictions"`
	// Count of predictions that were NaN or infinite and replaced with 0.
	// example: 0
	Replaced int `json:"replaced_values" example:"0"`
	// Wall time of the request in milliseconds.
	// example: 3.2
	InferenceMillis float64 `json:"inference_time_ms" example:"3.2"`
}

// ModelInfo describes a trained artifact on disk.
type ModelInfo struct {
	// example: pump-7
	ID string `json:"id" example:"pump-7"`
	// example: EQUIPMENT_RUL
	Kind string `json:"kind" example:"EQUIPMENT_RUL"`
	// Path relative to the storage root.
	// example: pump-7.model
	Path      string    `json:"path" example:"pump-7.model"`
	SizeBytes int64     `json:"size_bytes" example:"2048"`
	SavedAt   time.Time `json:"saved_at"`
	// Whether the model is currently held by the cache.
	Cached bool `json:"cached"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// InvalidateResponse is returned by DELETE /cache/models/{model_id}.
type InvalidateResponse struct {
	ModelID     string `json:"model_id"`
	Invalidated bool   `json:"invalidated"`
}

// ClearResponse is returned by DELETE /cache.
type ClearResponse struct {
	Cleared int `json:"cleared"`
}
