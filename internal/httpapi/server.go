package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"iotml/internal/engine"
	"iotml/internal/modelcache"
	"iotml/internal/registry"
	"iotml/internal/training"
	"iotml/pkg/types"
)

// Cache is the model cache as seen by the HTTP layer.
type Cache interface {
	Get(ctx context.Context, modelID string, kind engine.Kind, path string) (engine.Model, error)
	Invalidate(modelID string) bool
	Clear() int
	Contains(modelID string) bool
	Stats() modelcache.Stats
}

// Trainer is the training job store as seen by the HTTP layer.
type Trainer interface {
	CreateJob(req training.CreateJobRequest) (training.Job, error)
	Submit(id string) error
	GetJob(id string) (training.Job, bool)
	ListJobs(f training.Filter) []training.Job
	CancelJob(id string) bool
	Logs(id string, tail int) ([]string, bool)
}

// Deps are the collaborators served by NewMux.
type Deps struct {
	Cache   Cache
	Trainer Trainer
	// ModelsDir is scanned for GET /models.
	ModelsDir string
	// Ready reports readiness for /readyz; nil means always ready.
	Ready func() bool
}

const (
	defaultLogTail = 100
	maxLogTail     = 1000
)

func NewMux(d Deps) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(accessLog)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	h := &handlers{Deps: d}
	r.Route("/training/jobs", func(r chi.Router) {
		r.Post("/", h.createJob)
		r.Get("/", h.listJobs)
		r.Get("/{id}", h.getJob)
		r.Post("/{id}/cancel", h.cancelJob)
		r.Get("/{id}/logs", h.jobLogs)
	})
	r.Post("/inference/{model_id}", h.infer)
	r.Get("/cache/stats", h.cacheStats)
	r.Delete("/cache/models/{model_id}", h.invalidate)
	r.Delete("/cache", h.clearCache)
	r.Get("/models", h.listModels)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready == nil || d.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("starting"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)
	return r
}

type handlers struct {
	Deps
}

// decodeJSON enforces the content type and body limit shared by JSON endpoints.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// createJob godoc
// @Summary      Create a training job
// @Description  Validates the request, stores a PENDING job and schedules it on the worker pool.
// @Tags         training
// @Accept       json
// @Produce      json
// @Param        body  body      types.CreateJobRequest  true  "job"
// @Success      201   {object}  training.Job
// @Failure      400   {object}  types.ErrorResponse
// @Failure      503   {object}  types.ErrorResponse
// @Router       /training/jobs [post]
func (h *handlers) createJob(w http.ResponseWriter, r *http.Request) {
	var body types.CreateJobRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	kind, err := modelTypeOf(body.TrainingConfig)
	if err != nil {
		writeError(w, r, err)
		return
	}
	job, err := h.Trainer.CreateJob(training.CreateJobRequest{
		ModelID:        body.ModelID,
		OrganizationID: body.OrganizationID,
		ModelType:      kind,
		JobType:        body.JobType,
		Config:         body.TrainingConfig,
		DataStart:      body.TrainingDataStart,
		DataEnd:        body.TrainingDataEnd,
		TriggeredBy:    body.TriggeredBy,
	})
	if err != nil {
		if training.IsCapacity(err) {
			countBusy("job_store_full")
		}
		writeError(w, r, err)
		return
	}
	if err := h.Trainer.Submit(job.ID); err != nil {
		// a job nobody will run must not sit in PENDING
		h.Trainer.CancelJob(job.ID)
		if training.IsCapacity(err) {
			countBusy("queue_full")
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func modelTypeOf(cfg map[string]any) (engine.Kind, error) {
	raw, ok := cfg["model_type"]
	if !ok || raw == nil || raw == "" {
		return "", badRequest{"model_type is required in training_config"}
	}
	s, _ := raw.(string)
	kind, err := engine.ParseKind(s)
	if err != nil {
		return "", badRequest{fmt.Sprintf("invalid model_type: %v. Must be one of: %v", raw, engine.Kinds())}
	}
	return kind, nil
}

// listJobs godoc
// @Summary  List training jobs, newest first
// @Tags     training
// @Produce  json
// @Param    organization_id  query     int     false  "organization filter"
// @Param    model_id         query     string  false  "model filter"
// @Param    status           query     string  false  "status filter"
// @Success  200              {array}   training.Job
// @Failure  400              {object}  types.ErrorResponse
// @Router   /training/jobs [get]
func (h *handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f training.Filter
	if v := q.Get("organization_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "organization_id must be an integer")
			return
		}
		f.OrganizationID = id
	}
	f.ModelID = q.Get("model_id")
	if v := q.Get("status"); v != "" {
		st, err := training.ParseStatus(v)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Status = st
	}
	jobs := h.Trainer.ListJobs(f)
	if jobs == nil {
		jobs = []training.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// getJob godoc
// @Summary  Get a training job with its progress
// @Tags     training
// @Produce  json
// @Param    id   path      string  true  "job id"
// @Success  200  {object}  training.Job
// @Failure  404  {object}  types.ErrorResponse
// @Router   /training/jobs/{id} [get]
func (h *handlers) getJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.Trainer.GetJob(chi.URLParam(r, "id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// cancelJob godoc
// @Summary  Cancel a PENDING or RUNNING job
// @Tags     training
// @Produce  json
// @Param    id   path      string  true  "job id"
// @Success  200  {object}  training.Job
// @Failure  400  {object}  types.ErrorResponse
// @Failure  404  {object}  types.ErrorResponse
// @Router   /training/jobs/{id}/cancel [post]
func (h *handlers) cancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := h.Trainer.GetJob(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "job not found")
		return
	}
	if !h.Trainer.CancelJob(id) {
		// re-read: the job may have finished between the two calls
		if cur, ok := h.Trainer.GetJob(id); ok {
			job = cur
		}
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("cannot cancel job with status %s; only PENDING or RUNNING jobs can be cancelled", job.Status))
		return
	}
	job, _ = h.Trainer.GetJob(id)
	writeJSON(w, http.StatusOK, job)
}

// jobLogs godoc
// @Summary  Most recent log lines of a job
// @Tags     training
// @Produce  json
// @Param    id    path      string  true   "job id"
// @Param    tail  query     int     false  "lines to return (1-1000, default 100)"
// @Success  200   {object}  types.LogsResponse
// @Failure  400   {object}  types.ErrorResponse
// @Failure  404   {object}  types.ErrorResponse
// @Router   /training/jobs/{id}/logs [get]
func (h *handlers) jobLogs(w http.ResponseWriter, r *http.Request) {
	tail := defaultLogTail
	if v := r.URL.Query().Get("tail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLogTail {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("tail must be an integer between 1 and %d", maxLogTail))
			return
		}
		tail = n
	}
	logs, ok := h.Trainer.Logs(chi.URLParam(r, "id"), tail)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "job not found")
		return
	}
	if logs == nil {
		logs = []string{}
	}
	writeJSON(w, http.StatusOK, types.LogsResponse{Logs: logs})
}

// infer godoc
// @Summary      Run a cached model on column-oriented input
// @Description  Loads the model through the cache on first use. Non-finite predictions are replaced with 0.
// @Tags         inference
// @Accept       json
// @Produce      json
// @Param        model_id  path      string                  true  "model id"
// @Param        body      body      types.InferenceRequest  true  "input"
// @Success      200       {object}  types.InferenceResponse
// @Failure      400       {object}  types.ErrorResponse
// @Failure      404       {object}  types.ErrorResponse
// @Failure      503       {object}  types.ErrorResponse
// @Router       /inference/{model_id} [post]
func (h *handlers) infer(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	modelID := chi.URLParam(r, "model_id")
	var req types.InferenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	kind, err := engine.ParseKind(req.ModelType)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Data) == 0 {
		writeJSONError(w, http.StatusBadRequest, "data is required")
		return
	}

	ctx, cancel := inferenceContext(r.Context())
	defer cancel()
	model, err := h.Cache.Get(ctx, modelID, kind, req.Path)
	if err != nil {
		// client went away or the server is stopping
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		if modelcache.IsLoadTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
			countBusy("load_timeout")
		}
		writeError(w, r, err)
		return
	}
	preds, err := model.Predict(engine.Frame(req.Data), req.Features)
	if err != nil {
		if errors.Is(err, engine.ErrNotTrained) {
			writeError(w, r, err)
			return
		}
		writeError(w, r, badRequest{"invalid input: " + err.Error()})
		return
	}
	replaced := 0
	for i, v := range preds {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			preds[i] = 0
			replaced++
		}
	}
	inferencePredictions.WithLabelValues(string(kind)).Add(float64(len(preds)))
	writeJSON(w, http.StatusOK, types.InferenceResponse{
		ModelID:         modelID,
		ModelType:       string(model.Kind()),
		Predictions:     preds,
		Replaced:        replaced,
		InferenceMillis: float64(time.Since(start).Microseconds()) / 1000,
	})
}

// cacheStats godoc
// @Summary  Cache counters
// @Tags     cache
// @Produce  json
// @Success  200  {object}  modelcache.Stats
// @Router   /cache/stats [get]
func (h *handlers) cacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Cache.Stats())
}

// invalidate godoc
// @Summary  Drop one model from the cache
// @Tags     cache
// @Produce  json
// @Param    model_id  path      string  true  "model id"
// @Success  200       {object}  types.InvalidateResponse
// @Router   /cache/models/{model_id} [delete]
func (h *handlers) invalidate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "model_id")
	writeJSON(w, http.StatusOK, types.InvalidateResponse{ModelID: id, Invalidated: h.Cache.Invalidate(id)})
}

// clearCache godoc
// @Summary  Drop every cached model
// @Tags     cache
// @Produce  json
// @Success  200  {object}  types.ClearResponse
// @Router   /cache [delete]
func (h *handlers) clearCache(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ClearResponse{Cleared: h.Cache.Clear()})
}

// listModels godoc
// @Summary  Trained model artifacts in the storage root
// @Tags     models
// @Produce  json
// @Success  200  {object}  types.ModelsResponse
// @Failure  500  {object}  types.ErrorResponse
// @Router   /models [get]
func (h *handlers) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := registry.Scan(h.ModelsDir)
	if err != nil {
		writeError(w, r, err)
		return
	}
	for i := range models {
		models[i].Cached = h.Cache.Contains(models[i].ID)
	}
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: models})
}
