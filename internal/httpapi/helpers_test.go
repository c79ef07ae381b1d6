package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"iotml/internal/engine"
	"iotml/internal/modelcache"
	"iotml/internal/training"
)

// fakeTrainer records calls and serves jobs from a map.
type fakeTrainer struct {
	mu        sync.Mutex
	jobs      map[string]training.Job
	created   []training.CreateJobRequest
	createErr error
	submitErr error
	submitted []string
	logs      map[string][]string
	lastTail  int
	lastF     training.Filter
}

func newFakeTrainer() *fakeTrainer {
	return &fakeTrainer{jobs: map[string]training.Job{}, logs: map[string][]string{}}
}

func (f *fakeTrainer) CreateJob(req training.CreateJobRequest) (training.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	if f.createErr != nil {
		return training.Job{}, f.createErr
	}
	j := training.Job{ID: "job-1", ModelID: req.ModelID, OrganizationID: req.OrganizationID, ModelType: req.ModelType, Status: training.StatusPending}
	f.jobs[j.ID] = j
	return j, nil
}

func (f *fakeTrainer) Submit(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, id)
	return f.submitErr
}

func (f *fakeTrainer) GetJob(id string) (training.Job, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	return j, ok
}

func (f *fakeTrainer) ListJobs(flt training.Filter) []training.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastF = flt
	var out []training.Job
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out
}

func (f *fakeTrainer) CancelJob(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || j.Status.Terminal() {
		return false
	}
	j.Status = training.StatusCancelled
	f.jobs[id] = j
	return true
}

func (f *fakeTrainer) Logs(id string, tail int) ([]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTail = tail
	if _, ok := f.jobs[id]; !ok {
		return nil, false
	}
	return f.logs[id], true
}

// fakeCache returns a fixed model or error.
type fakeCache struct {
	model engine.Model
	err   error
	stats modelcache.Stats
}

func (c *fakeCache) Get(ctx context.Context, modelID string, kind engine.Kind, path string) (engine.Model, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.model, nil
}
func (c *fakeCache) Invalidate(modelID string) bool { return modelID == "cached" }
func (c *fakeCache) Clear() int                     { return 3 }
func (c *fakeCache) Contains(modelID string) bool   { return modelID == "cached" }
func (c *fakeCache) Stats() modelcache.Stats        { return c.stats }

// constModel predicts fixed values regardless of input.
type constModel struct {
	kind  engine.Kind
	preds []float64
}

func (m constModel) Kind() engine.Kind { return m.kind }
func (m constModel) ID() string        { return "const" }
func (m constModel) Train(engine.Frame, []string, string, map[string]any) (engine.Metrics, error) {
	return nil, nil
}
func (m constModel) Predict(data engine.Frame, _ []string) ([]float64, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return append([]float64(nil), m.preds...), nil
}
func (m constModel) Save(string) (string, error) { return "", nil }
func (m constModel) Load(string) error           { return nil }

var nan = math.NaN()

func inf() float64 { return math.Inf(1) }

func doRaw(t *testing.T, h http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func setProductionForTest(t *testing.T, on bool) {
	t.Helper()
	prev := production
	SetProduction(on)
	t.Cleanup(func() { SetProduction(prev) })
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}
