package training

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"iotml/internal/engine"
)

func newTestOrchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	if cfg.ModelsDir == "" {
		cfg.ModelsDir = t.TempDir()
	}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})
	return o
}

func jobRequest(modelID string, kind engine.Kind, n int) CreateJobRequest {
	return CreateJobRequest{
		ModelID:        modelID,
		OrganizationID: 1,
		ModelType:      kind,
		Config:         map[string]any{"n_samples": float64(n)},
	}
}

func mustCreate(t *testing.T, o *Orchestrator, req CreateJobRequest) Job {
	t.Helper()
	j, err := o.CreateJob(req)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return j
}

func mustGetJob(t *testing.T, o *Orchestrator, id string) Job {
	t.Helper()
	j, ok := o.GetJob(id)
	if !ok {
		t.Fatalf("job %s not found", id)
	}
	return j
}

// setStatus forces a job's status, for capacity scenarios.
func setStatus(o *Orchestrator, id string, st Status) {
	o.mu.Lock()
	o.jobs[id].job.Status = st
	o.mu.Unlock()
}

func waitForStatus(t *testing.T, o *Orchestrator, id string, want Status) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		j := mustGetJob(t, o, id)
		if j.Status == want {
			return j
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s status %s, want %s", id, j.Status, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// stepClock advances by one second on every call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

// countingSource counts fetches and delegates to a synthetic source.
type countingSource struct{ n int64 }

func (c *countingSource) Fetch(ctx context.Context, job Job, n int) (Dataset, error) {
	atomic.AddInt64(&c.n, 1)
	return SyntheticSource{Seed: 1}.Fetch(ctx, job, n)
}

// blockingSource parks Fetch until release is closed.
type blockingSource struct {
	entered chan string
	release chan struct{}
}

func newBlockingSource() *blockingSource {
	return &blockingSource{entered: make(chan string, 16), release: make(chan struct{})}
}

func (b *blockingSource) Fetch(ctx context.Context, job Job, n int) (Dataset, error) {
	b.entered <- job.ID
	<-b.release
	return SyntheticSource{Seed: 1}.Fetch(ctx, job, n)
}

type failingSource struct{ err error }

func (f failingSource) Fetch(context.Context, Job, int) (Dataset, error) {
	return Dataset{}, f.err
}

type panickingSource struct{}

func (panickingSource) Fetch(context.Context, Job, int) (Dataset, error) {
	panic(errors.New("index out of range in feature builder"))
}
