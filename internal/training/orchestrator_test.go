package training

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"iotml/internal/engine"
	"iotml/internal/events"
)

func TestCreateJobStartsPending(t *testing.T) {
	o := newTestOrchestrator(t, Config{})
	created := mustCreate(t, o, jobRequest("m1", engine.KindAnomalyDetection, 100))
	got := mustGetJob(t, o, created.ID)
	if got.Status != StatusPending || got.ProgressPercent != 0 {
		t.Fatalf("new job: status=%s progress=%d", got.Status, got.ProgressPercent)
	}
	if got.JobType != DefaultJobType {
		t.Fatalf("job type = %q", got.JobType)
	}
	if len(got.Logs) != 1 || !strings.Contains(got.Logs[0], "Training job created") {
		t.Fatalf("logs = %v", got.Logs)
	}
	if got.StartedAt != nil || got.CompletedAt != nil {
		t.Fatalf("pending job must not carry run timestamps")
	}
}

func TestCreateJobValidation(t *testing.T) {
	o := newTestOrchestrator(t, Config{})
	cases := []struct {
		name  string
		mod   func(*CreateJobRequest)
		field string
	}{
		{"zero org", func(r *CreateJobRequest) { r.OrganizationID = 0 }, "organization_id"},
		{"negative org", func(r *CreateJobRequest) { r.OrganizationID = -1 }, "organization_id"},
		{"missing model id", func(r *CreateJobRequest) { r.ModelID = "" }, "model_id"},
		{"traversal model id", func(r *CreateJobRequest) { r.ModelID = "../etc" }, "model_id"},
		{"unknown kind", func(r *CreateJobRequest) { r.ModelType = "ISOLATION_FOREST" }, "model_type"},
		{"fractional n_samples", func(r *CreateJobRequest) { r.Config["n_samples"] = 2.5 }, "n_samples"},
		{"string n_samples", func(r *CreateJobRequest) { r.Config["n_samples"] = "many" }, "n_samples"},
		{"bad hyperparameters", func(r *CreateJobRequest) { r.Config["hyperparameters"] = "fast" }, "hyperparameters"},
		{"bad data source", func(r *CreateJobRequest) { r.Config["data_source"] = "s3" }, "data_source"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := jobRequest("m1", engine.KindAnomalyDetection, 100)
			tc.mod(&req)
			_, err := o.CreateJob(req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("field = %q, want %q (%v)", verr.Field, tc.field, err)
			}
		})
	}
	if n := len(o.ListJobs(Filter{})); n != 0 {
		t.Fatalf("rejected requests must not be stored, have %d", n)
	}
}

func TestCreateJobIsolatesConfig(t *testing.T) {
	o := newTestOrchestrator(t, Config{})
	hp := map[string]any{"contamination": 0.1}
	req := jobRequest("m1", engine.KindAnomalyDetection, 100)
	req.Config["hyperparameters"] = hp
	created := mustCreate(t, o, req)

	hp["contamination"] = 0.4
	req.Config["n_samples"] = 5.0
	created.Config["n_samples"] = 7.0
	created.Logs[0] = "tampered"

	got := mustGetJob(t, o, created.ID)
	if got.Config["n_samples"] != 100.0 {
		t.Fatalf("n_samples changed to %v", got.Config["n_samples"])
	}
	if got.Config["hyperparameters"].(map[string]any)["contamination"] != 0.1 {
		t.Fatalf("nested config was shared with the caller")
	}
	if got.Logs[0] == "tampered" {
		t.Fatalf("snapshot logs were shared")
	}
}

func TestRunCompletesEveryKind(t *testing.T) {
	dir := t.TempDir()
	pub := events.NewMemoryPublisher()
	o := newTestOrchestrator(t, Config{ModelsDir: dir, Publisher: pub})
	for _, kind := range engine.Kinds() {
		created := mustCreate(t, o, jobRequest("model-"+strings.ToLower(string(kind)), kind, 200))
		o.Run(context.Background(), created.ID)

		j := mustGetJob(t, o, created.ID)
		if j.Status != StatusCompleted {
			t.Fatalf("%s: status %s (%s)", kind, j.Status, j.ErrorMessage)
		}
		if j.ProgressPercent != 100 || j.CurrentStep != "Training complete" {
			t.Fatalf("%s: progress %d step %q", kind, j.ProgressPercent, j.CurrentStep)
		}
		if len(j.ResultMetrics) == 0 {
			t.Fatalf("%s: no metrics", kind)
		}
		if j.RecordCount != 200 || j.DeviceCount != 1 {
			t.Fatalf("%s: records=%d devices=%d", kind, j.RecordCount, j.DeviceCount)
		}
		if j.StartedAt == nil || j.CompletedAt == nil || j.DurationSeconds == nil {
			t.Fatalf("%s: missing timestamps", kind)
		}
		m, err := engine.Open(engine.ArtifactPath(dir, created.ModelID))
		if err != nil {
			t.Fatalf("%s: artifact: %v", kind, err)
		}
		if m.Kind() != kind {
			t.Fatalf("artifact kind %s, want %s", m.Kind(), kind)
		}
	}
	if got := pub.Count("job_completed"); got != len(engine.Kinds()) {
		t.Fatalf("job_completed events = %d", got)
	}
}

func TestRunRecordsStagesInOrder(t *testing.T) {
	o := newTestOrchestrator(t, Config{})
	created := mustCreate(t, o, jobRequest("m1", engine.KindEnergyForecast, 50))
	o.Run(context.Background(), created.ID)
	logs, ok := o.Logs(created.ID, 0)
	if !ok {
		t.Fatalf("logs missing")
	}
	want := []string{
		"Training started",
		"Progress: 10% - Generating training data",
		"Progress: 20% - Initializing ENERGY_FORECAST engine",
		"Progress: 30% - Training model",
		"Progress: 80% - Training complete, saving model",
		"Progress: 90% - Saving model to disk",
		"Training completed successfully",
	}
	i := 0
	for _, line := range logs {
		if i < len(want) && strings.Contains(line, want[i]) {
			i++
		}
	}
	if i != len(want) {
		t.Fatalf("stage %q not found in order; logs:\n%s", want[i], strings.Join(logs, "\n"))
	}
	if !strings.HasPrefix(logs[0], "[") {
		t.Fatalf("log lines must be timestamped: %q", logs[0])
	}
}

func TestRunTwiceExecutesOnce(t *testing.T) {
	src := &countingSource{}
	pub := events.NewMemoryPublisher()
	o := newTestOrchestrator(t, Config{Synthetic: src, Publisher: pub})
	created := mustCreate(t, o, jobRequest("m1", engine.KindAnomalyDetection, 50))
	o.Run(context.Background(), created.ID)
	first := mustGetJob(t, o, created.ID)
	o.Run(context.Background(), created.ID)
	o.Run(context.Background(), "no-such-job")

	if got := atomic.LoadInt64(&src.n); got != 1 {
		t.Fatalf("pipeline ran %d times", got)
	}
	if pub.Count("job_started") != 1 {
		t.Fatalf("job_started events = %d", pub.Count("job_started"))
	}
	second := mustGetJob(t, o, created.ID)
	if !second.CompletedAt.Equal(*first.CompletedAt) || len(second.Logs) != len(first.Logs) {
		t.Fatalf("second run must not touch the job")
	}
}

func TestSampleBoundsFailTheJob(t *testing.T) {
	for _, n := range []int{9, 501} {
		o := newTestOrchestrator(t, Config{MinSamples: 10, MaxSamples: 500, Production: true})
		created := mustCreate(t, o, jobRequest("m1", engine.KindAnomalyDetection, n))
		o.Run(context.Background(), created.ID)
		j := mustGetJob(t, o, created.ID)
		if j.Status != StatusFailed {
			t.Fatalf("n=%d: status %s", n, j.Status)
		}
		if !strings.Contains(strings.ToLower(j.ErrorMessage), "n_samples") {
			t.Fatalf("n=%d: message %q must mention n_samples", n, j.ErrorMessage)
		}
		if !strings.Contains(j.ErrorMessage, "10") || !strings.Contains(j.ErrorMessage, "500") {
			t.Fatalf("n=%d: message %q must state the bounds", n, j.ErrorMessage)
		}
	}
}

func TestUnexpectedFailureMessage(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.5:5432: password authentication failed for user ml")
	for _, production := range []bool{true, false} {
		o := newTestOrchestrator(t, Config{Synthetic: failingSource{err: cause}, Production: production})
		created := mustCreate(t, o, jobRequest("m1", engine.KindAnomalyDetection, 50))
		o.Run(context.Background(), created.ID)
		j := mustGetJob(t, o, created.ID)
		if j.Status != StatusFailed {
			t.Fatalf("status %s", j.Status)
		}
		leaked := strings.Contains(j.ErrorMessage, "10.0.0.5")
		if production && (leaked || j.ErrorMessage != genericFailureMessage) {
			t.Fatalf("production message leaked detail: %q", j.ErrorMessage)
		}
		if !production && !leaked {
			t.Fatalf("development message should carry detail: %q", j.ErrorMessage)
		}
		for _, line := range j.Logs {
			if production && strings.Contains(line, "10.0.0.5") {
				t.Fatalf("job log leaked detail: %q", line)
			}
		}
	}
}

func TestPanicMarksJobFailed(t *testing.T) {
	o := newTestOrchestrator(t, Config{Synthetic: panickingSource{}})
	created := mustCreate(t, o, jobRequest("m1", engine.KindAnomalyDetection, 50))
	o.Run(context.Background(), created.ID)
	j := mustGetJob(t, o, created.ID)
	if j.Status != StatusFailed || !strings.Contains(j.ErrorMessage, "panicked") {
		t.Fatalf("status %s message %q", j.Status, j.ErrorMessage)
	}
}

func TestCancelCompletedJobIsRejected(t *testing.T) {
	o := newTestOrchestrator(t, Config{})
	created := mustCreate(t, o, jobRequest("m1", engine.KindEnergyForecast, 50))
	o.Run(context.Background(), created.ID)
	before := mustGetJob(t, o, created.ID)
	if o.CancelJob(created.ID) {
		t.Fatalf("cancelling a completed job must fail")
	}
	after := mustGetJob(t, o, created.ID)
	if after.Status != StatusCompleted || !after.CompletedAt.Equal(*before.CompletedAt) {
		t.Fatalf("completed job altered: %s %v", after.Status, after.CompletedAt)
	}
	if *after.DurationSeconds != *before.DurationSeconds || len(after.ResultMetrics) != len(before.ResultMetrics) {
		t.Fatalf("metrics or duration altered")
	}
	for k, v := range before.ResultMetrics {
		if after.ResultMetrics[k] != v {
			t.Fatalf("metric %s changed", k)
		}
	}
}

func TestCancelPendingJob(t *testing.T) {
	src := &countingSource{}
	o := newTestOrchestrator(t, Config{Synthetic: src})
	created := mustCreate(t, o, jobRequest("m1", engine.KindAnomalyDetection, 50))
	if !o.CancelJob(created.ID) {
		t.Fatalf("cancel pending job failed")
	}
	if o.CancelJob(created.ID) {
		t.Fatalf("second cancel must fail")
	}
	if o.CancelJob("missing") {
		t.Fatalf("cancel unknown job must fail")
	}
	j := mustGetJob(t, o, created.ID)
	if j.Status != StatusCancelled || j.CompletedAt == nil || j.DurationSeconds != nil {
		t.Fatalf("cancelled job: %+v", j)
	}
	o.Run(context.Background(), created.ID)
	if atomic.LoadInt64(&src.n) != 0 {
		t.Fatalf("cancelled job must not run")
	}
}

func TestCancelWhileRunningIsNotOverwritten(t *testing.T) {
	dir := t.TempDir()
	src := newBlockingSource()
	o := newTestOrchestrator(t, Config{ModelsDir: dir, Synthetic: src})
	created := mustCreate(t, o, jobRequest("m1", engine.KindAnomalyDetection, 50))

	done := make(chan struct{})
	go func() {
		o.Run(context.Background(), created.ID)
		close(done)
	}()
	<-src.entered
	if !o.CancelJob(created.ID) {
		t.Fatalf("cancel running job failed")
	}
	close(src.release)
	<-done

	j := mustGetJob(t, o, created.ID)
	if j.Status != StatusCancelled {
		t.Fatalf("status %s, want CANCELLED", j.Status)
	}
	if j.DurationSeconds == nil {
		t.Fatalf("cancelled running job must record a duration")
	}
	if len(j.ResultMetrics) != 0 || j.ProgressPercent != 10 {
		t.Fatalf("cancelled job recorded results: progress=%d metrics=%v", j.ProgressPercent, j.ResultMetrics)
	}
	if _, err := os.Stat(engine.ArtifactPath(dir, "m1")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("cancelled job must not save an artifact (stat err %v)", err)
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	o := newTestOrchestrator(t, Config{})
	created := mustCreate(t, o, jobRequest("m1", engine.KindAnomalyDetection, 50))
	if o.UpdateProgress(created.ID, 10, "early") {
		t.Fatalf("progress must not apply to a pending job")
	}
	setStatus(o, created.ID, StatusRunning)
	o.UpdateProgress(created.ID, 50, "half")
	o.UpdateProgress(created.ID, 30, "late report")
	o.UpdateProgress(created.ID, 250, "overflow")
	j := mustGetJob(t, o, created.ID)
	if j.ProgressPercent != 100 || j.CurrentStep != "overflow" {
		t.Fatalf("progress=%d step=%q", j.ProgressPercent, j.CurrentStep)
	}
	o.mu.Lock()
	o.jobs[created.ID].job.ProgressPercent = 50
	o.mu.Unlock()
	o.UpdateProgress(created.ID, 30, "late report")
	if j := mustGetJob(t, o, created.ID); j.ProgressPercent != 50 {
		t.Fatalf("progress moved backwards to %d", j.ProgressPercent)
	}
}

func TestLogsAreBounded(t *testing.T) {
	o := newTestOrchestrator(t, Config{MaxLogsPerJob: 5})
	created := mustCreate(t, o, jobRequest("m1", engine.KindAnomalyDetection, 50))
	setStatus(o, created.ID, StatusRunning)
	for i := 1; i <= 20; i++ {
		o.UpdateProgress(created.ID, i, "step")
	}
	logs, _ := o.Logs(created.ID, 0)
	if len(logs) != 5 {
		t.Fatalf("log length %d, want 5", len(logs))
	}
	if !strings.Contains(logs[4], "Progress: 20%") || !strings.Contains(logs[0], "Progress: 16%") {
		t.Fatalf("oldest lines must be dropped first: %v", logs)
	}
	tail, _ := o.Logs(created.ID, 2)
	if len(tail) != 2 || tail[1] != logs[4] {
		t.Fatalf("tail = %v", tail)
	}
	if _, ok := o.Logs("missing", 10); ok {
		t.Fatalf("logs for unknown job")
	}
}

func TestListJobsOrderAndFilters(t *testing.T) {
	o := newTestOrchestrator(t, Config{Now: stepClock()})
	type spec struct {
		org   int64
		model string
	}
	var ids []string
	for _, s := range []spec{{1, "a"}, {2, "a"}, {1, "b"}, {2, "b"}, {1, "a"}} {
		req := jobRequest(s.model, engine.KindAnomalyDetection, 50)
		req.OrganizationID = s.org
		ids = append(ids, mustCreate(t, o, req).ID)
	}
	o.CancelJob(ids[1])

	all := o.ListJobs(Filter{})
	if len(all) != 5 {
		t.Fatalf("len = %d", len(all))
	}
	for i := range all {
		if all[i].ID != ids[len(ids)-1-i] {
			t.Fatalf("position %d: got %s, want %s", i, all[i].ID, ids[len(ids)-1-i])
		}
	}

	check := func(f Filter, want ...string) {
		t.Helper()
		got := o.ListJobs(f)
		if len(got) != len(want) {
			t.Fatalf("filter %+v: %d results, want %d", f, len(got), len(want))
		}
		for i := range want {
			if got[i].ID != want[i] {
				t.Fatalf("filter %+v: position %d mismatch", f, i)
			}
		}
	}
	check(Filter{OrganizationID: 1}, ids[4], ids[2], ids[0])
	check(Filter{ModelID: "b"}, ids[3], ids[2])
	check(Filter{OrganizationID: 1, ModelID: "a"}, ids[4], ids[0])
	check(Filter{Status: StatusCancelled}, ids[1])
	check(Filter{OrganizationID: 3})

	all[0].Status = StatusFailed
	if mustGetJob(t, o, ids[4]).Status != StatusPending {
		t.Fatalf("ListJobs must return copies")
	}
}

func TestListJobsTieBreaksOnCreationOrder(t *testing.T) {
	fixed := func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	o := newTestOrchestrator(t, Config{Now: fixed})
	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, mustCreate(t, o, jobRequest("m", engine.KindAnomalyDetection, 50)).ID)
	}
	got := o.ListJobs(Filter{})
	for i := range got {
		if got[i].ID != ids[len(ids)-1-i] {
			t.Fatalf("tie order wrong at %d", i)
		}
	}
}

func TestCapacityWithActiveJobs(t *testing.T) {
	pub := events.NewMemoryPublisher()
	o := newTestOrchestrator(t, Config{MaxJobs: 3, Publisher: pub})
	var ids []string
	for i := 0; i < 3; i++ {
		j := mustCreate(t, o, jobRequest("m", engine.KindAnomalyDetection, 50))
		setStatus(o, j.ID, StatusRunning)
		ids = append(ids, j.ID)
	}
	_, err := o.CreateJob(jobRequest("m", engine.KindAnomalyDetection, 50))
	if !IsCapacity(err) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	if !strings.Contains(err.Error(), "occupied") {
		t.Fatalf("message %q", err.Error())
	}

	if !o.CancelJob(ids[1]) {
		t.Fatalf("cancel running job failed")
	}
	created, err := o.CreateJob(jobRequest("m", engine.KindAnomalyDetection, 50))
	if err != nil {
		t.Fatalf("CreateJob after cancel: %v", err)
	}
	if _, ok := o.GetJob(ids[1]); ok {
		t.Fatalf("cancelled job should have been evicted")
	}
	for _, id := range []string{ids[0], ids[2], created.ID} {
		mustGetJob(t, o, id)
	}
	if pub.Count("job_evicted") != 1 {
		t.Fatalf("job_evicted events = %d", pub.Count("job_evicted"))
	}
}

func TestEvictsOldestTerminalJob(t *testing.T) {
	o := newTestOrchestrator(t, Config{MaxJobs: 3})
	a := mustCreate(t, o, jobRequest("a", engine.KindAnomalyDetection, 50))
	b := mustCreate(t, o, jobRequest("b", engine.KindAnomalyDetection, 50))
	c := mustCreate(t, o, jobRequest("c", engine.KindAnomalyDetection, 50))
	o.CancelJob(b.ID)
	o.CancelJob(a.ID)
	mustCreate(t, o, jobRequest("d", engine.KindAnomalyDetection, 50))
	if _, ok := o.GetJob(a.ID); ok {
		t.Fatalf("oldest terminal job a should be evicted")
	}
	mustGetJob(t, o, b.ID)
	mustGetJob(t, o, c.ID)
}
