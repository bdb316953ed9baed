package jobs_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seantiz/modelrouter/internal/backend"
	"github.com/seantiz/modelrouter/internal/backend/backendtest"
	"github.com/seantiz/modelrouter/internal/jobs"
	"github.com/seantiz/modelrouter/internal/model"
)

// gateBackend blocks in Train until released, then replays its progress
// reports.
type gateBackend struct {
	entered chan struct{}
	release chan struct{}
	reports [][2]int
}

func newGate(reports ...[2]int) *gateBackend {
	return &gateBackend{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
		reports: reports,
	}
}

func (g *gateBackend) Predict(context.Context, map[string]float64) (float64, error) {
	return 0, backend.ErrNotTrained
}

func (g *gateBackend) Train(_ context.Context, _ model.TrainParams, report backend.ProgressFunc) (model.TrainMetrics, error) {
	g.entered <- struct{}{}
	<-g.release
	for _, r := range g.reports {
		report(r[0], r[1], "epoch")
	}
	return model.TrainMetrics{Backend: "gate", TestR2: 0.9}, nil
}

func (g *gateBackend) Trained() bool { return false }

type runRecorder struct {
	mu   sync.Mutex
	runs []model.TrainingRun
}

func (r *runRecorder) RecordRun(_ context.Context, run model.TrainingRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func (r *runRecorder) all() []model.TrainingRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.TrainingRun(nil), r.runs...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, backends map[string]backend.Backend, cfg jobs.Config) (*jobs.Manager, *runRecorder) {
	t.Helper()
	reg := backend.NewRegistry(nil)
	for id, b := range backends {
		reg.Register(id, b)
	}
	rec := &runRecorder{}
	m := jobs.NewManager(jobs.NewMemoryTable(), reg, rec, cfg, discardLogger())
	t.Cleanup(m.Wait)
	return m, rec
}

// waitForState polls until the job reaches a state for which done returns true.
func waitForState(t *testing.T, m *jobs.Manager, id string, want model.JobState, timeout time.Duration) *model.JobStatus {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		st, err := m.Status(context.Background(), id)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if st.State == want {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach %s within %v", id, want, timeout)
	return nil
}

func TestSubmitHappyPath(t *testing.T) {
	stub := &backendtest.Stub{Steps: 3, Metrics: model.TrainMetrics{Backend: "mlp", TestR2: 0.8}}
	m, rec := newTestManager(t, map[string]backend.Backend{"mlp": stub}, jobs.Config{MaxConcurrent: 1})

	id, err := m.Submit(context.Background(), model.JobSpec{Backend: "mlp"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id == "" {
		t.Fatal("empty job id")
	}

	st := waitForState(t, m, id, model.StateSuccess, 5*time.Second)
	if st.Result == nil || st.Result.Metrics == nil {
		t.Fatalf("result = %+v, want metrics", st.Result)
	}
	if st.Result.Metrics.TestR2 != 0.8 {
		t.Errorf("test_r2 = %v, want 0.8", st.Result.Metrics.TestR2)
	}
	if st.Progress != nil {
		t.Errorf("progress = %+v, want nil on terminal job", st.Progress)
	}
	if st.Error != nil {
		t.Errorf("error = %+v, want nil", st.Error)
	}
	if st.StartedAt == nil || st.FinishedAt == nil || st.ExpiresAt == nil {
		t.Fatalf("timestamps not set: %+v", st)
	}
	if got := st.ExpiresAt.Sub(*st.FinishedAt); got != jobs.DefaultRetention {
		t.Errorf("retention = %v, want %v", got, jobs.DefaultRetention)
	}

	res, err := m.Result(context.Background(), id)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.Backend != "mlp" {
		t.Errorf("result backend = %q, want mlp", res.Backend)
	}
	// Results stay readable on every call until expiry.
	if _, err := m.Result(context.Background(), id); err != nil {
		t.Fatalf("second Result: %v", err)
	}

	m.Wait()
	runs := rec.all()
	if len(runs) != 1 || runs[0].JobID != id || runs[0].State != model.StateSuccess {
		t.Errorf("recorded runs = %+v", runs)
	}
}

func TestSubmitUnknownBackend(t *testing.T) {
	m, _ := newTestManager(t, map[string]backend.Backend{"mlp": &backendtest.Stub{}}, jobs.Config{})

	_, err := m.Submit(context.Background(), model.JobSpec{Backend: "xgboost"})
	if !errors.Is(err, backend.ErrUnknownBackend) {
		t.Fatalf("Submit error = %v, want ErrUnknownBackend", err)
	}
}

func TestSubmitReturnsBeforeExecution(t *testing.T) {
	gate := newGate()
	m, _ := newTestManager(t, map[string]backend.Backend{"gate": gate}, jobs.Config{MaxConcurrent: 1})
	defer close(gate.release)

	first, err := m.Submit(context.Background(), model.JobSpec{Backend: "gate"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-gate.entered

	second, err := m.Submit(context.Background(), model.JobSpec{Backend: "gate"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	st, err := m.Status(context.Background(), first)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != model.StateStarted {
		t.Errorf("first state = %s, want STARTED", st.State)
	}

	// The only worker slot is taken, so the second job waits.
	st, err = m.Status(context.Background(), second)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != model.StatePending {
		t.Errorf("second state = %s, want PENDING", st.State)
	}

	var nre *jobs.NotReadyError
	if _, err := m.Result(context.Background(), second); !errors.As(err, &nre) {
		t.Fatalf("Result error = %v, want NotReadyError", err)
	}
	if nre.State != model.StatePending {
		t.Errorf("not ready state = %s, want PENDING", nre.State)
	}
}

func TestProgressMonotonic(t *testing.T) {
	gate := newGate([2]int{1, 4}, [2]int{3, 4}, [2]int{2, 4}, [2]int{4, 4}, [2]int{9, 4})
	m, _ := newTestManager(t, map[string]backend.Backend{"gate": gate}, jobs.Config{MaxConcurrent: 1})

	id, err := m.Submit(context.Background(), model.JobSpec{Backend: "gate"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-gate.entered
	ch, unsub := m.Subscribe(id)
	defer unsub()
	close(gate.release)

	var percents []int
	var last model.JobStatus
	for st := range ch {
		if st.State == model.StateProgress {
			percents = append(percents, st.Progress.Percent)
		}
		last = st
	}

	want := []int{25, 75, 100, 100}
	if len(percents) != len(want) {
		t.Fatalf("percents = %v, want %v", percents, want)
	}
	for i := range want {
		if percents[i] != want[i] {
			t.Errorf("percents = %v, want %v", percents, want)
			break
		}
	}
	if last.State != model.StateSuccess {
		t.Errorf("last streamed state = %s, want SUCCESS", last.State)
	}
}

func TestProgressCountersNeverRegress(t *testing.T) {
	// All of these floor to 0%, so only current and total can order them.
	gate := newGate([2]int{5, 1000}, [2]int{3, 1000}, [2]int{8, 1000}, [2]int{8, 500})
	m, _ := newTestManager(t, map[string]backend.Backend{"gate": gate}, jobs.Config{MaxConcurrent: 1})

	id, err := m.Submit(context.Background(), model.JobSpec{Backend: "gate"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-gate.entered
	ch, unsub := m.Subscribe(id)
	defer unsub()
	close(gate.release)

	var got []model.Progress
	for st := range ch {
		if st.State == model.StateProgress {
			got = append(got, *st.Progress)
		}
	}

	if len(got) != 2 {
		t.Fatalf("progress = %+v, want 2 updates", got)
	}
	if got[0].Current != 5 || got[1].Current != 8 {
		t.Errorf("currents = %d, %d, want 5, 8", got[0].Current, got[1].Current)
	}
	for _, p := range got {
		if p.Total != 1000 {
			t.Errorf("total = %d, want 1000", p.Total)
		}
	}
}

func TestFailureCapturesTrace(t *testing.T) {
	stub := &backendtest.Stub{TrainErr: errors.New("loss diverged")}
	m, rec := newTestManager(t, map[string]backend.Backend{"mlp": stub}, jobs.Config{})

	id, err := m.Submit(context.Background(), model.JobSpec{Backend: "mlp"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	st := waitForState(t, m, id, model.StateFailure, 5*time.Second)
	if st.Error == nil {
		t.Fatal("error not recorded")
	}
	if !strings.Contains(st.Error.Message, "loss diverged") {
		t.Errorf("message = %q, want it to mention the cause", st.Error.Message)
	}
	if !strings.Contains(st.Error.Trace, "trainOne") {
		t.Errorf("trace does not contain a stack:\n%s", st.Error.Trace)
	}
	if st.Result != nil {
		t.Errorf("result = %+v, want nil on failure", st.Result)
	}

	var nre *jobs.NotReadyError
	if _, err := m.Result(context.Background(), id); !errors.As(err, &nre) || nre.Failure == nil {
		t.Fatalf("Result error = %v, want NotReadyError with failure", err)
	}

	m.Wait()
	if runs := rec.all(); len(runs) != 1 || runs[0].Error == "" {
		t.Errorf("recorded runs = %+v, want one failed run", runs)
	}
}

func TestPanicIsCaptured(t *testing.T) {
	stub := &backendtest.Stub{TrainPanic: "index out of range"}
	m, _ := newTestManager(t, map[string]backend.Backend{"mlp": stub, "knn": backendtest.NewTrained(1)}, jobs.Config{})

	id, err := m.Submit(context.Background(), model.JobSpec{Backend: "mlp"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	st := waitForState(t, m, id, model.StateFailure, 5*time.Second)
	if !strings.Contains(st.Error.Message, "index out of range") {
		t.Errorf("message = %q", st.Error.Message)
	}
	if !strings.Contains(st.Error.Trace, "goroutine") {
		t.Errorf("trace = %q, want a goroutine stack", st.Error.Trace)
	}

	// The manager keeps serving other jobs.
	id, err = m.Submit(context.Background(), model.JobSpec{Backend: "knn"})
	if err != nil {
		t.Fatalf("Submit after panic: %v", err)
	}
	waitForState(t, m, id, model.StateSuccess, 5*time.Second)
}

func TestTrainAllSequential(t *testing.T) {
	stubs := map[string]*backendtest.Stub{
		"a": {Metrics: model.TrainMetrics{Backend: "a"}},
		"b": {Metrics: model.TrainMetrics{Backend: "b"}},
		"c": {Metrics: model.TrainMetrics{Backend: "c"}},
	}
	backends := make(map[string]backend.Backend, len(stubs))
	for id, s := range stubs {
		backends[id] = s
	}
	m, _ := newTestManager(t, backends, jobs.Config{})

	id, err := m.Submit(context.Background(), model.JobSpec{Backend: model.TrainAll})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	st := waitForState(t, m, id, model.StateSuccess, 5*time.Second)
	if len(st.Result.Results) != 3 {
		t.Fatalf("results = %v, want 3 entries", st.Result.Results)
	}
	for id, s := range stubs {
		if s.TrainCalls() != 1 {
			t.Errorf("backend %s trained %d times, want 1", id, s.TrainCalls())
		}
	}
}

func TestTrainAllAbortsOnFailure(t *testing.T) {
	a := &backendtest.Stub{}
	b := &backendtest.Stub{TrainErr: errors.New("out of memory")}
	c := &backendtest.Stub{}
	m, _ := newTestManager(t, map[string]backend.Backend{"a": a, "b": b, "c": c}, jobs.Config{})

	id, err := m.Submit(context.Background(), model.JobSpec{Backend: model.TrainAll})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	st := waitForState(t, m, id, model.StateFailure, 5*time.Second)
	if !strings.Contains(st.Error.Message, "train b") {
		t.Errorf("message = %q, want it to name the failing backend", st.Error.Message)
	}
	if c.TrainCalls() != 0 {
		t.Errorf("c trained %d times after b failed, want 0", c.TrainCalls())
	}
	if _, err := m.Result(context.Background(), id); err == nil {
		t.Error("Result succeeded for failed job")
	}
}

func TestTrainAllBoundaryProgress(t *testing.T) {
	reg := backend.NewRegistry(nil)
	reg.Register("a", &backendtest.Stub{})
	reg.Register("b", &backendtest.Stub{})

	var got []model.Progress
	_, err := jobs.Train(context.Background(), reg, model.JobSpec{Backend: model.TrainAll}, func(current, total int, message string) {
		got = append(got, model.NewProgress(current, total, message))
	})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	want := []int{0, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("got %d reports, want %d", len(got), len(want))
	}
	for i, p := range got {
		if p.Current != want[i] || p.Total != 2 {
			t.Errorf("report %d = %d/%d, want %d/2", i, p.Current, p.Total, want[i])
		}
	}
}

func TestJobExpiresAfterRetention(t *testing.T) {
	m, _ := newTestManager(t, map[string]backend.Backend{"mlp": &backendtest.Stub{}}, jobs.Config{Retention: 20 * time.Millisecond})

	id, err := m.Submit(context.Background(), model.JobSpec{Backend: "mlp"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	m.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := m.Status(context.Background(), id); errors.Is(err, jobs.ErrJobNotFound) {
			if _, err := m.Result(context.Background(), id); !errors.Is(err, jobs.ErrJobNotFound) {
				t.Fatalf("Result after expiry = %v, want ErrJobNotFound", err)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not expire")
}

func TestStatusUnknownJob(t *testing.T) {
	m, _ := newTestManager(t, nil, jobs.Config{})

	if _, err := m.Status(context.Background(), model.NewID()); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Fatalf("Status error = %v, want ErrJobNotFound", err)
	}
}

func TestSubmitThrottled(t *testing.T) {
	m, _ := newTestManager(t, map[string]backend.Backend{"mlp": &backendtest.Stub{}}, jobs.Config{SubmitRate: 0.001, SubmitBurst: 1})

	if _, err := m.Submit(context.Background(), model.JobSpec{Backend: "mlp"}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if _, err := m.Submit(context.Background(), model.JobSpec{Backend: "mlp"}); !errors.Is(err, jobs.ErrThrottled) {
		t.Fatalf("second Submit error = %v, want ErrThrottled", err)
	}
}

// hangingTable never answers Ping.
type hangingTable struct {
	*jobs.MemoryTable
	block chan struct{}
}

func (h hangingTable) Ping(context.Context) error {
	<-h.block
	return nil
}

func TestPingTimesOut(t *testing.T) {
	table := hangingTable{MemoryTable: jobs.NewMemoryTable(), block: make(chan struct{})}
	defer close(table.block)
	m := jobs.NewManager(table, backend.NewRegistry(nil), nil, jobs.Config{}, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := m.Ping(ctx); err == nil {
		t.Fatal("Ping succeeded against a hung table")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Ping took %v, want it bounded by the caller's timeout", elapsed)
	}
}

func TestPingHealthy(t *testing.T) {
	m, _ := newTestManager(t, nil, jobs.Config{})
	if err := m.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestPingFailsWhenWorkersBusy(t *testing.T) {
	gate := newGate()
	m, _ := newTestManager(t, map[string]backend.Backend{"gate": gate}, jobs.Config{MaxConcurrent: 1})
	defer close(gate.release)

	if _, err := m.Submit(context.Background(), model.JobSpec{Backend: "gate"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-gate.entered

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := m.Ping(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Ping error = %v, want deadline exceeded", err)
	}
}
