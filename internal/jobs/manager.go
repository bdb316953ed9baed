package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/seantiz/modelrouter/internal/backend"
	"github.com/seantiz/modelrouter/internal/model"
)

// DefaultRetention is how long a finished job stays readable.
const DefaultRetention = time.Hour

// Config tunes a Manager.
type Config struct {
	// Retention is how long terminal snapshots stay readable.
	Retention time.Duration
	// MaxConcurrent bounds the number of jobs training at once.
	MaxConcurrent int
	// SubmitRate is the sustained number of submissions per second accepted;
	// zero disables admission control.
	SubmitRate  float64
	SubmitBurst int
}

// RunRecorder receives a history record for every finished job.
type RunRecorder interface {
	RecordRun(ctx context.Context, run model.TrainingRun) error
}

// Manager orchestrates asynchronous training jobs.
type Manager struct {
	table    Table
	registry *backend.Registry
	recorder RunRecorder
	logger   *slog.Logger
	broker   *Broker
	limiter  *rate.Limiter
	slots    chan struct{}
	cfg      Config
	wg       sync.WaitGroup
}

// NewManager creates a job manager. recorder may be nil.
func NewManager(table Table, reg *backend.Registry, recorder RunRecorder, cfg Config, logger *slog.Logger) *Manager {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}

	m := &Manager{
		table:    table,
		registry: reg,
		recorder: recorder,
		logger:   logger,
		broker:   NewBroker(),
		slots:    make(chan struct{}, cfg.MaxConcurrent),
		cfg:      cfg,
	}
	if cfg.SubmitRate > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.SubmitRate), max(cfg.SubmitBurst, 1))
	}
	return m
}

// Submit records a PENDING job for spec and starts executing it in the
// background. It returns as soon as the job is recorded.
func (m *Manager) Submit(ctx context.Context, spec model.JobSpec) (string, error) {
	if spec.Backend != model.TrainAll && !m.registry.Has(spec.Backend) {
		return "", fmt.Errorf("%w: %q", backend.ErrUnknownBackend, spec.Backend)
	}
	if m.limiter != nil && !m.limiter.Allow() {
		jobsThrottledTotal.Inc()
		return "", ErrThrottled
	}

	st := model.JobStatus{
		ID:          model.NewID(),
		State:       model.StatePending,
		Spec:        spec,
		SubmittedAt: time.Now().UTC(),
	}
	if err := m.table.Put(ctx, &st); err != nil {
		return "", fmt.Errorf("record job: %w", err)
	}
	jobsSubmittedTotal.WithLabelValues(spec.Backend).Inc()
	m.logger.Info("job submitted", "job_id", st.ID, "backend", spec.Backend)

	m.wg.Go(func() {
		m.execute(st)
	})
	return st.ID, nil
}

// Wait blocks until all in-flight jobs finish.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Status returns the current snapshot of job id.
func (m *Manager) Status(ctx context.Context, id string) (*model.JobStatus, error) {
	return m.table.Get(ctx, id)
}

// Result returns the payload of a successful job. A job in any other state
// yields a *NotReadyError.
func (m *Manager) Result(ctx context.Context, id string) (*model.JobResult, error) {
	st, err := m.table.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.State != model.StateSuccess {
		return nil, &NotReadyError{ID: id, State: st.State, Failure: st.Error}
	}
	return st.Result, nil
}

// Ping probes the job table and then claims and releases a worker slot, so
// it fails when every worker is busy for longer than the caller is willing
// to wait. Callers bound it with a context deadline.
func (m *Manager) Ping(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- m.table.Ping(ctx) }()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("job table: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("job table: %w", ctx.Err())
	}

	select {
	case m.slots <- struct{}{}:
		<-m.slots
		return nil
	case <-ctx.Done():
		return fmt.Errorf("no idle worker: %w", ctx.Err())
	}
}

// Subscribe streams snapshots of job id as they are written. The channel is
// closed when the job finishes.
func (m *Manager) Subscribe(id string) (<-chan model.JobStatus, func()) {
	return m.broker.Subscribe(id)
}

// tracker holds the executing job's latest snapshot and is its only writer.
type tracker struct {
	m   *Manager
	mu  sync.Mutex
	cur model.JobStatus
}

// advance writes next if the state machine allows the transition.
func (t *tracker) advance(next model.JobStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advanceLocked(next)
}

func (t *tracker) advanceLocked(next model.JobStatus) {
	if !model.ValidTransition(t.cur.State, next.State) {
		t.m.logger.Error("invalid job transition",
			"job_id", t.cur.ID, "from", t.cur.State, "to", next.State)
		return
	}
	t.cur = next
	if err := t.m.table.Put(context.Background(), &next); err != nil {
		t.m.logger.Error("failed to store job snapshot", "job_id", next.ID, "state", next.State, "error", err)
	}
	t.m.broker.Publish(next)
	t.m.logger.Debug("job transition", "job_id", next.ID, "state", next.State)
}

// progress is the backend.ProgressFunc handed to training. Updates that
// would lower the reported percentage, current or total are dropped.
func (t *tracker) progress(current, total int, message string) {
	p := model.NewProgress(current, total, message)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.cur.State.Running() {
		return
	}
	if prev := t.cur.Progress; prev != nil &&
		(p.Percent < prev.Percent || p.Current < prev.Current || p.Total < prev.Total) {
		return
	}
	next := t.cur
	next.State = model.StateProgress
	next.Progress = &p
	t.advanceLocked(next)
}

func (t *tracker) snapshot() model.JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur
}

// execute runs a job through STARTED, PROGRESS and a terminal state. Failures
// and panics are captured into the job record and never escape.
func (m *Manager) execute(pending model.JobStatus) {
	defer m.broker.Close(pending.ID)
	t := &tracker{m: m, cur: pending}

	m.slots <- struct{}{}
	defer func() { <-m.slots }()
	jobsRunning.Inc()
	defer jobsRunning.Dec()

	started := time.Now().UTC()
	next := pending
	next.State = model.StateStarted
	next.StartedAt = &started
	t.advance(next)

	result, err := m.run(context.Background(), pending.Spec, t.progress)

	finished := time.Now().UTC()
	expires := finished.Add(m.cfg.Retention)
	final := t.snapshot()
	final.Progress = nil
	final.FinishedAt = &finished
	final.ExpiresAt = &expires
	if err != nil {
		final.State = model.StateFailure
		final.Error = jobError(err)
		m.logger.Error("job failed", "job_id", pending.ID, "backend", pending.Spec.Backend, "error", err)
	} else {
		final.State = model.StateSuccess
		final.Result = result
		m.logger.Info("job succeeded", "job_id", pending.ID, "backend", pending.Spec.Backend)
	}
	t.advance(final)

	jobsFinishedTotal.WithLabelValues(pending.Spec.Backend, string(final.State)).Inc()
	jobDuration.WithLabelValues(pending.Spec.Backend).Observe(finished.Sub(started).Seconds())
	m.record(final, started)

	time.AfterFunc(m.cfg.Retention, func() { m.broker.Forget(pending.ID) })
}

// run calls Train, converting a panic into an error.
func (m *Manager) run(ctx context.Context, spec model.JobSpec, report backend.ProgressFunc) (res *model.JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return Train(ctx, m.registry, spec, report)
}

func (m *Manager) record(st model.JobStatus, started time.Time) {
	if m.recorder == nil {
		return
	}
	run := model.TrainingRun{
		JobID:       st.ID,
		Backend:     st.Spec.Backend,
		State:       st.State,
		DurationMS:  int(st.FinishedAt.Sub(started).Milliseconds()),
		SubmittedAt: st.SubmittedAt,
		FinishedAt:  *st.FinishedAt,
	}
	if st.Error != nil {
		run.Error = st.Error.Message
	}
	if err := m.recorder.RecordRun(context.Background(), run); err != nil {
		m.logger.Error("failed to record training run", "job_id", st.ID, "error", err)
	}
}

// panicError carries a recovered panic and the stack it was raised on.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

func jobError(err error) *model.JobError {
	var pe *panicError
	if errors.As(err, &pe) {
		return &model.JobError{Message: pe.Error(), Trace: string(pe.stack)}
	}
	return &model.JobError{Message: err.Error(), Trace: fmt.Sprintf("%+v", err)}
}
