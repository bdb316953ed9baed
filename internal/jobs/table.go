package jobs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seantiz/modelrouter/internal/model"
)

// Table stores job snapshots. Put replaces a job's snapshot atomically and
// Get returns either a complete snapshot or ErrJobNotFound. Snapshots
// returned by Get must not be modified.
type Table interface {
	Put(ctx context.Context, st *model.JobStatus) error
	Get(ctx context.Context, id string) (*model.JobStatus, error)
	Ping(ctx context.Context) error
}

// MemoryTable is an in-process Table. Each job id owns a handle whose
// pointer is swapped on every update; the map lock guards membership only.
type MemoryTable struct {
	mu   sync.RWMutex
	jobs map[string]*atomic.Pointer[model.JobStatus]
}

var _ Table = (*MemoryTable)(nil)

// NewMemoryTable creates an empty in-memory job table.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{jobs: make(map[string]*atomic.Pointer[model.JobStatus])}
}

// Put stores st as the current snapshot of job st.ID.
func (t *MemoryTable) Put(_ context.Context, st *model.JobStatus) error {
	t.handle(st.ID).Store(st)
	return nil
}

func (t *MemoryTable) handle(id string) *atomic.Pointer[model.JobStatus] {
	t.mu.RLock()
	h, ok := t.jobs[id]
	t.mu.RUnlock()
	if ok {
		return h
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.jobs[id]; ok {
		return h
	}
	h = new(atomic.Pointer[model.JobStatus])
	t.jobs[id] = h
	return h
}

// Get returns the current snapshot of job id. Expired snapshots are
// reported as ErrJobNotFound even before the janitor removes them.
func (t *MemoryTable) Get(_ context.Context, id string) (*model.JobStatus, error) {
	t.mu.RLock()
	h, ok := t.jobs[id]
	t.mu.RUnlock()
	if !ok {
		return nil, ErrJobNotFound
	}

	st := h.Load()
	if st == nil || st.Expired(time.Now()) {
		return nil, ErrJobNotFound
	}
	return st, nil
}

// Ping implements Table. The in-memory table is always reachable.
func (t *MemoryTable) Ping(context.Context) error { return nil }

// Len returns the number of jobs held, including expired ones not yet swept.
func (t *MemoryTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.jobs)
}

// Sweep removes snapshots that expired at or before now and returns how
// many were removed.
func (t *MemoryTable) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var n int
	for id, h := range t.jobs {
		if st := h.Load(); st != nil && st.Expired(now) {
			delete(t.jobs, id)
			n++
		}
	}
	return n
}

// RunJanitor sweeps expired jobs every interval until ctx is done.
func (t *MemoryTable) RunJanitor(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := t.Sweep(now); n > 0 {
				logger.Debug("expired jobs removed", "count", n)
			}
		}
	}
}
