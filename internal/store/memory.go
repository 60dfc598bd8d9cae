package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory keeps runs in process memory. It is only usable when the API and the
// worker share a process. With a ttl, runs are dropped ttl after their last
// write, like the Redis store.
type Memory struct {
	mu      sync.Mutex
	runs    map[uuid.UUID]*Run
	pending []uuid.UUID
	ttl     time.Duration
	now     func() time.Time
}

var _ RunStore = (*Memory)(nil)

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithTTL evicts runs that were not written for ttl. Zero keeps runs forever.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		runs: make(map[uuid.UUID]*Run),
		now:  time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Memory) CreateRun(ctx context.Context, arg CreateRunParams) (Run, error) {
	now := m.now()
	run := &Run{
		ID:         uuid.New(),
		Language:   arg.Language,
		SourceCode: arg.SourceCode,
		Stdin:      arg.Stdin,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked(now)
	m.runs[run.ID] = run
	m.pending = append(m.pending, run.ID)
	return *run, nil
}

func (m *Memory) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.lookupLocked(id)
	if !ok {
		return Run{}, ErrNotFound
	}
	return copyRun(run), nil
}

func (m *Memory) ClaimNextRun(ctx context.Context) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.pending) > 0 {
		id := m.pending[0]
		m.pending = m.pending[1:]
		run, ok := m.lookupLocked(id)
		if !ok || run.Status != StatusPending {
			continue
		}
		run.Status = StatusRunning
		run.UpdatedAt = m.now()
		return copyRun(run), nil
	}
	return Run{}, ErrNoPendingRuns
}

func (m *Memory) FinishRun(ctx context.Context, id uuid.UUID, output string) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.lookupLocked(id)
	if !ok {
		return Run{}, ErrNotFound
	}
	run.Status = StatusFinished
	run.Output = &output
	run.UpdatedAt = m.now()
	return copyRun(run), nil
}

// lookupLocked returns the run with id unless it has expired, in which case
// it is dropped.
func (m *Memory) lookupLocked(id uuid.UUID) (*Run, bool) {
	run, ok := m.runs[id]
	if !ok {
		return nil, false
	}
	if m.expired(run, m.now()) {
		delete(m.runs, id)
		return nil, false
	}
	return run, true
}

// evictLocked drops every expired run. Pending ids of dropped runs are
// skipped by ClaimNextRun.
func (m *Memory) evictLocked(now time.Time) {
	if m.ttl <= 0 {
		return
	}
	for id, run := range m.runs {
		if m.expired(run, now) {
			delete(m.runs, id)
		}
	}
}

func (m *Memory) expired(run *Run, now time.Time) bool {
	return m.ttl > 0 && now.Sub(run.UpdatedAt) >= m.ttl
}

func copyRun(r *Run) Run {
	out := *r
	if r.Output != nil {
		o := *r.Output
		out.Output = &o
	}
	return out
}
