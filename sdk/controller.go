package synthide

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// State is the lifecycle position of a Controller.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StatePolling
	StateCompleted
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StatePolling:
		return "polling"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// Terminal reports whether no further transitions happen without a new run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

func stateFor(k OutcomeKind) State {
	switch k {
	case OutcomeSuccess:
		return StateCompleted
	case OutcomeTimedOut:
		return StateTimedOut
	default:
		return StateFailed
	}
}

// Snapshot is a point-in-time view of a Controller.
type Snapshot struct {
	State  State
	Handle RunHandle
	// Outcome is set once the latest run reached a terminal state.
	Outcome *Outcome

	seq uint64
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithObserver registers fn to receive a Snapshot after every transition.
// Snapshots are delivered in order; one that is overtaken by a newer
// transition is skipped. fn must not call StartRun or Close.
func WithObserver(fn func(Snapshot)) ControllerOption {
	return func(c *Controller) {
		c.observer = fn
	}
}

// run is the Controller's record of one StartRun call.
type run struct {
	handle  RunHandle
	cancel  context.CancelFunc
	token   *Token
	done    chan struct{}
	outcome Outcome
	// err is set when the run was abandoned instead of resolved.
	err      error
	finished bool
}

// Controller drives one run at a time through submission and polling.
// Starting a new run cancels the previous one; results that belong to a
// superseded run are discarded and never reach the observer.
type Controller struct {
	submitter Submitter
	scheduler *Scheduler
	log       *zap.Logger
	observer  func(Snapshot)

	mu     sync.Mutex
	state  State
	active *run
	last   *run
	closed bool
	seq    uint64

	notifyMu sync.Mutex
	notified uint64
}

// NewController wires a Submitter and a Scheduler into a Controller.
func NewController(submitter Submitter, scheduler *Scheduler, opts ...ControllerOption) *Controller {
	c := &Controller{
		submitter: submitter,
		scheduler: scheduler,
		log:       scheduler.log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// StartRun supersedes any active run, submits req and starts polling its
// result. It returns once submission finished. An invalid request is
// rejected without touching the active run.
//
// A *SubmissionError moves the controller to StateFailed. ErrSuperseded is
// returned when another StartRun replaced this one during submission.
func (c *Controller) StartRun(ctx context.Context, req RunRequest) (RunHandle, error) {
	if err := req.Validate(); err != nil {
		return RunHandle{}, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r := &run{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return RunHandle{}, ErrClosed
	}
	stopPrev := c.abandonLocked(c.active, ErrSuperseded)
	c.active, c.last = r, r
	c.state = StateSubmitting
	snap := c.snapshotLocked()
	c.mu.Unlock()

	stopPrev()
	c.notify(snap)

	handle, err := c.submitter.Submit(subCtx, req)

	c.mu.Lock()
	if c.active != r {
		cause := r.err
		c.mu.Unlock()
		c.log.Debug("discarding superseded submission", zap.String("run_id", handle.RunID))
		if cause == nil {
			cause = ErrSuperseded
		}
		return RunHandle{}, cause
	}
	if err != nil {
		c.finishLocked(r, Outcome{Kind: OutcomeSubmissionError, Err: err})
		snap = c.snapshotLocked()
		c.mu.Unlock()
		c.log.Info("run failed to submit", zap.Error(err))
		c.notify(snap)
		return RunHandle{}, err
	}
	r.handle = handle
	r.token = c.scheduler.Start(handle, func(o Outcome) { c.resolve(r, o) })
	c.state = StatePolling
	snap = c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return handle, nil
}

// resolve is the scheduler callback for r.
func (c *Controller) resolve(r *run, o Outcome) {
	c.mu.Lock()
	if c.active != r {
		c.mu.Unlock()
		c.log.Debug("discarding stale result", zap.String("run_id", o.Handle.RunID), zap.Stringer("kind", o.Kind))
		return
	}
	c.finishLocked(r, o)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

// finishLocked records r's terminal outcome and clears the active run.
func (c *Controller) finishLocked(r *run, o Outcome) {
	r.outcome = o
	r.finished = true
	close(r.done)
	c.active = nil
	c.state = stateFor(o.Kind)
}

// abandonLocked marks r as finished with cause and returns the function that
// stops its submission and polling. The returned function must run after
// c.mu is released.
func (c *Controller) abandonLocked(r *run, cause error) func() {
	if r == nil || r.finished {
		return func() {}
	}
	r.err = cause
	r.finished = true
	close(r.done)
	cancel, tok := r.cancel, r.token
	return func() {
		cancel()
		if tok != nil {
			tok.Cancel()
		}
	}
}

// snapshotLocked records a transition and returns its Snapshot.
func (c *Controller) snapshotLocked() Snapshot {
	c.seq++
	return c.viewLocked()
}

func (c *Controller) viewLocked() Snapshot {
	s := Snapshot{State: c.state, seq: c.seq}
	if r := c.last; r != nil {
		s.Handle = r.handle
		if r.finished && r.err == nil {
			o := r.outcome
			s.Outcome = &o
		}
	}
	return s
}

func (c *Controller) notify(s Snapshot) {
	if c.observer == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if s.seq <= c.notified {
		return
	}
	c.notified = s.seq
	c.observer(s)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the current state together with the latest run.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Wait blocks until the most recently started run reaches its outcome. It
// returns ErrSuperseded if that run was replaced first, ErrNoRun if no run
// was ever started, or ctx's error.
func (c *Controller) Wait(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	r := c.last
	c.mu.Unlock()
	if r == nil {
		return Outcome{}, ErrNoRun
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if r.err != nil {
		return Outcome{}, r.err
	}
	return r.outcome, nil
}

// Close abandons the active run, if any, and rejects further StartRun calls.
// A controller that was submitting or polling returns to StateIdle.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.active == nil {
		c.mu.Unlock()
		return
	}
	stop := c.abandonLocked(c.active, ErrClosed)
	c.active = nil
	c.state = StateIdle
	snap := c.snapshotLocked()
	c.mu.Unlock()

	stop()
	c.notify(snap)
}
