package synthide

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPollInterval = time.Second
	DefaultMaxAttempts  = 15
)

// Policy controls how a Scheduler polls a run.
type Policy struct {
	// Interval is the wait before each status query.
	Interval time.Duration
	// MaxAttempts bounds the number of status queries per run.
	MaxAttempts int
	// Backoff, when set, returns the wait before the given attempt and
	// overrides Interval.
	Backoff func(attempt int) time.Duration
}

// DefaultPolicy polls once per second for at most 15 attempts.
func DefaultPolicy() Policy {
	return Policy{Interval: DefaultPollInterval, MaxAttempts: DefaultMaxAttempts}
}

func (p Policy) normalize() Policy {
	if p.Interval <= 0 {
		p.Interval = DefaultPollInterval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	return p
}

func (p Policy) delay(attempt int) time.Duration {
	if p.Backoff != nil {
		if d := p.Backoff(attempt); d > 0 {
			return d
		}
	}
	return p.Interval
}

// Budget is the wall-clock time after which an unfinished run times out.
func (p Policy) Budget() time.Duration {
	p = p.normalize()
	var total time.Duration
	for attempt := 1; attempt <= p.MaxAttempts+1; attempt++ {
		total += p.delay(attempt)
	}
	return total
}

// Token cancels the polling of a single run.
type Token struct {
	handle RunHandle
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	stopped bool
}

// Cancel stops all future poll cycles for the token's run. A response that
// arrives afterwards is discarded. Cancel may be called any number of times,
// including after the run reached a result.
func (t *Token) Cancel() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.cancel()
}

// Handle returns the run the token belongs to.
func (t *Token) Handle() RunHandle { return t.handle }

// Done is closed once the polling goroutine has exited.
func (t *Token) Done() <-chan struct{} { return t.done }

// claim marks the token as resolved. Only the first claim on a live token
// succeeds.
func (t *Token) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Scheduler polls run status on a fixed cadence until a terminal result
// arrives or the policy's attempt budget runs out.
type Scheduler struct {
	status StatusQuerier
	policy Policy
	log    *zap.Logger
}

// NewScheduler builds a Scheduler. A nil logger discards output.
func NewScheduler(status StatusQuerier, policy Policy, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{status: status, policy: policy.normalize(), log: log}
}

// Policy returns the normalized policy the scheduler runs with.
func (s *Scheduler) Policy() Policy { return s.policy }

// Start begins polling handle in the background. onResult is invoked at most
// once, from the polling goroutine, with a Success, PollingError or TimedOut
// outcome. The first query happens one interval after Start.
func (s *Scheduler) Start(handle RunHandle, onResult func(Outcome)) *Token {
	ctx, cancel := context.WithCancel(context.Background())
	tok := &Token{handle: handle, cancel: cancel, done: make(chan struct{})}
	go s.poll(ctx, tok, onResult)
	return tok
}

func (s *Scheduler) poll(ctx context.Context, tok *Token, onResult func(Outcome)) {
	defer close(tok.done)
	defer tok.cancel()

	runID := tok.handle.RunID
	log := s.log.With(zap.String("run_id", runID))

	timer := time.NewTimer(s.policy.delay(1))
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if attempt > s.policy.MaxAttempts {
			log.Info("run timed out", zap.Int("attempts", s.policy.MaxAttempts))
			s.deliver(tok, onResult, Outcome{
				Kind:     OutcomeTimedOut,
				Handle:   tok.handle,
				Attempts: s.policy.MaxAttempts,
				Err:      ErrTimedOut,
			})
			return
		}

		log.Debug("polling run", zap.Int("attempt", attempt))
		resp, err := s.status.Output(ctx, runID)
		if ctx.Err() != nil {
			// cancelled while the query was in flight
			return
		}
		if err != nil {
			log.Warn("status query failed", zap.Int("attempt", attempt), zap.Error(err))
			s.deliver(tok, onResult, Outcome{
				Kind:     OutcomePollingError,
				Handle:   tok.handle,
				Attempts: attempt,
				Err:      &PollingError{RunID: runID, Attempt: attempt, Err: err},
			})
			return
		}
		if resp.Ready() {
			log.Info("run finished", zap.Int("attempt", attempt), zap.Int("output_bytes", len(*resp.Output)))
			s.deliver(tok, onResult, Outcome{
				Kind:     OutcomeSuccess,
				Handle:   tok.handle,
				Attempts: attempt,
				Output:   *resp.Output,
			})
			return
		}

		timer.Reset(s.policy.delay(attempt + 1))
	}
}

func (s *Scheduler) deliver(tok *Token, onResult func(Outcome), o Outcome) {
	if !tok.claim() {
		s.log.Debug("dropping result for cancelled run", zap.String("run_id", tok.handle.RunID))
		return
	}
	if onResult != nil {
		onResult(o)
	}
}
