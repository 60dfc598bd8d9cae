package synthide_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	synthide "github.com/gsarma/synthide/sdk"
)

// stubStatus implements synthide.StatusQuerier for scheduler and controller tests.
type stubStatus struct {
	outputFn func(ctx context.Context, runID string, attempt int) (*synthide.OutputResponse, error)

	mu          sync.Mutex
	calls       map[string]int
	inFlight    int32
	maxInFlight int32
}

func newStubStatus(fn func(ctx context.Context, runID string, attempt int) (*synthide.OutputResponse, error)) *stubStatus {
	return &stubStatus{outputFn: fn, calls: make(map[string]int)}
}

func (s *stubStatus) Output(ctx context.Context, runID string) (*synthide.OutputResponse, error) {
	s.mu.Lock()
	s.calls[runID]++
	attempt := s.calls[runID]
	s.mu.Unlock()

	n := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		max := atomic.LoadInt32(&s.maxInFlight)
		if n <= max || atomic.CompareAndSwapInt32(&s.maxInFlight, max, n) {
			break
		}
	}

	if s.outputFn == nil {
		return pending(), nil
	}
	return s.outputFn(ctx, runID, attempt)
}

func (s *stubStatus) count(runID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[runID]
}

func (s *stubStatus) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

var _ synthide.StatusQuerier = (*stubStatus)(nil)

func pending() *synthide.OutputResponse { return &synthide.OutputResponse{} }

func ready(out string) *synthide.OutputResponse { return &synthide.OutputResponse{Output: &out} }

func fastPolicy() synthide.Policy {
	return synthide.Policy{Interval: 2 * time.Millisecond, MaxAttempts: synthide.DefaultMaxAttempts}
}

func handle(id string) synthide.RunHandle {
	return synthide.RunHandle{RunID: id, SubmittedAt: time.Now()}
}

// startAndCollect starts polling and returns a channel receiving every delivered outcome.
func startAndCollect(s *synthide.Scheduler, h synthide.RunHandle) (*synthide.Token, <-chan synthide.Outcome) {
	results := make(chan synthide.Outcome, 4)
	tok := s.Start(h, func(o synthide.Outcome) { results <- o })
	return tok, results
}

func waitOutcome(t *testing.T, results <-chan synthide.Outcome) synthide.Outcome {
	t.Helper()
	select {
	case o := <-results:
		return o
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for outcome")
	}
	return synthide.Outcome{}
}

func waitDone(t *testing.T, tok *synthide.Token) {
	t.Helper()
	select {
	case <-tok.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("polling goroutine did not exit")
	}
}

func expectNoOutcome(t *testing.T, results <-chan synthide.Outcome) {
	t.Helper()
	select {
	case o := <-results:
		t.Fatalf("expected no further outcome, got %+v", o)
	default:
	}
}

func TestScheduler_SuccessOnLastAttempt(t *testing.T) {
	status := newStubStatus(func(_ context.Context, _ string, attempt int) (*synthide.OutputResponse, error) {
		if attempt == 15 {
			return ready("done"), nil
		}
		return pending(), nil
	})
	tok, results := startAndCollect(synthide.NewScheduler(status, fastPolicy(), nil), handle("run-1"))

	o := waitOutcome(t, results)
	if o.Kind != synthide.OutcomeSuccess || o.Output != "done" {
		t.Fatalf("expected Success(done), got %v %q", o.Kind, o.Output)
	}
	if o.Attempts != 15 {
		t.Errorf("expected 15 attempts, got %d", o.Attempts)
	}

	waitDone(t, tok)
	time.Sleep(20 * time.Millisecond)
	if n := status.count("run-1"); n != 15 {
		t.Errorf("expected exactly 15 status queries, got %d", n)
	}
	expectNoOutcome(t, results)
}

func TestScheduler_TimesOutAfterBudget(t *testing.T) {
	status := newStubStatus(nil)
	tok, results := startAndCollect(synthide.NewScheduler(status, fastPolicy(), nil), handle("run-1"))

	o := waitOutcome(t, results)
	if o.Kind != synthide.OutcomeTimedOut {
		t.Fatalf("expected TimedOut, got %v", o.Kind)
	}
	if !errors.Is(o.Err, synthide.ErrTimedOut) {
		t.Errorf("expected ErrTimedOut, got %v", o.Err)
	}

	waitDone(t, tok)
	time.Sleep(20 * time.Millisecond)
	if n := status.count("run-1"); n != 15 {
		t.Errorf("expected 15 status queries and no 16th, got %d", n)
	}
}

func TestScheduler_EmptyOutputIsSuccess(t *testing.T) {
	status := newStubStatus(func(_ context.Context, _ string, attempt int) (*synthide.OutputResponse, error) {
		if attempt == 3 {
			return ready(""), nil
		}
		return pending(), nil
	})
	_, results := startAndCollect(synthide.NewScheduler(status, fastPolicy(), nil), handle("run-1"))

	o := waitOutcome(t, results)
	if o.Kind != synthide.OutcomeSuccess {
		t.Fatalf("expected Success for empty output, got %v", o.Kind)
	}
	if o.Output != "" || o.Attempts != 3 {
		t.Errorf("expected empty output on attempt 3, got %q on attempt %d", o.Output, o.Attempts)
	}
}

func TestScheduler_TransportErrorIsTerminal(t *testing.T) {
	status := newStubStatus(func(_ context.Context, _ string, attempt int) (*synthide.OutputResponse, error) {
		if attempt == 5 {
			return nil, errors.New("connection reset")
		}
		return pending(), nil
	})
	tok, results := startAndCollect(synthide.NewScheduler(status, fastPolicy(), nil), handle("run-1"))

	o := waitOutcome(t, results)
	if o.Kind != synthide.OutcomePollingError {
		t.Fatalf("expected PollingError, got %v", o.Kind)
	}
	var perr *synthide.PollingError
	if !errors.As(o.Err, &perr) || perr.Attempt != 5 || perr.RunID != "run-1" {
		t.Errorf("expected PollingError for run-1 attempt 5, got %v", o.Err)
	}

	waitDone(t, tok)
	time.Sleep(20 * time.Millisecond)
	if n := status.count("run-1"); n != 5 {
		t.Errorf("expected no attempt after the failure, got %d queries", n)
	}
}

func TestScheduler_CancelBeforeFirstPoll(t *testing.T) {
	status := newStubStatus(func(_ context.Context, _ string, _ int) (*synthide.OutputResponse, error) {
		return ready("unexpected"), nil
	})
	policy := synthide.Policy{Interval: 50 * time.Millisecond, MaxAttempts: 15}
	tok, results := startAndCollect(synthide.NewScheduler(status, policy, nil), handle("run-1"))
	tok.Cancel()

	waitDone(t, tok)
	time.Sleep(80 * time.Millisecond)
	if n := status.total(); n != 0 {
		t.Errorf("expected no status queries after cancel, got %d", n)
	}
	expectNoOutcome(t, results)
}

func TestScheduler_ResponseAfterCancelIsDiscarded(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	status := newStubStatus(func(_ context.Context, _ string, _ int) (*synthide.OutputResponse, error) {
		close(entered)
		// the request is already on the wire and ignores cancellation
		<-release
		return ready("late"), nil
	})
	tok, results := startAndCollect(synthide.NewScheduler(status, fastPolicy(), nil), handle("run-1"))

	<-entered
	tok.Cancel()
	close(release)

	waitDone(t, tok)
	expectNoOutcome(t, results)
}

func TestScheduler_CancelIsIdempotent(t *testing.T) {
	status := newStubStatus(func(_ context.Context, _ string, _ int) (*synthide.OutputResponse, error) {
		return ready("ok"), nil
	})
	tok, results := startAndCollect(synthide.NewScheduler(status, fastPolicy(), nil), handle("run-1"))

	waitOutcome(t, results)
	waitDone(t, tok)

	tok.Cancel()
	tok.Cancel()
	expectNoOutcome(t, results)
}

func TestScheduler_QueriesAreSequential(t *testing.T) {
	status := newStubStatus(func(_ context.Context, _ string, attempt int) (*synthide.OutputResponse, error) {
		// slower than the interval so an overlapping dispatch would show up
		time.Sleep(6 * time.Millisecond)
		if attempt == 4 {
			return ready("ok"), nil
		}
		return pending(), nil
	})
	_, results := startAndCollect(synthide.NewScheduler(status, fastPolicy(), nil), handle("run-1"))

	waitOutcome(t, results)
	if max := atomic.LoadInt32(&status.maxInFlight); max != 1 {
		t.Errorf("expected at most one query in flight, got %d", max)
	}
}

func TestScheduler_BackoffOverridesInterval(t *testing.T) {
	var mu sync.Mutex
	var asked []int
	policy := synthide.Policy{
		Interval:    time.Hour,
		MaxAttempts: 5,
		Backoff: func(attempt int) time.Duration {
			mu.Lock()
			asked = append(asked, attempt)
			mu.Unlock()
			return time.Millisecond
		},
	}
	status := newStubStatus(func(_ context.Context, _ string, attempt int) (*synthide.OutputResponse, error) {
		if attempt == 3 {
			return ready("ok"), nil
		}
		return pending(), nil
	})
	_, results := startAndCollect(synthide.NewScheduler(status, policy, nil), handle("run-1"))
	waitOutcome(t, results)

	mu.Lock()
	defer mu.Unlock()
	want := []int{1, 2, 3}
	if len(asked) != len(want) {
		t.Fatalf("expected backoff for attempts %v, got %v", want, asked)
	}
	for i := range want {
		if asked[i] != want[i] {
			t.Errorf("expected backoff for attempts %v, got %v", want, asked)
			break
		}
	}
}

func TestPolicy_Defaults(t *testing.T) {
	s := synthide.NewScheduler(newStubStatus(nil), synthide.Policy{}, nil)
	p := s.Policy()
	if p.Interval != time.Second || p.MaxAttempts != 15 {
		t.Errorf("expected 1s x 15 defaults, got %v x %d", p.Interval, p.MaxAttempts)
	}
	// the timeout is reported on the tick after the 15th query
	if got := synthide.DefaultPolicy().Budget(); got != 16*time.Second {
		t.Errorf("expected 16s budget, got %v", got)
	}
}
