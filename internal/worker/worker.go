package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gsarma/synthide/internal/code"
	"github.com/gsarma/synthide/internal/store"
)

// Config controls how often the worker polls and how long a run may take.
type Config struct {
	Concurrency  int
	PollInterval time.Duration
	ExecTimeout  time.Duration
}

// Worker polls the run store for pending runs and executes them concurrently.
type Worker struct {
	store    store.RunStore
	provider code.Provider
	cfg      Config
	log      *zap.Logger
}

func New(s store.RunStore, provider code.Provider, cfg Config, log *zap.Logger) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{store: s, provider: provider, cfg: cfg, log: log}
}

// Start spawns Concurrency goroutines that each poll for runs every
// PollInterval. It blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("worker started",
		zap.Int("concurrency", w.cfg.Concurrency),
		zap.Duration("poll_interval", w.cfg.PollInterval),
	)
	for i := 0; i < w.cfg.Concurrency; i++ {
		go w.loop(ctx)
	}
	<-ctx.Done()
	w.log.Info("worker stopped")
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// drain the queue before waiting for the next tick
			for ctx.Err() == nil && w.processNext(ctx) {
			}
		}
	}
}

// processNext executes at most one run and reports whether one was claimed.
func (w *Worker) processNext(ctx context.Context) bool {
	run, err := w.store.ClaimNextRun(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNoPendingRuns) && ctx.Err() == nil {
			w.log.Error("claim run failed", zap.Error(err))
		}
		return false
	}

	log := w.log.With(zap.String("run_id", run.ID.String()), zap.String("language", run.Language))
	start := time.Now()
	output := w.execute(ctx, run)

	// a claimed run is always finished, even during shutdown
	if _, err := w.store.FinishRun(context.WithoutCancel(ctx), run.ID, output); err != nil {
		log.Error("finish run failed", zap.Error(err))
		return true
	}
	log.Info("run finished", zap.Duration("elapsed", time.Since(start)), zap.Int("output_bytes", len(output)))
	return true
}

// execute returns the text stored as the run's output. Provider failures are
// reported to the user in the output itself.
func (w *Worker) execute(ctx context.Context, run store.Run) string {
	execCtx, cancel := context.WithTimeout(ctx, w.cfg.ExecTimeout)
	defer cancel()

	sub, err := w.provider.Execute(execCtx, code.Request{
		SourceCode: run.SourceCode,
		Language:   run.Language,
		Stdin:      run.Stdin,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("time limit of %s exceeded", w.cfg.ExecTimeout)
		}
		w.log.Warn("execution failed", zap.String("run_id", run.ID.String()), zap.Error(err))
		return "Error during execution: " + err.Error()
	}
	return sub.Output()
}
