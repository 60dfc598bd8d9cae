// Package store persists code runs between the API that accepts them and the
// worker that executes them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no run exists for an id.
	ErrNotFound = errors.New("store: run not found")
	// ErrNoPendingRuns is returned by ClaimNextRun when the queue is empty.
	ErrNoPendingRuns = errors.New("store: no pending runs")
)

// RunStatus is the execution state of a stored run.
type RunStatus string

const (
	StatusPending  RunStatus = "pending"
	StatusRunning  RunStatus = "running"
	StatusFinished RunStatus = "finished"
)

// Run is a submitted program and, once finished, its combined output.
// Output stays nil until the run is finished; an empty string is a valid
// finished output.
type Run struct {
	ID         uuid.UUID `json:"id"`
	Language   string    `json:"language"`
	SourceCode string    `json:"source_code"`
	Stdin      string    `json:"stdin,omitempty"`
	Status     RunStatus `json:"status"`
	Output     *string   `json:"output,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Finished reports whether the run has a final output.
func (r Run) Finished() bool {
	return r.Status == StatusFinished && r.Output != nil
}

type CreateRunParams struct {
	Language   string
	SourceCode string
	Stdin      string
}

// RunStore is implemented by every backend.
type RunStore interface {
	// CreateRun stores a new pending run and queues it for execution.
	CreateRun(ctx context.Context, arg CreateRunParams) (Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	// ClaimNextRun moves the oldest pending run to running. Each run is
	// claimed by at most one caller.
	ClaimNextRun(ctx context.Context) (Run, error)
	// FinishRun records the output of a claimed run.
	FinishRun(ctx context.Context, id uuid.UUID, output string) (Run, error)
}
