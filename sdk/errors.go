package synthide

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySource         = errors.New("synthide: source code is empty")
	ErrUnsupportedLanguage = errors.New("synthide: unsupported language")
	ErrMissingRunID        = errors.New("synthide: response carried no run_id")

	// ErrTimedOut is the cause attached to a TimedOut outcome.
	ErrTimedOut = errors.New("synthide: run did not finish within the retry budget")
	// ErrSuperseded is returned to a StartRun caller whose run was replaced
	// by a newer StartRun before it could start polling.
	ErrSuperseded = errors.New("synthide: run superseded by a newer run")
	ErrClosed     = errors.New("synthide: controller closed")
	ErrNoRun      = errors.New("synthide: no run started")
)

// APIError is returned when the SynthIDE API responds with a non-success status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("synthide: HTTP %d: %s", e.StatusCode, e.Message)
}

// SubmissionError reports a failed run submission: a transport failure, a
// non-success status or a malformed response. It is never retried internally.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return "synthide: submit run: " + e.Err.Error()
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollingError reports a failed status query. It ends the run.
type PollingError struct {
	RunID   string
	Attempt int
	Err     error
}

func (e *PollingError) Error() string {
	return fmt.Sprintf("synthide: poll run %s (attempt %d): %v", e.RunID, e.Attempt, e.Err)
}

func (e *PollingError) Unwrap() error { return e.Err }
