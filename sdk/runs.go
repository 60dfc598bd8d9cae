package synthide

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Submitter sends a run to the execution service and returns its handle.
type Submitter interface {
	Submit(ctx context.Context, req RunRequest) (RunHandle, error)
}

// StatusQuerier fetches the current status of a submitted run.
type StatusQuerier interface {
	Output(ctx context.Context, runID string) (*OutputResponse, error)
}

// RunsService provides run submission and status lookup.
// It implements both Submitter and StatusQuerier.
type RunsService struct {
	c *Client
}

var (
	_ Submitter     = (*RunsService)(nil)
	_ StatusQuerier = (*RunsService)(nil)
)

// Submit validates req and posts it to /run-code. Every failure after
// validation is reported as a *SubmissionError; callers decide whether to
// resubmit.
func (s *RunsService) Submit(ctx context.Context, req RunRequest) (RunHandle, error) {
	if err := req.Validate(); err != nil {
		return RunHandle{}, err
	}

	resp, err := doRequest[RunCodeResponse](ctx, s.c, http.MethodPost, "/run-code", RunCodeRequest{
		Code:     req.SourceCode,
		Language: string(req.Language),
		Input:    req.Stdin,
	})
	if err != nil {
		s.c.log.Warn("run submission failed", zap.String("language", string(req.Language)), zap.Error(err))
		return RunHandle{}, &SubmissionError{Err: err}
	}
	if resp.RunID == "" {
		return RunHandle{}, &SubmissionError{Err: ErrMissingRunID}
	}

	s.c.log.Debug("run submitted", zap.String("run_id", resp.RunID), zap.String("language", string(req.Language)))
	return RunHandle{RunID: resp.RunID, SubmittedAt: time.Now()}, nil
}

// Output retrieves the current status of a run.
// runID is the identifier returned by Submit.
func (s *RunsService) Output(ctx context.Context, runID string) (*OutputResponse, error) {
	path := fmt.Sprintf("/get-output/%s", url.PathEscape(runID))
	return doRequest[OutputResponse](ctx, s.c, http.MethodGet, path, nil)
}
