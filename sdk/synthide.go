// Package synthide provides a Go client for the SynthIDE execution service
// and the run-lifecycle machinery built on top of it.
//
// The execution service accepts a run submission, returns an opaque run id,
// and answers status queries for that id until the run's output is ready.
// Controller composes a Submitter and a Scheduler into a single state machine
// suitable for driving a UI:
//
//	client := synthide.New("https://synthide.example.com")
//	ctrl := client.Controller(synthide.DefaultPolicy())
//
//	_, err := ctrl.StartRun(ctx, synthide.RunRequest{
//	    SourceCode: "print('hi')",
//	    Language:   synthide.LanguagePython,
//	})
//	outcome, err := ctrl.Wait(ctx)
//	fmt.Println(outcome.Status())
//
// Explain and Generate are plain request/response calls on client.Assist.
package synthide

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Client is the SynthIDE API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger

	// Service accessors
	Runs   *RunsService
	Assist *AssistService
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used by the client and by the schedulers and
// controllers created from it. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a SynthIDE client.
// baseURL should be the root URL of the execution service (e.g. "https://synthide.onrender.com").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.Runs = &RunsService{c: c}
	c.Assist = &AssistService{c: c}
	return c
}

// Controller returns a Controller that submits and polls through this client.
func (c *Client) Controller(policy Policy, opts ...ControllerOption) *Controller {
	return NewController(c.Runs, NewScheduler(c.Runs, policy, c.log), opts...)
}

// Health checks that the execution service is reachable and healthy.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	return doRequest[HealthResponse](ctx, c, http.MethodGet, "/health", nil)
}

// --- internal helpers ---

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("synthide: marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// doRequest performs a JSON round trip. With no expected statuses any 2xx
// response is accepted; anything else becomes an *APIError.
func doRequest[T any](ctx context.Context, c *Client, method, path string, body any, expectedStatuses ...int) (*T, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !statusAccepted(resp.StatusCode, expectedStatuses) {
		return nil, parseError(resp)
	}

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("synthide: decode response: %w", err)
	}
	return &out, nil
}

func statusAccepted(code int, expected []int) bool {
	if len(expected) == 0 {
		return code >= 200 && code < 300
	}
	for _, s := range expected {
		if code == s {
			return true
		}
	}
	return false
}

func parseError(resp *http.Response) *APIError {
	e := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		e.Message = body.Error
	} else {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}
