// Package assist talks to an OpenAI-compatible chat completions API to explain
// and generate code.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// ErrNotConfigured is returned when no API key was provided.
var ErrNotConfigured = errors.New("assist: no API key configured")

type Config struct {
	BaseURL string // e.g. https://openrouter.ai/api/v1
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client is a minimal chat completions client. The API key is attached as a
// bearer token by an oauth2 transport.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
	log     *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		log:     log,
	}
	if cfg.APIKey != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})
		c.http = oauth2.NewClient(context.Background(), src)
		c.http.Timeout = cfg.Timeout
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Explain asks the model to describe code written in language.
func (c *Client) Explain(ctx context.Context, code, language string) (string, error) {
	return c.complete(ctx, chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: "You are a helpful assistant that explains code."},
			{Role: "user", Content: fmt.Sprintf("Explain this %s code:\n\n%s\n\nExplanation:", language, code)},
		},
		MaxTokens:   150,
		Temperature: 0.5,
	})
}

// Generate asks the model for code solving task and returns it wrapped in an
// entry point for language.
func (c *Client) Generate(ctx context.Context, task, language string) (string, error) {
	raw, err := c.complete(ctx, chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: "You are a code-only generator assistant. Never return explanations or markdown."},
			{Role: "user", Content: fmt.Sprintf(
				"Write only the raw %s code logic for the following task. "+
					"Do not add comments, explanation, or markdown. No formatting. Just clean code lines. "+
					"Task: %s", language, task)},
		},
		MaxTokens:   300,
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	return WrapInMain(StripFences(raw), strings.ToLower(language)), nil
}

func (c *Client) complete(ctx context.Context, req chatRequest) (string, error) {
	if c.http == nil {
		return "", ErrNotConfigured
	}
	req.Model = c.model

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("chat completion returned HTTP %d: %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 {
		if out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("chat completion returned HTTP %d: %s", resp.StatusCode, out.Error.Message)
		}
		return "", fmt.Errorf("chat completion returned HTTP %d", resp.StatusCode)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	c.log.Debug("chat completion",
		zap.String("model", c.model),
		zap.Int("max_tokens", req.MaxTokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
