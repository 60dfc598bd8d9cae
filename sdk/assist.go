package synthide

import (
	"context"
	"net/http"
)

// AssistService wraps the synchronous explain and generate endpoints.
// Neither call polls or retries.
type AssistService struct {
	c *Client
}

// Explain asks the service to describe code written in lang.
func (s *AssistService) Explain(ctx context.Context, code string, lang Language) (*ExplainResponse, error) {
	return doRequest[ExplainResponse](ctx, s.c, http.MethodPost, "/explain-code", ExplainRequest{
		Code:     code,
		Language: lang,
	})
}

// Generate asks the service to write a program for prompt. When req.Template
// is empty the language's starter template is sent.
func (s *AssistService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Template == "" {
		req.Template = Template(req.Language)
	}
	return doRequest[GenerateResponse](ctx, s.c, http.MethodPost, "/generate-code", req)
}
