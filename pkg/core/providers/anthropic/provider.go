// Package anthropic implements a non-streaming Anthropic Messages API client.
package anthropic

import (
	"context"
	"net/http"
	"strings"

	"github.com/vango-go/posecoach/pkg/core"
)

const (
	// DefaultBaseURL is the default Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// APIVersion is the required Anthropic API version header.
	APIVersion = "2023-06-01"

	// DefaultModel is the fastest Claude model, enough for short coaching lines.
	DefaultModel = "claude-3-5-haiku-latest"

	// DefaultMaxTokens is used when a request leaves MaxTokens unset; the
	// Messages API requires the field.
	DefaultMaxTokens = 500
)

// Provider implements core.Provider over the Messages API.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ core.Provider = (*Provider)(nil)

// New creates a new Anthropic provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "anthropic"
}

// Generate sends one message and returns the concatenated text blocks.
func (p *Provider) Generate(ctx context.Context, req *core.GenerateRequest) (*core.GenerateResponse, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("prompt must not be empty", "prompt")
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("model must not be empty", "model")
	}

	respBody, err := p.doRequest(ctx, buildRequest(req))
	if err != nil {
		return nil, err
	}
	return parseResponse(respBody)
}
