// Package openrouter implements the OpenRouter API provider.
// OpenRouter is an OpenAI-compatible API that routes across many model providers.
package openrouter

import (
	"context"
	"net/http"

	"github.com/vango-go/posecoach/pkg/core"
	"github.com/vango-go/posecoach/pkg/core/providers/openai"
)

const (
	// DefaultBaseURL is the OpenRouter API endpoint.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultModel is a small, cheap chat model routed by OpenRouter.
	DefaultModel = "meta-llama/llama-3.1-8b-instruct"

	// DefaultSiteName is sent as X-Title for attribution on openrouter.ai.
	DefaultSiteName = "PoseCoach"
)

// Provider implements core.Provider against OpenRouter.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	siteURL    string
	siteName   string
	inner      *openai.Provider
}

var _ core.Provider = (*Provider)(nil)

// New creates a new OpenRouter provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		siteName:   DefaultSiteName,
	}
	for _, opt := range opts {
		opt(p)
	}

	openaiOpts := []openai.Option{
		openai.WithName("openrouter"),
		openai.WithBaseURL(p.baseURL),
		openai.WithHTTPClient(p.httpClient),
	}
	if p.siteURL != "" {
		openaiOpts = append(openaiOpts, openai.WithExtraHeader("HTTP-Referer", p.siteURL))
	}
	if p.siteName != "" {
		openaiOpts = append(openaiOpts, openai.WithExtraHeader("X-Title", p.siteName))
	}

	p.inner = openai.New(apiKey, openaiOpts...)
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "openrouter"
}

// Generate sends a non-streaming completion request to OpenRouter.
func (p *Provider) Generate(ctx context.Context, req *core.GenerateRequest) (*core.GenerateResponse, error) {
	resp, err := p.inner.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.Model = "openrouter/" + resp.Model
	return resp, nil
}
