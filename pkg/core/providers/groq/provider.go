// Package groq implements the Groq API provider.
// Groq uses an OpenAI-compatible API, so this provider wraps the OpenAI provider
// with a different base URL.
package groq

import (
	"context"
	"net/http"

	"github.com/vango-go/posecoach/pkg/core"
	"github.com/vango-go/posecoach/pkg/core/providers/openai"
)

const (
	// DefaultBaseURL is the Groq API endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	// DefaultModel is a fast general chat model served by Groq.
	DefaultModel = "llama-3.1-8b-instant"
)

// Provider implements core.Provider against Groq.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	inner      *openai.Provider
}

var _ core.Provider = (*Provider)(nil)

// New creates a new Groq provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}

	p.inner = openai.New(apiKey,
		openai.WithName("groq"),
		openai.WithBaseURL(p.baseURL),
		openai.WithHTTPClient(p.httpClient),
	)
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "groq"
}

// Generate sends a non-streaming completion request to Groq.
func (p *Provider) Generate(ctx context.Context, req *core.GenerateRequest) (*core.GenerateResponse, error) {
	resp, err := p.inner.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.Model = "groq/" + resp.Model
	return resp, nil
}
