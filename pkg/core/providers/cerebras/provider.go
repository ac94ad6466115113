// Package cerebras implements the Cerebras API provider.
// Cerebras uses an OpenAI-compatible API, so this provider wraps the OpenAI provider
// with a different base URL.
package cerebras

import (
	"context"
	"net/http"

	"github.com/vango-go/posecoach/pkg/core"
	"github.com/vango-go/posecoach/pkg/core/providers/openai"
)

const (
	// DefaultBaseURL is the Cerebras API endpoint.
	DefaultBaseURL = "https://api.cerebras.ai/v1"

	// DefaultModel is the smallest Llama served by Cerebras.
	DefaultModel = "llama3.1-8b"
)

// Provider implements core.Provider against Cerebras.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	inner      *openai.Provider
}

var _ core.Provider = (*Provider)(nil)

// Option configures the Cerebras provider.
type Option func(*Provider)

// WithBaseURL sets a custom base URL (for testing or proxying).
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.baseURL = url
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// New creates a new Cerebras provider.
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
		openai.WithName("cerebras"),
		openai.WithBaseURL(p.baseURL),
		openai.WithHTTPClient(p.httpClient),
	)
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "cerebras"
}

// Generate sends a non-streaming completion request to Cerebras.
func (p *Provider) Generate(ctx context.Context, req *core.GenerateRequest) (*core.GenerateResponse, error) {
	resp, err := p.inner.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.Model = "cerebras/" + resp.Model
	return resp, nil
}
