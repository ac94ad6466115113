// Package openai implements a non-streaming OpenAI Chat Completions client.
// Other OpenAI-compatible vendors (Groq) reuse it with a different base URL.
package openai

import (
	"context"
	"net/http"
	"strings"

	"github.com/vango-go/posecoach/pkg/core"
)

const (
	// DefaultBaseURL is the default OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultMaxTokens is used when a request leaves MaxTokens unset.
	DefaultMaxTokens = 500
)

// Provider implements core.Provider over the Chat Completions API.
type Provider struct {
	name                string
	apiKey              string
	baseURL             string
	chatCompletionsPath string
	httpClient          *http.Client
	extraHeaders        map[string]string
}

var _ core.Provider = (*Provider)(nil)

// New creates a new OpenAI provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		name:                "openai",
		apiKey:              apiKey,
		baseURL:             DefaultBaseURL,
		chatCompletionsPath: "/chat/completions",
		httpClient:          &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Generate sends one chat completion and returns the first choice's text.
func (p *Provider) Generate(ctx context.Context, req *core.GenerateRequest) (*core.GenerateResponse, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("prompt must not be empty", "prompt")
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("model must not be empty", "model")
	}

	respBody, err := p.doRequest(ctx, p.buildRequest(req))
	if err != nil {
		return nil, err
	}
	return p.parseResponse(respBody)
}
