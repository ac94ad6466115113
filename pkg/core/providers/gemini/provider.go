// Package gemini implements core.Provider on top of the Google Gen AI SDK.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/posecoach/pkg/core"
)

// DefaultModel is used when the configuration does not name a model.
const DefaultModel = "gemini-2.5-flash"

// Provider implements the Google Gemini API.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	client     *genai.Client
}

var _ core.Provider = (*Provider)(nil)

// New creates a new Gemini provider backed by a genai client.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	p := &Provider{
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}

	cfg := &genai.ClientConfig{
		APIKey:     p.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	}
	if p.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	p.client = client
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "gemini"
}

// Generate sends a single GenerateContent call.
func (p *Provider) Generate(ctx context.Context, req *core.GenerateRequest) (*core.GenerateResponse, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("prompt must not be empty", "prompt")
	}
	model := stripProviderPrefix(req.Model)
	if model == "" {
		model = DefaultModel
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, p.mapError(ctx, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, core.NewAPIError("gemini: response contained no candidates")
	}

	out := &core.GenerateResponse{
		Text:         resp.Text(),
		Model:        "gemini/" + model,
		FinishReason: string(resp.Candidates[0].FinishReason),
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

func stripProviderPrefix(model string) string {
	return strings.TrimPrefix(strings.TrimSpace(model), "gemini/")
}
