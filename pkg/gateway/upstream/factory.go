package upstream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vango-go/posecoach/pkg/core"
	"github.com/vango-go/posecoach/pkg/core/providers/anthropic"
	"github.com/vango-go/posecoach/pkg/core/providers/cerebras"
	"github.com/vango-go/posecoach/pkg/core/providers/gemini"
	"github.com/vango-go/posecoach/pkg/core/providers/groq"
	"github.com/vango-go/posecoach/pkg/core/providers/openai"
	"github.com/vango-go/posecoach/pkg/core/providers/openrouter"
)

// Provider names accepted by Factory.New.
const (
	ProviderGroq       = "groq"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderCerebras   = "cerebras"
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
)

// Providers lists every accepted provider name.
var Providers = []string{ProviderGroq, ProviderOpenAI, ProviderGemini, ProviderCerebras, ProviderOpenRouter, ProviderAnthropic}

// Factory builds the text-generation provider once at process start.
type Factory struct {
	HTTPClient *http.Client
	// BaseURL overrides the provider's default endpoint when set.
	BaseURL string
}

func (f Factory) New(ctx context.Context, providerName, apiKey string) (core.Provider, error) {
	client := f.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	switch providerName {
	case ProviderGroq:
		return groq.New(apiKey, groq.WithHTTPClient(client), groq.WithBaseURL(f.BaseURL)), nil
	case ProviderOpenAI:
		return openai.New(apiKey, openai.WithHTTPClient(client), openai.WithBaseURL(f.BaseURL)), nil
	case ProviderGemini:
		opts := []gemini.Option{gemini.WithHTTPClient(client)}
		if f.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(f.BaseURL))
		}
		return gemini.New(ctx, apiKey, opts...)
	case ProviderCerebras:
		return cerebras.New(apiKey, cerebras.WithHTTPClient(client), cerebras.WithBaseURL(f.BaseURL)), nil
	case ProviderOpenRouter:
		return openrouter.New(apiKey, openrouter.WithHTTPClient(client), openrouter.WithBaseURL(f.BaseURL)), nil
	case ProviderAnthropic:
		return anthropic.New(apiKey, anthropic.WithHTTPClient(client), anthropic.WithBaseURL(f.BaseURL)), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", providerName)
	}
}

// DefaultModel returns the model used for providerName when none is configured.
func DefaultModel(providerName string) string {
	switch providerName {
	case ProviderGroq:
		return groq.DefaultModel
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderGemini:
		return gemini.DefaultModel
	case ProviderCerebras:
		return cerebras.DefaultModel
	case ProviderOpenRouter:
		return openrouter.DefaultModel
	case ProviderAnthropic:
		return anthropic.DefaultModel
	default:
		return ""
	}
}

// KeyEnvVar returns the environment variable holding providerName's API key.
func KeyEnvVar(providerName string) string {
	switch providerName {
	case ProviderGroq:
		return "GROQ_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	case ProviderCerebras:
		return "CEREBRAS_API_KEY"
	case ProviderOpenRouter:
		return "OPENROUTER_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}
