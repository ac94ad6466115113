package core

import "context"

// Provider generates coaching text from a prompt.
type Provider interface {
	// Name returns the provider identifier (e.g., "groq", "gemini").
	Name() string

	// Generate sends a single non-streaming completion request.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest is a single-turn completion request.
type GenerateRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// GenerateResponse is the text produced by a provider.
type GenerateResponse struct {
	Text         string
	Model        string
	FinishReason string
	InputTokens  int
	OutputTokens int
}
