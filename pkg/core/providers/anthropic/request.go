package anthropic

import "github.com/vango-go/posecoach/pkg/core"

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildRequest(req *core.GenerateRequest) *messagesRequest {
	out := &messagesRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		System:    req.System,
		Messages:  []message{{Role: "user", Content: req.Prompt}},
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = DefaultMaxTokens
	}
	// Anthropic caps temperature at 1.0.
	temp := min(req.Temperature, 1.0)
	out.Temperature = &temp
	return out
}
