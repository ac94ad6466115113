package openai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/vango-go/posecoach/pkg/core"
)

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		FinishReason string      `json:"finish_reason"`
		Message      chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type errorEnvelope struct {
	Error struct {
		Message string          `json:"message"`
		Type    string          `json:"type"`
		Code    json.RawMessage `json:"code"`
	} `json:"error"`
}

// codeString accepts both string and numeric codes; vendors disagree.
func (e errorEnvelope) codeString() string {
	raw := strings.TrimSpace(string(e.Error.Code))
	if raw == "" || raw == "null" {
		return e.Error.Type
	}
	var s string
	if err := json.Unmarshal(e.Error.Code, &s); err == nil {
		return s
	}
	return raw
}

func (p *Provider) parseResponse(body []byte) (*core.GenerateResponse, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, core.NewProviderError(p.name, fmt.Errorf("decode response: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, core.NewAPIError(p.name + ": response contained no choices")
	}

	choice := resp.Choices[0]
	return &core.GenerateResponse{
		Text:         choice.Message.Content,
		Model:        resp.Model,
		FinishReason: choice.FinishReason,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func retryAfterSeconds(v string) (int, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
