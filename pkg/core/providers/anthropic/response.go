package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vango-go/posecoach/pkg/core"
)

// anthropicResponse is the subset of the Messages response read here.
type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func parseResponse(body []byte) (*core.GenerateResponse, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, core.NewProviderError("anthropic", fmt.Errorf("decode response: %w", err))
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, core.NewAPIError("anthropic: response contained no text")
	}

	return &core.GenerateResponse{
		Text:         text.String(),
		Model:        "anthropic/" + resp.Model,
		FinishReason: resp.StopReason,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}
