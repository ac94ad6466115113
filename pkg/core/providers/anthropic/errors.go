package anthropic

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/vango-go/posecoach/pkg/core"
)

// anthropicError represents an error response from Anthropic.
type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// parseError converts an error response into a *core.Error. Anthropic's error
// type names match core.ErrorType, so a recognized one wins over the status.
func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	message := strings.TrimSpace(string(body))
	var anthErr anthropicError
	if err := json.Unmarshal(body, &anthErr); err == nil && anthErr.Error.Message != "" {
		message = anthErr.Error.Message
	}

	coreErr := core.NewStatusError("anthropic", resp.StatusCode, message)
	switch t := core.ErrorType(anthErr.Error.Type); t {
	case core.ErrInvalidRequest, core.ErrAuthentication, core.ErrPermission, core.ErrNotFound,
		core.ErrRateLimit, core.ErrAPI, core.ErrOverloaded:
		coreErr.Type = t
		coreErr.Code = anthErr.Error.Type
	}
	if v := strings.TrimSpace(resp.Header.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			coreErr.RetryAfter = &secs
		}
	}
	return coreErr
}
