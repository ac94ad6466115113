package gemini

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"github.com/vango-go/posecoach/pkg/core"
)

// mapError converts SDK and transport failures into *core.Error. Context
// cancellation is returned unchanged so callers can tell it apart.
func (p *Provider) mapError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	default:
		return core.NewProviderError("gemini", err)
	}

	coreErr := core.NewStatusError("gemini", apiErr.Code, apiErr.Message)
	coreErr.Code = apiErr.Status
	if t, ok := typeForStatus(apiErr.Status); ok {
		coreErr.Type = t
	}
	return coreErr
}

// typeForStatus maps Google RPC status strings to an ErrorType.
func typeForStatus(status string) (core.ErrorType, bool) {
	switch status {
	case "INVALID_ARGUMENT", "FAILED_PRECONDITION":
		return core.ErrInvalidRequest, true
	case "UNAUTHENTICATED":
		return core.ErrAuthentication, true
	case "PERMISSION_DENIED":
		return core.ErrPermission, true
	case "NOT_FOUND":
		return core.ErrNotFound, true
	case "RESOURCE_EXHAUSTED":
		return core.ErrRateLimit, true
	case "INTERNAL":
		return core.ErrAPI, true
	case "UNAVAILABLE":
		return core.ErrOverloaded, true
	default:
		return "", false
	}
}
