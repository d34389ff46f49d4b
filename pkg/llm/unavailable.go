package llm

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by UnavailableClient for every call, so callers
// degrade the same way whether the provider is unconfigured or actually down.
var ErrUnavailable = errors.New("llm: provider unavailable")

// UnavailableClient is wired in when no LLM_SERVICE_URL is configured. It
// lets the server start and serve every non-LLM endpoint normally; draft
// generation callers must catch ErrUnavailable and persist a degraded
// LlmInteraction row rather than fail the request.
type UnavailableClient struct{}

func (UnavailableClient) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, options *SamplingOptions) (*Response, error) {
	return nil, ErrUnavailable
}
