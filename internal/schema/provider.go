package schema

import "context"

// ProviderResponse is the normalised answer of any model backend: either final
// text, or a set of tool-call requests issued in parallel.
type ProviderResponse struct {
	Final     bool
	Text      string // final text, or commentary accompanying tool calls
	ToolCalls []ToolCallRequest
}

func FinalText(text string) ProviderResponse {
	return ProviderResponse{Final: true, Text: text}
}

func ToolCalls(calls ...ToolCallRequest) ProviderResponse {
	return ProviderResponse{ToolCalls: calls}
}

// Provider is the interface every model backend must satisfy.
//
// SendTurn is not retried by implementations; transport and auth failures
// come back as *ProviderError.
type Provider interface {
	Name() string
	SendTurn(
		ctx context.Context,
		history Messages,
		systemPrompt string,
		params map[string]any,
		tools []ToolSchema,
	) (ProviderResponse, error)
}
