package providers

import (
	"context"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/orchestria/orchestria/internal/schema"
)

// OpenAIProvider calls any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	maxTokens int
}

func NewOpenAIProvider(p Params) *OpenAIProvider {
	cfg := openai.DefaultConfig(p.APIKey)
	if p.APIBase != "" {
		cfg.BaseURL = p.APIBase
	}
	if p.HTTPClient != nil {
		cfg.HTTPClient = p.HTTPClient
	}
	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(cfg),
		model:     p.Model,
		maxTokens: p.MaxTokens,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// SendTurn implements schema.Provider. temperature, top_p, max_tokens, seed
// and stop are mapped onto the request; other generation arguments are
// ignored with a warning.
func (p *OpenAIProvider) SendTurn(
	ctx context.Context,
	history schema.Messages,
	systemPrompt string,
	params map[string]any,
	tools []schema.ToolSchema,
) (schema.ProviderResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  openaiMessages(history, systemPrompt),
		MaxTokens: p.maxTokens,
		Tools:     openaiTools(tools),
	}
	for key := range params {
		switch key {
		case "temperature":
			if v, ok := floatParam(params, key); ok {
				req.Temperature = float32(v)
			}
		case "top_p":
			if v, ok := floatParam(params, key); ok {
				req.TopP = float32(v)
			}
		case "max_tokens":
			if v, ok := intParam(params, key); ok && v > 0 {
				req.MaxTokens = v
			}
		case "seed":
			if v, ok := intParam(params, key); ok {
				req.Seed = &v
			}
		case "stop", "stop_sequences":
			if v, ok := stringsParam(params, key); ok {
				req.Stop = v
			}
		default:
			slog.Warn("Ignoring unsupported generation argument", "provider", p.Name(), "key", key)
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return schema.ProviderResponse{}, providerError(p.Name(), p.model, err)
	}
	if len(resp.Choices) == 0 {
		return schema.ProviderResponse{}, providerError(p.Name(), p.model, errEmptyChoices)
	}

	msg := resp.Choices[0].Message
	calls := make([]schema.ToolCallRequest, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		args, err := repairJSON(tc.Function.Arguments)
		if err != nil {
			slog.Warn("failed to parse tool arguments", "tool", tc.Function.Name, "err", err)
		}
		id := tc.ID
		if id == "" {
			id = newCallID()
		}
		calls = append(calls, schema.ToolCallRequest{ID: id, Name: tc.Function.Name, Arguments: args})
	}
	return response(msg.Content, calls), nil
}

func openaiMessages(history schema.Messages, systemPrompt string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, history.Len()+1)
	if systemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	history.Walk(func(msg *schema.Message, run schema.ToolRun) {
		if msg != nil {
			role := openai.ChatMessageRoleUser
			if msg.Role == schema.RoleAssistant {
				role = openai.ChatMessageRoleAssistant
			}
			out = append(out, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
			return
		}

		calls := make([]openai.ToolCall, 0, len(run))
		for _, c := range run.Calls() {
			calls = append(calls, openai.ToolCall{
				ID:   c.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      c.Name,
					Arguments: argumentsJSON(c.Arguments),
				},
			})
		}
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, ToolCalls: calls})
		for _, m := range run {
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				Name:       m.ToolName(),
				ToolCallID: m.ToolCallID(),
			})
		}
	})
	return out
}

func openaiTools(tools []schema.ToolSchema) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
