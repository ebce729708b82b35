package providers

import (
	"context"
	"log/slog"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/orchestria/orchestria/internal/schema"
)

// AnthropicProvider calls the hosted Anthropic Messages API.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

func NewAnthropicProvider(p Params) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(p.APIKey),
		option.WithMaxRetries(0),
	}
	if p.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(p.HTTPClient))
	}
	if p.APIBase != "" {
		base := p.APIBase
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	return &AnthropicProvider{
		client:    anthropic.NewClient(opts...),
		model:     p.Model,
		maxTokens: p.MaxTokens,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// SendTurn implements schema.Provider. temperature, top_p, top_k, max_tokens
// and stop (or stop_sequences) are mapped onto the request; other generation
// arguments are copied into the request body as-is.
func (p *AnthropicProvider) SendTurn(
	ctx context.Context,
	history schema.Messages,
	systemPrompt string,
	params map[string]any,
	tools []schema.ToolSchema,
) (schema.ProviderResponse, error) {
	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		Messages:  anthropicMessages(history),
	}
	if systemPrompt != "" {
		req.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	var opts []option.RequestOption
	for key, value := range params {
		switch key {
		case "temperature":
			if v, ok := floatParam(params, key); ok {
				req.Temperature = anthropic.Float(v)
			}
		case "top_p":
			if v, ok := floatParam(params, key); ok {
				req.TopP = anthropic.Float(v)
			}
		case "top_k":
			if v, ok := intParam(params, key); ok {
				req.TopK = anthropic.Int(int64(v))
			}
		case "max_tokens":
			if v, ok := intParam(params, key); ok && v > 0 {
				req.MaxTokens = int64(v)
			}
		case "stop", "stop_sequences":
			if v, ok := stringsParam(params, key); ok {
				req.StopSequences = v
			}
		default:
			opts = append(opts, option.WithJSONSet(key, value))
		}
	}
	if len(tools) > 0 {
		opts = append(opts, option.WithJSONSet("tools", anthropicTools(tools)))
	}

	msg, err := p.client.Messages.New(ctx, req, opts...)
	if err != nil {
		return schema.ProviderResponse{}, providerError(p.Name(), p.model, err)
	}

	var (
		text  strings.Builder
		calls []schema.ToolCallRequest
	)
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			args, err := repairJSON(string(b.Input))
			if err != nil {
				slog.Warn("failed to parse tool arguments", "tool", b.Name, "err", err)
			}
			calls = append(calls, schema.ToolCallRequest{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}
	return response(text.String(), calls), nil
}

// anthropicMessages maps history onto alternating user/assistant turns: a run
// of tool results becomes an assistant turn of tool_use blocks answered by a
// user turn of tool_result blocks.
func anthropicMessages(history schema.Messages) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, history.Len())
	history.Walk(func(msg *schema.Message, run schema.ToolRun) {
		if msg != nil {
			if msg.Content == "" {
				return
			}
			if msg.Role == schema.RoleAssistant {
				out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
			} else {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
			return
		}

		uses := make([]anthropic.ContentBlockParamUnion, 0, len(run))
		results := make([]anthropic.ContentBlockParamUnion, 0, len(run))
		for _, m := range run {
			args := m.Call.Arguments
			if args == nil {
				args = map[string]any{}
			}
			uses = append(uses, anthropic.NewToolUseBlock(m.ToolCallID(), args, m.ToolName()))
			failed := m.Result != nil && !m.Result.Success
			results = append(results, anthropic.NewToolResultBlock(m.ToolCallID(), m.Content, failed))
		}
		out = append(out,
			anthropic.NewAssistantMessage(uses...),
			anthropic.NewUserMessage(results...),
		)
	})
	return out
}

// anthropicTools renders tool schemas in the Messages API tool shape.
func anthropicTools(tools []schema.ToolSchema) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		inputSchema := t.Parameters
		if inputSchema == nil {
			inputSchema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, map[string]any{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": inputSchema,
		})
	}
	return out
}
