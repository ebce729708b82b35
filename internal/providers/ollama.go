package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	ollama "github.com/ollama/ollama/api"

	"github.com/orchestria/orchestria/internal/schema"
)

// OllamaProvider talks to a locally hosted Ollama server through its chat API.
type OllamaProvider struct {
	client *ollama.Client
	model  string
}

func NewOllamaProvider(p Params) (*OllamaProvider, error) {
	base := p.APIBase
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", p.APIBase, err)
	}
	return &OllamaProvider{
		client: ollama.NewClient(u, p.HTTPClient),
		model:  p.Model,
	}, nil
}

func (p *OllamaProvider) Name() string { return "ollama" }

// SendTurn implements schema.Provider. Generation arguments are passed
// through as Ollama model options, see ollamaOptions.
func (p *OllamaProvider) SendTurn(
	ctx context.Context,
	history schema.Messages,
	systemPrompt string,
	params map[string]any,
	tools []schema.ToolSchema,
) (schema.ProviderResponse, error) {
	messages, err := ollamaMessages(history, systemPrompt)
	if err != nil {
		return schema.ProviderResponse{}, providerError(p.Name(), p.model, err)
	}
	wireTools, err := ollamaTools(tools)
	if err != nil {
		return schema.ProviderResponse{}, providerError(p.Name(), p.model, err)
	}

	stream := false
	req := &ollama.ChatRequest{
		Model:    p.model,
		Messages: messages,
		Tools:    wireTools,
		Options:  ollamaOptions(params),
		Stream:   &stream,
	}

	var (
		text  strings.Builder
		calls []schema.ToolCallRequest
	)
	err = p.client.Chat(ctx, req, func(cr ollama.ChatResponse) error {
		text.WriteString(cr.Message.Content)
		got, err := ollamaToolCalls(cr.Message)
		if err != nil {
			return err
		}
		calls = append(calls, got...)
		return nil
	})
	if err != nil {
		return schema.ProviderResponse{}, providerError(p.Name(), p.model, err)
	}
	return response(text.String(), calls), nil
}

// ollamaMessages renders history in the chat wire shape and decodes it into
// the client's types. A run of tool results becomes the assistant message that
// requested them followed by one "tool" message per result.
func ollamaMessages(history schema.Messages, systemPrompt string) ([]ollama.Message, error) {
	wire := make([]map[string]any, 0, history.Len()+1)
	if systemPrompt != "" {
		wire = append(wire, map[string]any{"role": "system", "content": systemPrompt})
	}
	history.Walk(func(msg *schema.Message, run schema.ToolRun) {
		if msg != nil {
			wire = append(wire, map[string]any{"role": msg.Role, "content": msg.Content})
			return
		}
		calls := make([]map[string]any, 0, len(run))
		for _, c := range run.Calls() {
			args := c.Arguments
			if args == nil {
				args = map[string]any{}
			}
			calls = append(calls, map[string]any{
				"id":       c.ID,
				"function": map[string]any{"name": c.Name, "arguments": args},
			})
		}
		wire = append(wire, map[string]any{"role": "assistant", "content": "", "tool_calls": calls})
		for _, m := range run {
			wire = append(wire, map[string]any{
				"role":         "tool",
				"content":      m.Content,
				"tool_name":    m.ToolName(),
				"tool_call_id": m.ToolCallID(),
			})
		}
	})

	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}
	var out []ollama.Message
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}
	return out, nil
}

// ollamaOptionNames maps generation argument names onto Ollama option names
// where the two differ.
var ollamaOptionNames = map[string]string{
	"max_tokens":     "num_predict",
	"stop_sequences": "stop",
}

func ollamaOptions(params map[string]any) map[string]any {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]any, len(params))
	for key, value := range params {
		if name, ok := ollamaOptionNames[key]; ok {
			key = name
		}
		out[key] = value
	}
	return out
}

func ollamaTools(tools []schema.ToolSchema) (ollama.Tools, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	wire := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		wire = append(wire, t.ToWireMap())
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode tools: %w", err)
	}
	var out ollama.Tools
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("encode tools: %w", err)
	}
	return out, nil
}

// ollamaToolCall is the part of a returned tool call the adapter reads.
type ollamaToolCall struct {
	ID       string `json:"id"`
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

func ollamaToolCalls(msg ollama.Message) ([]schema.ToolCallRequest, error) {
	if len(msg.ToolCalls) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return nil, fmt.Errorf("decode tool calls: %w", err)
	}
	var raw []ollamaToolCall
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode tool calls: %w", err)
	}
	out := make([]schema.ToolCallRequest, 0, len(raw))
	for _, tc := range raw {
		id := tc.ID
		if id == "" {
			id = newCallID()
		}
		args := tc.Function.Arguments
		if args == nil {
			args = map[string]any{}
		}
		out = append(out, schema.ToolCallRequest{ID: id, Name: tc.Function.Name, Arguments: args})
	}
	return out, nil
}
