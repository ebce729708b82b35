package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/orchestria/orchestria/internal/schema"
)

// newCallID names a tool call for backends that do not assign ids.
func newCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func providerError(name, model string, err error) error {
	return &schema.ProviderError{Provider: name, Model: model, Err: err}
}

// repairJSON attempts to unmarshal JSON, retrying after stripping trailing
// garbage characters. This handles some LLMs that emit truncated tool arguments.
func repairJSON(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, nil
	}

	// Attempt 1: trim trailing non-JSON characters.
	stripped := strings.TrimRight(raw, " \t\n\r}]")
	if !strings.HasSuffix(stripped, "}") {
		stripped += "}"
	}
	if err := json.Unmarshal([]byte(stripped), &out); err == nil {
		return out, nil
	}

	// Attempt 2: find the last complete JSON object.
	if i := strings.LastIndex(raw, "}"); i >= 0 {
		if err := json.Unmarshal([]byte(raw[:i+1]), &out); err == nil {
			return out, nil
		}
	}

	return map[string]any{}, fmt.Errorf("cannot repair JSON: %s", raw)
}

// argumentsJSON renders call arguments the way they are echoed back to a
// backend in history.
func argumentsJSON(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// floatParam reads a numeric generation argument.
func floatParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func intParam(params map[string]any, key string) (int, bool) {
	f, ok := floatParam(params, key)
	return int(f), ok
}

func stringsParam(params map[string]any, key string) ([]string, bool) {
	switch v := params[key].(type) {
	case string:
		return []string{v}, true
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out, true
	}
	return nil, false
}

// response builds the normalised answer from text and calls.
func response(text string, calls []schema.ToolCallRequest) schema.ProviderResponse {
	if len(calls) == 0 {
		return schema.FinalText(text)
	}
	resp := schema.ToolCalls(calls...)
	resp.Text = text
	return resp
}

var errEmptyChoices = errors.New("empty choices in response")
