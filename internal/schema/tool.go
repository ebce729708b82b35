package schema

import "strings"

// LanguageProcess is the only supported tool language: the entrypoint is an
// executable that reads one JSON document on stdin and writes one JSON object
// on stdout.
const LanguageProcess = "process"

// ToolDefinition describes an external executable exposing a JSON-in/JSON-out
// contract plus an input schema.
type ToolDefinition struct {
	Name        string `json:"name" yaml:"name" jsonschema:"minLength=1"`
	Description string `json:"description" yaml:"description"`
	Language    string `json:"language" yaml:"language"`
	// Entrypoint is resolved against Dir when relative.
	Entrypoint   string         `json:"entrypoint" yaml:"entrypoint" jsonschema:"minLength=1"`
	InputsSchema map[string]any `json:"inputs_schema" yaml:"inputs_schema"`
	// Secrets are environment variable names the tool needs; missing ones fail the call.
	Secrets []string `json:"secrets,omitempty" yaml:"secrets,omitempty"`

	// Dir is the working directory of the tool process: the repository
	// checkout for fetched tools, a user-chosen directory for local ones.
	Dir        string     `json:"-" yaml:"-"`
	Provenance Provenance `json:"-" yaml:"-"`
}

// IsProcess reports whether the tool follows the external-process/JSON convention.
func (t ToolDefinition) IsProcess() bool {
	return strings.EqualFold(strings.TrimSpace(t.Language), LanguageProcess)
}

// Schema returns the model-facing description of the tool.
func (t ToolDefinition) Schema() ToolSchema {
	return ToolSchema{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.InputsSchema,
	}
}

// ToolSchema is what a provider sees of a tool.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema of the arguments
}

// ToWireMap serialises a ToolSchema into the OpenAI function-calling shape,
// which the Ollama chat API shares.
func (s ToolSchema) ToWireMap() map[string]any {
	params := s.Parameters
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        s.Name,
			"description": s.Description,
			"parameters":  params,
		},
	}
}
