package schema

// WildcardTools in SupportedTools grants an agent every tool registered at
// the time the tool set is resolved.
const WildcardTools = "*"

// AgentDefinition is a named configuration binding a model, a provider,
// a prompt and an authorized tool set.
type AgentDefinition struct {
	Name        string `json:"name" yaml:"name" jsonschema:"minLength=1"`
	Description string `json:"description" yaml:"description"`
	Model       string `json:"model" yaml:"model" jsonschema:"minLength=1"`
	// Provider selects the backend, e.g. "ollama" or "anthropic".
	Provider string `json:"provider" yaml:"provider" jsonschema:"minLength=1"`
	// SystemPrompt is rendered as a text/template with .Agent and .Tools.
	SystemPrompt        string         `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	GenerationArguments map[string]any `json:"generation_arguments,omitempty" yaml:"generation_arguments,omitempty"`
	// SupportedTools lists tool names, or the single entry "*".
	SupportedTools []string `json:"supported_tools,omitempty" yaml:"supported_tools,omitempty"`
	// Secrets are environment variable names that must be set before a session starts.
	Secrets []string `json:"secrets,omitempty" yaml:"secrets,omitempty"`

	Provenance Provenance `json:"-" yaml:"-"`
}

// SupportsAllTools reports whether the agent uses the wildcard tool set.
func (a AgentDefinition) SupportsAllTools() bool {
	for _, t := range a.SupportedTools {
		if t == WildcardTools {
			return true
		}
	}
	return false
}
