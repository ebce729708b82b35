package agent

import (
	"strings"
	"text/template"

	"github.com/orchestria/orchestria/internal/schema"
)

// promptData is what a system prompt template can see.
type promptData struct {
	Agent schema.AgentDefinition
	Tools []schema.ToolDefinition
}

var promptFuncs = template.FuncMap{
	"join":  strings.Join,
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

// compilePrompt parses an agent's system prompt template.
func compilePrompt(agent schema.AgentDefinition) (*template.Template, error) {
	if agent.SystemPrompt == "" {
		return nil, nil
	}
	tmpl, err := template.New(agent.Name).Funcs(promptFuncs).Option("missingkey=zero").Parse(agent.SystemPrompt)
	if err != nil {
		return nil, &schema.ConfigError{Path: "system_prompt", Reason: err.Error()}
	}
	return tmpl, nil
}

// renderPrompt renders the system prompt over the tools resolved for this call.
func renderPrompt(tmpl *template.Template, agent schema.AgentDefinition, tools []schema.ToolDefinition) (string, error) {
	if tmpl == nil {
		return "", nil
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, promptData{Agent: agent, Tools: tools}); err != nil {
		return "", &schema.ConfigError{Path: "system_prompt", Reason: err.Error()}
	}
	return strings.TrimSpace(b.String()), nil
}
