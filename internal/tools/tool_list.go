package tools

import (
	"sort"

	"github.com/orchestria/orchestria/internal/schema"
)

// ToolList is the tool set an agent may call during one turn.
type ToolList struct {
	tools map[string]schema.ToolDefinition
}

func NewToolList(defs ...schema.ToolDefinition) *ToolList {
	list := ToolList{tools: make(map[string]schema.ToolDefinition, len(defs))}
	for _, d := range defs {
		list.tools[d.Name] = d
	}
	return &list
}

// Get returns the named tool and whether the agent may call it.
func (r *ToolList) Get(name string) (schema.ToolDefinition, bool) {
	d, ok := r.tools[name]
	return d, ok
}

func (r *ToolList) Len() int { return len(r.tools) }

// Names returns the tool names sorted.
func (r *ToolList) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the tools sorted by name.
func (r *ToolList) Definitions() []schema.ToolDefinition {
	out := make([]schema.ToolDefinition, 0, len(r.tools))
	for _, name := range r.Names() {
		out = append(out, r.tools[name])
	}
	return out
}

// Schemas returns the model-facing description of every tool, sorted by name.
func (r *ToolList) Schemas() []schema.ToolSchema {
	out := make([]schema.ToolSchema, 0, len(r.tools))
	for _, name := range r.Names() {
		out = append(out, r.tools[name].Schema())
	}
	return out
}
