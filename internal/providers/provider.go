// Package providers adapts model backends to schema.Provider.
//
// Each adapter owns the translation between the uniform history
// (user, tool-result and assistant messages) and its backend's native
// tool-calling representation. Implementations live in ollama.go,
// anthropic.go and openai.go.
package providers

import "strings"

// Kind is the closed set of provider variants.
type Kind string

const (
	KindLocal  Kind = "local-inference"
	KindHosted Kind = "hosted-api"
)

// KindOf returns the variant of a provider name, or "" if it is unknown.
func KindOf(name string) Kind {
	if spec := FindByName(name); spec != nil {
		return spec.Kind
	}
	return ""
}

// Names returns every supported provider name in registry order.
func Names() []string {
	out := make([]string, 0, len(PROVIDERS))
	for _, s := range PROVIDERS {
		out = append(out, s.Name)
	}
	return out
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
