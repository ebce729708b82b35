package providers

import "strings"

// ProviderSpec is the metadata record for one model backend.
type ProviderSpec struct {
	Name        string // value of an agent's "provider" field
	Kind        Kind
	EnvKey      string // env var holding the API key
	EnvBase     string // env var overriding the API base
	DisplayName string // shown in `orchestria status`

	DefaultAPIBase string
	NeedsAPIKey    bool
}

// Label returns the display name, defaulting to Title-cased Name.
func (s ProviderSpec) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return strings.ToTitle(s.Name[:1]) + s.Name[1:]
}

// PROVIDERS is the registry of supported backends.
var PROVIDERS = []ProviderSpec{
	{
		Name:           "ollama",
		Kind:           KindLocal,
		EnvBase:        "OLLAMA_HOST",
		DisplayName:    "Ollama",
		DefaultAPIBase: "http://localhost:11434",
	},
	{
		Name:           "anthropic",
		Kind:           KindHosted,
		EnvKey:         "ANTHROPIC_API_KEY",
		EnvBase:        "ANTHROPIC_BASE_URL",
		DisplayName:    "Anthropic",
		DefaultAPIBase: "https://api.anthropic.com/",
		NeedsAPIKey:    true,
	},
	{
		Name:           "openai",
		Kind:           KindHosted,
		EnvKey:         "OPENAI_API_KEY",
		EnvBase:        "OPENAI_BASE_URL",
		DisplayName:    "OpenAI",
		DefaultAPIBase: "https://api.openai.com/v1",
		NeedsAPIKey:    true,
	},
}

// FindByName returns the ProviderSpec whose Name equals name, ignoring case.
func FindByName(name string) *ProviderSpec {
	name = normalizeName(name)
	for i := range PROVIDERS {
		if PROVIDERS[i].Name == name {
			return &PROVIDERS[i]
		}
	}
	return nil
}
