package providers

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/orchestria/orchestria/internal/schema"
)

const (
	defaultMaxTokens = 1024
	defaultTimeout   = 300 * time.Second
)

// Params are the raw values needed to construct any schema.Provider.
// Extracted from config.Config by the caller to avoid an import cycle.
type Params struct {
	ProviderName string // registry name, e.g. "ollama", "anthropic"
	Model        string
	APIKey       string
	APIBase      string
	MaxTokens    int // hosted APIs only
	HTTPClient   *http.Client
}

// Connection holds the configured endpoint and key of one backend.
type Connection struct {
	APIKey  string
	APIBase string
}

// New creates the schema.Provider for p. Empty keys and bases fall back to
// the provider's environment variables, then to its defaults.
func New(p Params) (schema.Provider, error) {
	spec := FindByName(p.ProviderName)
	if spec == nil {
		return nil, &schema.ConfigError{
			Path:   "provider",
			Reason: fmt.Sprintf("unknown provider %q (supported: %s)", p.ProviderName, strings.Join(Names(), ", ")),
		}
	}
	if p.Model == "" {
		return nil, &schema.ConfigError{Path: "model", Reason: "model is required"}
	}
	if p.APIKey == "" && spec.EnvKey != "" {
		p.APIKey = os.Getenv(spec.EnvKey)
	}
	if p.APIBase == "" && spec.EnvBase != "" {
		p.APIBase = os.Getenv(spec.EnvBase)
	}
	if p.APIBase == "" {
		p.APIBase = spec.DefaultAPIBase
	}
	if spec.NeedsAPIKey && p.APIKey == "" {
		return nil, fmt.Errorf("provider %s: no API key (set %s or providers.%s.apiKey)", spec.Name, spec.EnvKey, spec.Name)
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = defaultMaxTokens
	}
	if p.HTTPClient == nil {
		p.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}

	switch spec.Name {
	case "ollama":
		return NewOllamaProvider(p)
	case "anthropic":
		return NewAnthropicProvider(p), nil
	default:
		return NewOpenAIProvider(p), nil
	}
}

// Factory builds the provider an agent asks for from configured connections.
type Factory struct {
	Connections map[string]Connection // keyed by provider name
	MaxTokens   int
	HTTPClient  *http.Client
}

// ForAgent returns a provider bound to the agent's backend and model.
func (f *Factory) ForAgent(agent schema.AgentDefinition) (schema.Provider, error) {
	conn := f.Connections[normalizeName(agent.Provider)]
	return New(Params{
		ProviderName: agent.Provider,
		Model:        agent.Model,
		APIKey:       conn.APIKey,
		APIBase:      conn.APIBase,
		MaxTokens:    f.MaxTokens,
		HTTPClient:   f.HTTPClient,
	})
}
