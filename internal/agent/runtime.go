package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/orchestria/orchestria/internal/schema"
)

const (
	defaultMaxIterations    = 10
	defaultMaxParallelTools = 4
)

// ToolResolver looks up agents and the tools they may call.
// *registry.Store implements it.
type ToolResolver interface {
	Agent(name string) (schema.AgentDefinition, error)
	ResolveTools(agent schema.AgentDefinition) ([]schema.ToolDefinition, []string)
}

// ToolRunner runs one tool call. *tools.Invoker implements it.
type ToolRunner interface {
	Invoke(ctx context.Context, def schema.ToolDefinition, args map[string]any) schema.ToolCallResult
}

// ProviderFactory builds the model backend an agent asks for.
// *providers.Factory implements it.
type ProviderFactory interface {
	ForAgent(agent schema.AgentDefinition) (schema.Provider, error)
}

// Settings bounds the work of one turn.
type Settings struct {
	// MaxIterations caps the provider calls made for one user input.
	MaxIterations int
	// MaxParallelTools caps the tool processes run at once for one response.
	MaxParallelTools int
}

// Runtime starts conversation sessions with registered agents.
type Runtime struct {
	store     ToolResolver
	invoker   ToolRunner
	providers ProviderFactory
	settings  Settings
}

func NewRuntime(store ToolResolver, invoker ToolRunner, providers ProviderFactory, settings Settings) *Runtime {
	if settings.MaxIterations <= 0 {
		settings.MaxIterations = defaultMaxIterations
	}
	if settings.MaxParallelTools <= 0 {
		settings.MaxParallelTools = defaultMaxParallelTools
	}
	return &Runtime{store: store, invoker: invoker, providers: providers, settings: settings}
}

// NewSession prepares a conversation with the named agent. The agent's
// secrets must be set in the environment and its prompt must parse.
func (rt *Runtime) NewSession(ctx context.Context, name string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	agent, err := rt.store.Agent(name)
	if err != nil {
		return nil, err
	}
	for _, secret := range agent.Secrets {
		if os.Getenv(secret) == "" {
			return nil, fmt.Errorf("agent %q needs secret %s, which is not set", agent.Name, secret)
		}
	}
	prompt, err := compilePrompt(agent)
	if err != nil {
		return nil, err
	}
	provider, err := rt.providers.ForAgent(agent)
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", agent.Name, err)
	}

	slog.Debug("Session started", "agent", agent.Name, "provider", provider.Name(), "model", agent.Model)
	return &Session{
		rt:       rt,
		agent:    agent,
		provider: provider,
		prompt:   prompt,
		history:  schema.NewMessages(),
	}, nil
}
