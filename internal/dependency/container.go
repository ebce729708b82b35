// Package dependency wires core orchestria services using go.uber.org/dig.
package dependency

import (
	"fmt"
	"os"

	"go.uber.org/dig"

	"github.com/orchestria/orchestria/internal/agent"
	"github.com/orchestria/orchestria/internal/config"
	"github.com/orchestria/orchestria/internal/fetch"
	"github.com/orchestria/orchestria/internal/providers"
	"github.com/orchestria/orchestria/internal/registry"
	"github.com/orchestria/orchestria/internal/tools"
)

// Container holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	store   *registry.Store
	fetcher *fetch.Fetcher
	invoker *tools.Invoker
	runtime *agent.Runtime
}

func (c *Container) Store() *registry.Store  { return c.store }
func (c *Container) Fetcher() *fetch.Fetcher { return c.fetcher }
func (c *Container) Invoker() *tools.Invoker { return c.invoker }
func (c *Container) Runtime() *agent.Runtime { return c.runtime }

// Close releases the registry database.
func (c *Container) Close() error { return c.store.Close() }

// New builds and wires all core services from cfg. Tools talk to the user
// through terminal.
func New(cfg *config.Config, terminal tools.Terminal) (*Container, error) {
	d := dig.New()

	ctors := []any{
		func() *config.Config { return cfg },
		func() tools.Terminal { return terminal },
		newStore,
		newGitSource,
		newFetcher,
		newInvoker,
		newProviderFactory,
		newRuntime,
	}
	for _, ctor := range ctors {
		if err := d.Provide(ctor); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		store *registry.Store,
		fetcher *fetch.Fetcher,
		invoker *tools.Invoker,
		runtime *agent.Runtime,
	) {
		result = &Container{
			store:   store,
			fetcher: fetcher,
			invoker: invoker,
			runtime: runtime,
		}
	})
	if err != nil {
		return nil, fmt.Errorf("wire services: %w", dig.RootCause(err))
	}
	return result, nil
}

func newStore(cfg *config.Config) (*registry.Store, error) {
	return registry.Open(cfg.RegistryPath())
}

func newGitSource(cfg *config.Config) *fetch.GitSource {
	return &fetch.GitSource{ReposDir: cfg.ReposDir()}
}

func newFetcher(src *fetch.GitSource, store *registry.Store) *fetch.Fetcher {
	return fetch.NewFetcher(src, store)
}

func newInvoker(cfg *config.Config, terminal tools.Terminal) *tools.Invoker {
	return tools.NewInvoker(cfg.Runtime.ToolTimeoutSeconds, terminal)
}

func newProviderFactory(cfg *config.Config) *providers.Factory {
	conns := make(map[string]providers.Connection, len(providers.PROVIDERS))
	for _, spec := range providers.PROVIDERS {
		if p := cfg.ProviderByName(spec.Name); p != nil {
			conns[spec.Name] = providers.Connection{APIKey: p.APIKey, APIBase: p.APIBase}
		}
	}
	return &providers.Factory{Connections: conns, MaxTokens: cfg.Runtime.MaxTokens}
}

func newRuntime(cfg *config.Config, store *registry.Store, invoker *tools.Invoker, factory *providers.Factory) *agent.Runtime {
	return agent.NewRuntime(store, invoker, factory, agent.Settings{
		MaxIterations:    cfg.Runtime.MaxIterations,
		MaxParallelTools: cfg.Runtime.MaxParallelTools,
	})
}

// DefaultTerminal connects tools to the process's own stdin and stderr.
func DefaultTerminal() tools.Terminal {
	return tools.Terminal{In: os.Stdin, Out: os.Stderr}
}
