package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orchestria/orchestria/internal/config"
	"github.com/orchestria/orchestria/internal/providers"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show orchestria status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) (err error) {
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = config.ConfigPath()
	}

	fmt.Printf("%s orchestria Status\n\n", logo)
	fmt.Printf("Config:    %s %s\n", cfgPath, mark(cfgPath))
	fmt.Printf("Data dir:  %s %s\n", config.DataDir(), mark(config.DataDir()))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}
	fmt.Printf("Registry:  %s %s\n", cfg.RegistryPath(), mark(cfg.RegistryPath()))

	c, err := openContainer()
	if err != nil {
		return err
	}
	defer closeContainer(c, &err)
	fmt.Printf("           %d agents, %d tools\n\n", len(c.Store().AgentNames()), len(c.Store().ToolNames()))

	fmt.Println("Providers:")
	for _, spec := range providers.PROVIDERS {
		p := cfg.ProviderByName(spec.Name)
		if p == nil {
			continue
		}
		apiKey, apiBase := p.APIKey, p.APIBase
		if apiKey == "" && spec.EnvKey != "" {
			apiKey = os.Getenv(spec.EnvKey)
		}
		if apiBase == "" && spec.EnvBase != "" {
			apiBase = os.Getenv(spec.EnvBase)
		}
		label := spec.Label()
		switch {
		case !spec.NeedsAPIKey:
			if apiBase == "" {
				apiBase = spec.DefaultAPIBase
			}
			fmt.Printf("  %-20s ✓ %s\n", label, apiBase)
		case apiKey != "":
			fmt.Printf("  %-20s ✓\n", label)
		default:
			fmt.Printf("  %-20s (not set: %s)\n", label, spec.EnvKey)
		}
	}
	return nil
}

func mark(path string) string {
	if _, err := os.Stat(path); err == nil {
		return "✓"
	}
	return "✗"
}
