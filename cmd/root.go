// Package cmd implements the orchestria CLI using cobra.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/orchestria/orchestria/internal/config"
	"github.com/orchestria/orchestria/internal/dependency"
)

const version = "0.1.0"
const logo = "🎻"

var (
	showLogs   bool
	configPath string
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:           "orchestria",
	Short:         logo + " orchestria: run tool-using agents",
	Long:          logo + " orchestria: converse with agents that call local tools, and share them through git repositories",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		setupLogging(showLogs)
		return config.LoadEnv("")
	},
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version

	rootCmd.PersistentFlags().BoolVar(&showLogs, "logs", false, "Show runtime logs")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default <data dir>/config.json)")

	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(toolCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(statusCmd)
}

func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// openContainer loads the config and wires the services. Callers must Close it.
func openContainer() (*dependency.Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return dependency.New(cfg, dependency.DefaultTerminal())
}

// closeContainer closes c, keeping the first error.
func closeContainer(c *dependency.Container, err *error) {
	if cerr := c.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
