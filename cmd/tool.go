package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/orchestria/orchestria/internal/bundle"
	"github.com/orchestria/orchestria/internal/schema"
	"github.com/orchestria/orchestria/internal/shared/cmdutils"
)

var toolCmd = &cobra.Command{
	Use:   "tool",
	Short: "Create and manage tools",
}

var (
	createToolName        string
	createToolDescription string
	createToolEntrypoint  string
	createToolSchema      string
	createToolDir         string
	createToolSecrets     []string
)

var toolCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a local process tool",
	Args:  cobra.NoArgs,
	RunE:  runToolCreate,
}

var toolDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a tool (lists tools when no name is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runToolDelete,
}

var toolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tools",
	Args:  cobra.NoArgs,
	RunE:  runToolList,
}

func init() {
	f := toolCreateCmd.Flags()
	f.StringVar(&createToolName, "name", "", "Tool name")
	f.StringVar(&createToolDescription, "description", "", "What the tool does, shown to the model")
	f.StringVar(&createToolEntrypoint, "entrypoint", "", "Executable reading JSON on stdin and writing one JSON object on stdout")
	f.StringVar(&createToolSchema, "inputs-schema", "", "JSON-schema of the tool arguments")
	f.StringVar(&createToolDir, "dir", "", "Working directory of the tool (default: current directory)")
	f.StringSliceVar(&createToolSecrets, "secrets", nil, "Environment variables the tool needs")
	for _, name := range []string{"name", "entrypoint", "inputs-schema"} {
		_ = toolCreateCmd.MarkFlagRequired(name)
	}

	toolCmd.AddCommand(toolCreateCmd)
	toolCmd.AddCommand(toolDeleteCmd)
	toolCmd.AddCommand(toolListCmd)
}

func runToolCreate(cmd *cobra.Command, _ []string) (err error) {
	def := schema.ToolDefinition{
		Name:        createToolName,
		Description: createToolDescription,
		Language:    schema.LanguageProcess,
		Entrypoint:  createToolEntrypoint,
		Secrets:     createToolSecrets,
	}
	if err := json.Unmarshal([]byte(createToolSchema), &def.InputsSchema); err != nil || def.InputsSchema == nil {
		return &schema.ConfigError{Path: "inputs_schema", Reason: "not a JSON object"}
	}
	if err := bundle.Validate(&bundle.Bundle{Tools: []schema.ToolDefinition{def}}); err != nil {
		return err
	}

	dir := createToolDir
	if dir == "" {
		dir = "."
	}
	if def.Dir, err = filepath.Abs(dir); err != nil {
		return fmt.Errorf("resolve tool dir: %w", err)
	}

	c, err := openContainer()
	if err != nil {
		return err
	}
	defer closeContainer(c, &err)

	if err := c.Store().CreateTool(cmd.Context(), def); err != nil {
		return err
	}
	fmt.Printf("✓ Created tool %s\n", def.Name)
	return nil
}

func runToolDelete(cmd *cobra.Command, args []string) (err error) {
	if len(args) == 0 {
		return runToolList(cmd, nil)
	}

	c, err := openContainer()
	if err != nil {
		return err
	}
	defer closeContainer(c, &err)

	removed, err := c.Store().DeleteTool(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printRemoved(removed)
	return nil
}

func runToolList(_ *cobra.Command, _ []string) (err error) {
	c, err := openContainer()
	if err != nil {
		return err
	}
	defer closeContainer(c, &err)

	tools := c.Store().Tools()
	if len(tools) == 0 {
		fmt.Println("No tools registered.")
		return nil
	}
	rows := make([][]string, 0, len(tools))
	for _, t := range tools {
		rows = append(rows, []string{t.Name, t.Entrypoint, t.Provenance.String(), t.Description})
	}
	cmdutils.PrintTable(os.Stdout, []string{"NAME", "ENTRYPOINT", "SOURCE", "DESCRIPTION"}, rows)
	return nil
}
