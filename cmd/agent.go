package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orchestria/orchestria/internal/agent"
	"github.com/orchestria/orchestria/internal/bundle"
	"github.com/orchestria/orchestria/internal/providers"
	"github.com/orchestria/orchestria/internal/registry"
	"github.com/orchestria/orchestria/internal/schema"
	"github.com/orchestria/orchestria/internal/shared/cmdutils"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Create, start and manage agents",
}

var (
	createAgentName        string
	createAgentDescription string
	createAgentModel       string
	createAgentProvider    string
	createAgentPrompt      string
	createAgentTools       []string
	createAgentGenArgs     string
	createAgentSecrets     []string

	agentMessage string
)

var agentCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a local agent",
	Args:  cobra.NoArgs,
	RunE:  runAgentCreate,
}

var agentStartCmd = &cobra.Command{
	Use:   "start [name]",
	Short: "Start a conversation with an agent",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAgentStart,
}

var agentDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete an agent (lists agents when no name is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAgentDelete,
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents",
	Args:  cobra.NoArgs,
	RunE:  runAgentList,
}

func init() {
	f := agentCreateCmd.Flags()
	f.StringVar(&createAgentName, "name", "", "Agent name")
	f.StringVar(&createAgentDescription, "description", "", "What the agent is for")
	f.StringVar(&createAgentModel, "model", "", "Model identifier, e.g. llama3.1")
	f.StringVar(&createAgentProvider, "provider", "", "Model backend: "+strings.Join(providers.Names(), ", "))
	f.StringVar(&createAgentPrompt, "system-prompt", "", "System prompt (text/template over .Agent and .Tools)")
	f.StringSliceVar(&createAgentTools, "supported-tools", nil, "Tool names the agent may call, or *")
	f.StringVar(&createAgentGenArgs, "generation-arguments", "", "Generation parameters as a JSON object")
	f.StringSliceVar(&createAgentSecrets, "secrets", nil, "Environment variables the agent needs")
	for _, name := range []string{"name", "model", "provider"} {
		_ = agentCreateCmd.MarkFlagRequired(name)
	}

	agentStartCmd.Flags().StringVarP(&agentMessage, "message", "m", "", "Send a single message and exit")

	agentCmd.AddCommand(agentCreateCmd)
	agentCmd.AddCommand(agentStartCmd)
	agentCmd.AddCommand(agentDeleteCmd)
	agentCmd.AddCommand(agentListCmd)
}

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

func runAgentCreate(cmd *cobra.Command, _ []string) (err error) {
	def := schema.AgentDefinition{
		Name:           createAgentName,
		Description:    createAgentDescription,
		Model:          createAgentModel,
		Provider:       createAgentProvider,
		SystemPrompt:   createAgentPrompt,
		SupportedTools: createAgentTools,
		Secrets:        createAgentSecrets,
	}
	if createAgentGenArgs != "" {
		if err := json.Unmarshal([]byte(createAgentGenArgs), &def.GenerationArguments); err != nil {
			return &schema.ConfigError{Path: "generation_arguments", Reason: "not a JSON object: " + err.Error()}
		}
	}
	if err := bundle.Validate(&bundle.Bundle{Agents: []schema.AgentDefinition{def}}); err != nil {
		return err
	}

	c, err := openContainer()
	if err != nil {
		return err
	}
	defer closeContainer(c, &err)

	if err := c.Store().CreateAgent(cmd.Context(), def); err != nil {
		return err
	}
	fmt.Printf("✓ Created agent %s\n", def.Name)
	return nil
}

func runAgentStart(_ *cobra.Command, args []string) (err error) {
	c, err := openContainer()
	if err != nil {
		return err
	}
	defer closeContainer(c, &err)

	name, err := pickAgent(c.Store(), args)
	if err != nil {
		return err
	}
	session, err := c.Runtime().NewSession(context.Background(), name)
	if err != nil {
		return err
	}

	if agentMessage != "" {
		return runSingleMessage(session, agentMessage)
	}
	return runInteractive(session)
}

// pickAgent returns the named agent, or the only registered agent.
func pickAgent(store *registry.Store, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	names := store.AgentNames()
	switch len(names) {
	case 0:
		return "", errors.New("no agents registered: use `agent create` or `fetch`")
	case 1:
		return names[0], nil
	default:
		return "", fmt.Errorf("several agents registered, name one of: %s", strings.Join(names, ", "))
	}
}

// runSingleMessage sends one message to the agent and prints the response.
func runSingleMessage(session *agent.Session, message string) error {
	fmt.Fprintf(os.Stderr, "  ↳ thinking...\n")
	text, err := sendTurn(session, message)
	if errors.Is(err, schema.ErrCancelled) {
		fmt.Fprintln(os.Stderr, "Turn cancelled.")
		return nil
	}
	if err != nil {
		return err
	}
	cmdutils.PrintResponse(session.Agent().Name, text)
	return nil
}

// runInteractive starts the REPL loop: reads lines from stdin and sends each
// to the agent, waiting for the reply before prompting again.
func runInteractive(session *agent.Session) error {
	fmt.Printf("%s Talking to %s (type 'exit' to quit, '/tools' to list tools, Ctrl+C cancels a turn)\n\n", logo, session.Agent().Name)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")

		if !scanner.Scan() {
			fmt.Println("\nGoodbye!")
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if exitCommands[strings.ToLower(line)] {
			fmt.Println("Goodbye!")
			return nil
		}
		if line == "/tools" {
			printTools(session)
			continue
		}

		text, err := sendTurn(session, line)
		switch {
		case errors.Is(err, schema.ErrCancelled):
			fmt.Fprintln(os.Stderr, "\nTurn cancelled.")
		case err != nil:
			fmt.Fprintln(os.Stderr, "Error:", err)
		default:
			cmdutils.PrintResponse(session.Agent().Name, text)
		}
	}
}

// sendTurn runs one turn. SIGINT and SIGTERM cancel the turn, which kills
// any running tool processes, instead of the CLI.
func sendTurn(session *agent.Session, input string) (string, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return session.Send(ctx, input, cmdutils.PrintProgress)
}

func printTools(session *agent.Session) {
	names := session.Tools().Names()
	if len(names) == 0 {
		fmt.Println("(no tools)")
		return
	}
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}
}

func runAgentDelete(cmd *cobra.Command, args []string) (err error) {
	if len(args) == 0 {
		return runAgentList(cmd, nil)
	}

	c, err := openContainer()
	if err != nil {
		return err
	}
	defer closeContainer(c, &err)

	removed, err := c.Store().DeleteAgent(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printRemoved(removed)
	return nil
}

func runAgentList(_ *cobra.Command, _ []string) (err error) {
	c, err := openContainer()
	if err != nil {
		return err
	}
	defer closeContainer(c, &err)

	agents := c.Store().Agents()
	if len(agents) == 0 {
		fmt.Println("No agents registered.")
		return nil
	}
	rows := make([][]string, 0, len(agents))
	for _, a := range agents {
		rows = append(rows, []string{a.Name, a.Provider, a.Model, a.Provenance.String(), a.Description})
	}
	cmdutils.PrintTable(os.Stdout, []string{"NAME", "PROVIDER", "MODEL", "SOURCE", "DESCRIPTION"}, rows)
	return nil
}

func printRemoved(removed []registry.EntryRef) {
	for _, ref := range removed {
		fmt.Printf("✓ Deleted %s\n", ref)
	}
}
