package cmdutils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

const logo = "🎻"

// PrintResponse prints an agent's answer under its name.
func PrintResponse(agent, text string) {
	if text == "" {
		return
	}
	fmt.Printf("\n%s %s\n%s\n\n", logo, agent, text)
}

// PrintProgress prints an in-turn update (commentary, tool hints) to stderr.
func PrintProgress(text string) {
	fmt.Fprintf(os.Stderr, "  ↳ %s\n", text)
}

// PrintTable prints rows as left-aligned columns.
func PrintTable(w io.Writer, header []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}
