package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orchestria/orchestria/internal/bundle"
	"github.com/orchestria/orchestria/internal/fetch"
)

var (
	fetchSource string
	fetchRef    string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Register the agents and tools declared by a repository's " + bundle.FileName,
	Args:  cobra.NoArgs,
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchSource, "source", "", "Repository URL or path (default: current directory)")
	fetchCmd.Flags().StringVar(&fetchRef, "ref", fetch.DefaultRef, "Branch, tag or commit to read")
}

func runFetch(cmd *cobra.Command, _ []string) (err error) {
	c, err := openContainer()
	if err != nil {
		return err
	}
	defer closeContainer(c, &err)

	res, err := c.Fetcher().Fetch(cmd.Context(), fetchSource, fetchRef)
	if err != nil {
		return err
	}

	fmt.Printf("%s Fetched %s (%s)\n", logo, res.Provenance, shortCommit(res.Commit))
	for _, ref := range res.Report.Added {
		fmt.Printf("  + %s\n", ref)
	}
	for _, ref := range res.Report.Updated {
		fmt.Printf("  ~ %s\n", ref)
	}
	if len(res.Report.Added)+len(res.Report.Updated) == 0 {
		fmt.Println("  (bundle declares nothing)")
	}
	return nil
}

func shortCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}
