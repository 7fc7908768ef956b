package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var suggestJSON bool

var suggestCmd = &cobra.Command{
	Use:   "suggest <project-dir>",
	Short: "Suggest capabilities for a project, without a prompt",
	Long: `Score the catalog against a project's detected stack alone. Nothing is
recorded; this is the read-only, prompt-less entry point.

Examples:
  capmatch suggest .`,
	Args: cobra.ExactArgs(1),
	RunE: runSuggest,
}

func init() {
	suggestCmd.Flags().BoolVar(&suggestJSON, "json", false, "emit JSON instead of text")
}

func runSuggest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	candidates, err := rt.engine.ProjectSuggestions(ctx, args[0])
	if err != nil {
		return err
	}

	if suggestJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(candidates)
	}

	if len(candidates) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No suggestions.")
		return nil
	}
	for _, c := range candidates {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s/%s  %s\n", formatConfidence(c.Confidence), c.Type, c.Slug, c.Name)
	}
	return nil
}
