package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runger/capmatch/internal/engine"
)

var (
	recProject string
	recSession string
	recJSON    bool
)

var recommendCmd = &cobra.Command{
	Use:   "recommend <prompt>",
	Short: "Recommend agents and skills for a prompt",
	Long: `Recommend capabilities for a prompt.

The prompt is analyzed for keywords, intents, and technologies, scored
against the catalog, and adjusted for project context and historical
feedback. Results are recorded so later feedback can reference them.

Examples:
  capmatch recommend "fix the failing unit tests"
  capmatch recommend "deploy to kubernetes" --project . --session ci-1`,
	Args: cobra.ExactArgs(1),
	RunE: runRecommend,
}

func init() {
	recommendCmd.Flags().StringVar(&recProject, "project", "", "project directory for context scoring")
	recommendCmd.Flags().StringVar(&recSession, "session", "", "session id for dedup and feedback (default: hostname-pid)")
	recommendCmd.Flags().BoolVar(&recJSON, "json", false, "emit JSON instead of text")
}

func runRecommend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	session := recSession
	if session == "" {
		host, _ := os.Hostname()
		session = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	recs, err := rt.engine.GetRecommendationsForPrompt(ctx, engine.Request{
		Prompt:      args[0],
		SessionID:   session,
		ProjectPath: recProject,
	})
	if err != nil {
		return err
	}

	if recJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(recs)
	}

	if len(recs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No recommendations.")
		return nil
	}
	for _, r := range recs {
		line := fmt.Sprintf("%s  %s/%s  %s", formatConfidence(r.Confidence), r.Type, r.Slug, r.ID)
		if len(r.MatchedKeywords) > 0 {
			line += "  [" + strings.Join(r.MatchedKeywords, " ") + "]"
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}
