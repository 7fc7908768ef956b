package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runger/capmatch/internal/store"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <recommendation-id> <action>",
	Short: "Record feedback on a recommendation",
	Long: `Record what happened to a recommendation. Valid actions are accepted,
dismissed, and used. Feedback drives the historical boost: items that
keep getting accepted or used score higher on later runs.

Examples:
  capmatch feedback 5f2b9c1e-... accepted`,
	Args: cobra.ExactArgs(2),
	RunE: runFeedback,
}

func runFeedback(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	action := store.Action(args[1])
	if !store.ValidAction(action) {
		return fmt.Errorf("invalid action: %q (want accepted, dismissed, or used)", args[1])
	}

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.engine.RecordAction(ctx, args[0], action); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s for %s\n", action, args[0])
	return nil
}
