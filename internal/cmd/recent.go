package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	recentLimit int
	recentJSON  bool
)

var recentCmd = &cobra.Command{
	Use:   "recent <session-id>",
	Short: "Show recent recommendations for a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecent,
}

func init() {
	recentCmd.Flags().IntVar(&recentLimit, "limit", 20, "maximum entries to show")
	recentCmd.Flags().BoolVar(&recentJSON, "json", false, "emit JSON instead of text")
}

func runRecent(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	recs, err := rt.store.RecentForSession(ctx, args[0], recentLimit)
	if err != nil {
		return err
	}

	if recentJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(recs)
	}

	if len(recs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No recommendations for this session.")
		return nil
	}
	for _, r := range recs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s/%s  %s\n", formatConfidence(r.Confidence), r.Type, r.Slug, r.ID)
	}
	return nil
}
