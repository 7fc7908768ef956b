package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/runger/capmatch/internal/store"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show recommendation statistics",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "emit JSON instead of text")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	stats, err := rt.engine.Stats(ctx)
	if err != nil {
		return err
	}

	if statsJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Recommendations: %d\n", stats.TotalRecommendations)
	fmt.Fprintf(out, "Acceptance rate: %.1f%%\n", stats.AcceptanceRate*100)

	actions := make([]store.Action, 0, len(stats.ActionCounts))
	for a := range stats.ActionCounts {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	for _, a := range actions {
		fmt.Fprintf(out, "  %-10s %d\n", a, stats.ActionCounts[a])
	}
	return nil
}
