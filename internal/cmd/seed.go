package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/runger/capmatch/internal/catalog"
)

var seedCmd = &cobra.Command{
	Use:   "seed <catalog.yaml>",
	Short: "Load capability entries into the catalog",
	Long: `Load capability entries from a YAML file into the catalog. Existing
entries with the same type and item id are replaced.

The file is a list of entries:

  - item_id: test-runner
    type: skill
    slug: test-runner
    name: Test Runner
    terms: [tests, test, failing, coverage]
    tags: [go, node]`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}

	var entries []catalog.Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse catalog file %s: %w", args[0], err)
	}

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	for i, e := range entries {
		if err := rt.catalog.Upsert(ctx, e); err != nil {
			return fmt.Errorf("entry %d (%s/%s): %w", i, e.Type, e.ItemID, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d entries\n", len(entries))
	return nil
}
