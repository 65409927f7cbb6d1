package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/state"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/ui"
)

// newHistoryCmd creates the history subcommand
func newHistoryCmd(global *globalOptions) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show previous runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, global, limit, asJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show, 0 for all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the runs as JSON")

	return cmd
}

func runHistory(cmd *cobra.Command, global *globalOptions, limit int, asJSON bool) error {
	e, err := newEnv(cmd, global)
	if err != nil {
		return err
	}

	history, err := state.NewStore(e.cfg.StateDir).Load()
	if err != nil {
		return err
	}

	runs := history.Runs
	if limit > 0 && len(runs) > limit {
		runs = runs[len(runs)-limit:]
	}

	if asJSON {
		data, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode history: %w", err)
		}
		printf(e.out, "%s\n", data)
		return nil
	}

	if len(runs) == 0 {
		printf(e.out, "No runs recorded.\n")
		return nil
	}
	printf(e.out, "%s\n", ui.HistoryTable(runs))
	return nil
}
