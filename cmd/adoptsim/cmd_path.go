package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nvandessel/adoptsim/internal/explore"
)

func newPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path <exploration-id>",
		Short: "Show the winning path of an exploration",
		Long: `Print the nodes from the baseline to the best evaluated leaf, with the
scorecard change each step applied.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			st, err := openCmdStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			exp, err := st.GetExploration(ctx, args[0])
			if err != nil {
				return err
			}
			path, err := explore.WinningPath(ctx, st, exp.ID)
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"exploration_id": exp.ID,
					"status":         exp.Status,
					"winning_path":   path,
				})
			}
			printExploration(cmd.OutOrStdout(), exp)
			printPath(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
