package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/adoptsim/internal/store"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [exploration-id]",
		Short: "Check stored exploration trees for structural problems",
		Long: `Validate that each exploration's nodes form a single rooted tree with
consistent depths. Without an ID every stored exploration is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			st, err := openCmdStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			var ids []string
			if len(args) == 1 {
				if _, err := st.GetExploration(ctx, args[0]); err != nil {
					return err
				}
				ids = []string{args[0]}
			} else {
				exps, err := st.ListExplorations(ctx)
				if err != nil {
					return err
				}
				for _, e := range exps {
					ids = append(ids, e.ID)
				}
			}

			results := make(map[string][]store.ValidationError, len(ids))
			total := 0
			for _, id := range ids {
				errs, err := store.ValidateExploration(ctx, st, id)
				if err != nil {
					return fmt.Errorf("validate %s: %w", id, err)
				}
				if len(errs) > 0 {
					results[id] = errs
					total += len(errs)
				}
			}

			if jsonOut {
				if err := writeJSON(cmd.OutOrStdout(), map[string]any{
					"valid":        total == 0,
					"checked":      len(ids),
					"error_count":  total,
					"explorations": results,
				}); err != nil {
					return err
				}
			} else {
				for _, id := range ids {
					for _, e := range results[id] {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", id, e)
					}
				}
				if total == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Checked %d exploration(s): no problems found.\n", len(ids))
				}
			}
			if total > 0 {
				return fmt.Errorf("validation failed: %d problem(s) in %d exploration(s)", total, len(results))
			}
			return nil
		},
	}
	return cmd
}
