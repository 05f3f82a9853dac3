package main

import (
	"context"
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/adoptsim/internal/models"
	"github.com/nvandessel/adoptsim/internal/store"
)

// openCmdStore opens only the store configured for the command's --root.
func openCmdStore(cmd *cobra.Command) (store.Store, error) {
	root, cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return openStore(root, cfg.Store)
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored explorations",
		Long: `List explorations, newest first.

Examples:
  adoptsim list
  adoptsim list --status goal_achieved --group novices`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			status, _ := cmd.Flags().GetString("status")
			group, _ := cmd.Flags().GetString("group")
			limit, _ := cmd.Flags().GetInt("limit")

			if status != "" && !models.ExplorationStatus(status).Valid() {
				return fmt.Errorf("invalid status %q", status)
			}

			st, err := openCmdStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			all, err := st.ListExplorations(context.Background())
			if err != nil {
				return err
			}
			exps := slices.DeleteFunc(all, func(e models.Exploration) bool {
				return (status != "" && string(e.Status) != status) || (group != "" && e.GroupID != group)
			})
			if limit > 0 && len(exps) > limit {
				exps = exps[:limit]
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"explorations": exps,
					"count":        len(exps),
				})
			}
			if len(exps) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No explorations.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tGROUP\tSTATUS\tBEST\tGOAL\tNODES\tCREATED")
			for _, e := range exps {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f%%\t%.1f%%\t%d\t%s\n",
					e.ID, e.GroupID, e.Status, e.BestSuccessRate*100, e.Goal.Value*100,
					e.TotalNodes, e.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().String("status", "", "Only show explorations with this status")
	cmd.Flags().String("group", "", "Only show explorations for this persona group")
	cmd.Flags().Int("limit", 0, "Maximum number of explorations to show (0 = all)")

	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <exploration-id>",
		Short: "Show an exploration and its nodes",
		Args:  cobra.ExactArgs(1),
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
			nodes, err := st.GetNodesByExploration(ctx, exp.ID)
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"exploration": exp,
					"nodes":       nodes,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Exploration %s\n", exp.ID)
			fmt.Fprintf(out, "Group:        %s\n", exp.GroupID)
			if exp.FeatureContext != "" {
				fmt.Fprintf(out, "Context:      %s\n", exp.FeatureContext)
			}
			fmt.Fprintf(out, "Scenario:     %s\n", valueOrDefault(exp.Scenario.Name, "custom"))
			fmt.Fprintf(out, "Simulation:   %d personas x %d executions, sigma %.2f\n",
				exp.Simulation.NumPersonas, exp.Simulation.NumExecutions, exp.Simulation.Sigma)
			printExploration(out, exp)
			fmt.Fprintln(out)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NODE\tDEPTH\tPARENT\tACTION\tSTATUS\tSUCCESS")
			for _, n := range nodes {
				rate := "-"
				switch {
				case n.Error != "":
					rate = "error"
				case n.SimulationResults != nil:
					rate = fmt.Sprintf("%.1f%%", n.SimulationResults.Success*100)
				}
				action := "baseline"
				if !n.IsRoot() {
					action = valueOrDefault(n.ActionCategory, "action")
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
					n.ID, n.Depth, valueOrDefault(n.ParentID, "-"), action, n.Status, rate)
			}
			return tw.Flush()
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <exploration-id>",
		Short: "Delete an exploration and all of its nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			st, err := openCmdStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.DeleteExploration(context.Background(), args[0]); err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"status": "deleted", "id": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted exploration %s\n", args[0])
			return nil
		},
	}
}
