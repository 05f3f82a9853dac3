package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/adoptsim/internal/logging"
	"github.com/nvandessel/adoptsim/internal/models"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one adoption simulation",
		Long: `Simulate a persona group attempting a feature described by a scorecard.

Reports the share of trials that did not try, tried and failed, and
succeeded. The seed used is always reported so the run can be replayed.

Examples:
  adoptsim simulate --group novices
  adoptsim simulate --group novices --scenario crisis --complexity 0.8 --seed 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			group, _ := cmd.Flags().GetString("group")
			detail, _ := cmd.Flags().GetBool("detail")
			if group == "" {
				return errors.New("--group is required")
			}

			_, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applySimulationFlags(cmd, &cfg.Simulation)
			scenario, err := cfg.Simulation.ScenarioValue()
			if err != nil {
				return err
			}
			card := scorecardFromFlags(cmd)

			logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
			personas, err := openPersonas(cfg.Simulation)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(context.Background())
			defer cancel()

			population, err := personas.GetPopulation(ctx, group)
			if err != nil {
				return fmt.Errorf("persona source: %w", err)
			}
			res, err := newEngine(cfg.Simulation, logger).Run(ctx, population, scenario, card, cfg.Simulation.Model())
			if err != nil {
				return err
			}

			if jsonOut {
				out := map[string]any{
					"group_id":   group,
					"scenario":   scenario.Name,
					"scorecard":  card,
					"seed":       res.Seed,
					"trials":     res.Trials,
					"population": res.Population,
				}
				if detail {
					out["personas"] = res.Personas
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Group %s, scenario %s, %d trials (seed %d)\n\n", group, scenario.Name, res.Trials, res.Seed)
			printResult(w, res.Population)
			if detail {
				fmt.Fprintln(w)
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "PERSONA\tDID NOT TRY\tFAILED\tSUCCESS")
				for i, p := range res.Personas {
					id := p.PersonaID
					if id == "" {
						id = fmt.Sprintf("#%d", i)
					}
					fmt.Fprintf(tw, "%s\t%.1f%%\t%.1f%%\t%.1f%%\n", id, p.DidNotTryRate*100, p.FailedRate*100, p.SuccessRate*100)
				}
				tw.Flush()
			}
			return nil
		},
	}

	cmd.Flags().String("group", "", "Persona group to simulate (required)")
	cmd.Flags().Bool("detail", false, "Show per-persona outcomes")
	addSimulationFlags(cmd)
	addScorecardFlags(cmd)

	return cmd
}

func printResult(w io.Writer, r models.SimulationResult) {
	fmt.Fprintf(w, "  success:     %5.1f%%\n", r.Success*100)
	fmt.Fprintf(w, "  failed:      %5.1f%%\n", r.Failed*100)
	fmt.Fprintf(w, "  did not try: %5.1f%%\n", r.DidNotTry*100)
	fmt.Fprintf(w, "  time:        %.3fs\n", r.ExecutionTimeSeconds)
}
