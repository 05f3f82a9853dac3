package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nvandessel/adoptsim/internal/models"
)

func newExploreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Search for scorecard changes that reach an adoption goal",
		Long: `Run a beam search from a baseline scorecard. At each depth the action
proposer suggests design changes for the best nodes so far; each change is
simulated and the best are kept. The search stops when a node reaches the
goal, at the maximum depth, or when no usable proposals remain.

Examples:
  adoptsim explore --group novices --goal 0.7
  adoptsim explore --group novices --context "CSV bulk import" --max-depth 4 --beam 3 --seed 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			group, _ := cmd.Flags().GetString("group")
			featureContext, _ := cmd.Flags().GetString("context")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			if group == "" {
				return errors.New("--group is required")
			}

			root, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applySimulationFlags(cmd, &cfg.Simulation)
			flags := cmd.Flags()
			if flags.Changed("goal") {
				cfg.Exploration.GoalSuccessRate, _ = flags.GetFloat64("goal")
			}
			if flags.Changed("max-depth") {
				cfg.Exploration.MaxDepth, _ = flags.GetInt("max-depth")
			}
			if flags.Changed("beam") {
				cfg.Exploration.BeamWidth, _ = flags.GetInt("beam")
			}
			if flags.Changed("workers") {
				cfg.Exploration.Workers, _ = flags.GetInt("workers")
			}

			a, err := openApp(root, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.params(group)
			if err != nil {
				return err
			}
			p.FeatureContext = featureContext
			p.Baseline = scorecardFromFlags(cmd)

			ctx, cancel := signalContext(context.Background())
			defer cancel()
			if timeout > 0 {
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			if metricsAddr != "" {
				stop, err := serveMetrics(a, metricsAddr)
				if err != nil {
					return err
				}
				defer stop()
			}

			exp, err := a.driver.Create(ctx, p)
			if err != nil {
				return err
			}
			if !jsonOut {
				fmt.Fprintf(cmd.OutOrStdout(), "Exploration %s (group %s, goal %.0f%%, depth %d, beam %d)\n",
					exp.ID, exp.GroupID, exp.Goal.Value*100, exp.MaxDepth, exp.BeamWidth)
			}

			final, runErr := a.driver.Run(ctx, exp.ID)
			if final == nil {
				return runErr
			}
			path, err := a.driver.WinningPath(context.WithoutCancel(ctx), final.ID)
			if err != nil {
				return errors.Join(runErr, err)
			}

			if jsonOut {
				if err := writeJSON(cmd.OutOrStdout(), map[string]any{
					"exploration":  final,
					"winning_path": path,
				}); err != nil {
					return err
				}
				return runErr
			}

			printExploration(cmd.OutOrStdout(), final)
			fmt.Fprintln(cmd.OutOrStdout())
			printPath(cmd.OutOrStdout(), path)
			return runErr
		},
	}

	cmd.Flags().String("group", "", "Persona group to explore for (required)")
	cmd.Flags().String("context", "", "Feature description passed to the action proposer")
	cmd.Flags().Float64("goal", 0, "Target population success rate in [0,1]")
	cmd.Flags().Int("max-depth", 0, "Maximum number of search depths")
	cmd.Flags().Int("beam", 0, "Frontier nodes kept per depth")
	cmd.Flags().Int("workers", 0, "Concurrent proposer calls and evaluations per depth")
	cmd.Flags().Duration("timeout", 0, "Abort the exploration after this long (0 = no limit)")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g. localhost:9464)")
	addSimulationFlags(cmd)
	addScorecardFlags(cmd)

	return cmd
}

// serveMetrics exposes the app's registry on addr until stop is called.
func serveMetrics(a *app, addr string) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics server", "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func printExploration(w io.Writer, exp *models.Exploration) {
	fmt.Fprintf(w, "Status:       %s\n", exp.Status)
	if exp.FailureReason != "" {
		fmt.Fprintf(w, "Reason:       %s\n", exp.FailureReason)
	}
	fmt.Fprintf(w, "Best success: %.1f%% (goal %.1f%%)\n", exp.BestSuccessRate*100, exp.Goal.Value*100)
	fmt.Fprintf(w, "Nodes:        %d (reached depth %d of %d)\n", exp.TotalNodes, exp.CurrentDepth, exp.MaxDepth)
	if exp.GoalNodeID != "" {
		fmt.Fprintf(w, "Goal node:    %s\n", exp.GoalNodeID)
	}
	if exp.ProposalFailures > 0 {
		fmt.Fprintf(w, "Proposals:    %d failed (last: %s)\n", exp.ProposalFailures, exp.LastProposalError)
	}
}

func printPath(w io.Writer, path []models.ScenarioNode) {
	if len(path) == 0 {
		fmt.Fprintln(w, "No nodes.")
		return
	}
	fmt.Fprintln(w, "Winning path:")
	for _, n := range path {
		rate := "unevaluated"
		if n.SimulationResults != nil {
			rate = fmt.Sprintf("%.1f%%", n.SimulationResults.Success*100)
		}
		if n.IsRoot() {
			fmt.Fprintf(w, "  [0] baseline  %s\n", rate)
			continue
		}
		fmt.Fprintf(w, "  [%d] %s  %s\n", n.Depth, valueOrDefault(n.ActionCategory, "action"), rate)
		if n.ActionApplied != nil {
			d := n.ActionApplied
			fmt.Fprintf(w, "      delta: complexity %+.2f, effort %+.2f, risk %+.2f, time to value %+.2f\n",
				d.Complexity, d.InitialEffort, d.PerceivedRisk, d.TimeToValue)
		}
		if n.Rationale != "" {
			fmt.Fprintf(w, "      %s\n", n.Rationale)
		}
	}
}
