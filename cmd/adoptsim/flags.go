package main

import (
	"github.com/spf13/cobra"

	"github.com/nvandessel/adoptsim/internal/config"
	"github.com/nvandessel/adoptsim/internal/models"
)

// addSimulationFlags registers flags that override the simulation section of the config.
func addSimulationFlags(cmd *cobra.Command) {
	cmd.Flags().String("scenario", "", "Scenario preset: baseline, crisis or first-use")
	cmd.Flags().Int("personas", 0, "Number of personas to simulate")
	cmd.Flags().Int("executions", 0, "Trials per persona")
	cmd.Flags().Float64("sigma", 0, "Trait noise standard deviation")
	cmd.Flags().Uint64("seed", 0, "Fixed seed for a reproducible run")
	cmd.Flags().String("population", "", "YAML persona population file")
}

// applySimulationFlags copies explicitly set simulation flags onto cfg.
func applySimulationFlags(cmd *cobra.Command, cfg *config.SimulationConfig) {
	flags := cmd.Flags()
	if flags.Changed("scenario") {
		cfg.Scenario, _ = flags.GetString("scenario")
	}
	if flags.Changed("personas") {
		cfg.NumPersonas, _ = flags.GetInt("personas")
	}
	if flags.Changed("executions") {
		cfg.NumExecutions, _ = flags.GetInt("executions")
	}
	if flags.Changed("sigma") {
		cfg.Sigma, _ = flags.GetFloat64("sigma")
	}
	if flags.Changed("seed") {
		seed, _ := flags.GetUint64("seed")
		cfg.Seed = &seed
	}
	if flags.Changed("population") {
		cfg.PopulationFile, _ = flags.GetString("population")
	}
}

// addScorecardFlags registers one flag per scorecard dimension.
func addScorecardFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("complexity", 0.5, "Feature complexity in [0,1]")
	cmd.Flags().Float64("effort", 0.5, "Initial effort in [0,1]")
	cmd.Flags().Float64("risk", 0.5, "Perceived risk in [0,1]")
	cmd.Flags().Float64("time-to-value", 0.5, "Time to value in [0,1]")
}

func scorecardFromFlags(cmd *cobra.Command) models.ScorecardParams {
	flags := cmd.Flags()
	var p models.ScorecardParams
	p.Complexity, _ = flags.GetFloat64("complexity")
	p.InitialEffort, _ = flags.GetFloat64("effort")
	p.PerceivedRisk, _ = flags.GetFloat64("risk")
	p.TimeToValue, _ = flags.GetFloat64("time-to-value")
	return p
}
