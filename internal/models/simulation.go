package models

import (
	"fmt"
	"math"

	"github.com/nvandessel/adoptsim/internal/constants"
)

// SimulationConfig controls one Simulation Engine run.
type SimulationConfig struct {
	NumPersonas   int     `json:"num_personas" yaml:"num_personas"`
	NumExecutions int     `json:"num_executions" yaml:"num_executions"`
	Sigma         float64 `json:"sigma" yaml:"sigma"`

	// Seed fixes the random stream. When nil the engine picks one and
	// reports it in the result.
	Seed *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Validate checks the config, returning a *ConfigError on the first problem.
func (c SimulationConfig) Validate() error {
	if c.NumPersonas < 1 {
		return &ConfigError{Field: "num_personas", Reason: fmt.Sprintf("must be >= 1, got %d", c.NumPersonas)}
	}
	if c.NumExecutions < 1 {
		return &ConfigError{Field: "num_executions", Reason: fmt.Sprintf("must be >= 1, got %d", c.NumExecutions)}
	}
	if math.IsNaN(c.Sigma) || c.Sigma < 0 || c.Sigma > constants.MaxSigma {
		return &ConfigError{Field: "sigma", Reason: fmt.Sprintf("must be in [0,%g], got %g", constants.MaxSigma, c.Sigma)}
	}
	return nil
}

// WithSeed returns a copy of c with the seed fixed.
func (c SimulationConfig) WithSeed(seed uint64) SimulationConfig {
	c.Seed = &seed
	return c
}

// PersonaOutcome holds the outcome rates for one persona. The three rates sum to 1.
type PersonaOutcome struct {
	PersonaID     string  `json:"persona_id,omitempty"`
	DidNotTryRate float64 `json:"did_not_try_rate"`
	FailedRate    float64 `json:"failed_rate"`
	SuccessRate   float64 `json:"success_rate"`
}

// Sum returns the total of the three rates.
func (o PersonaOutcome) Sum() float64 {
	return o.DidNotTryRate + o.FailedRate + o.SuccessRate
}

// SimulationResult is the population aggregate of one run.
type SimulationResult struct {
	DidNotTry            float64 `json:"did_not_try"`
	Failed               float64 `json:"failed"`
	Success              float64 `json:"success"`
	ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
}
