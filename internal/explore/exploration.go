package explore

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/adoptsim/internal/constants"
	"github.com/nvandessel/adoptsim/internal/models"
)

// Params describe a new exploration.
type Params struct {
	GroupID        string
	FeatureContext string
	Scenario       models.Scenario
	Baseline       models.ScorecardParams
	Simulation     models.SimulationConfig
	Goal           models.Goal
	MaxDepth       int
	BeamWidth      int
}

// DefaultParams returns params with the default simulation size, goal and
// search shape for groupID.
func DefaultParams(groupID string) Params {
	baseline, _ := models.ScenarioPreset("baseline")
	return Params{
		GroupID:  groupID,
		Scenario: baseline,
		Baseline: models.ScorecardParams{
			Complexity: 0.5, InitialEffort: 0.5, PerceivedRisk: 0.5, TimeToValue: 0.5,
		},
		Simulation: models.SimulationConfig{
			NumPersonas:   constants.DefaultNumPersonas,
			NumExecutions: constants.DefaultNumExecutions,
			Sigma:         constants.DefaultSigma,
		},
		Goal:      models.Goal{Type: models.GoalMinSuccessRate, Value: constants.DefaultGoalSuccessRate},
		MaxDepth:  constants.DefaultMaxDepth,
		BeamWidth: constants.DefaultBeamWidth,
	}
}

// NewExploration validates p and returns a pending exploration with a fresh ID.
func NewExploration(p Params, now time.Time) (models.Exploration, error) {
	if p.Goal.Type == "" {
		p.Goal.Type = models.GoalMinSuccessRate
	}

	exp := models.Exploration{
		ID:                uuid.NewString(),
		GroupID:           p.GroupID,
		FeatureContext:    p.FeatureContext,
		Scenario:          p.Scenario,
		BaselineScorecard: p.Baseline,
		Simulation:        p.Simulation,
		Goal:              p.Goal,
		MaxDepth:          p.MaxDepth,
		BeamWidth:         p.BeamWidth,
		Status:            models.ExplorationPending,
		CreatedAt:         now.UTC(),
		UpdatedAt:         now.UTC(),
	}
	if err := Validate(exp); err != nil {
		return models.Exploration{}, err
	}
	return exp, nil
}

// Validate checks an exploration's parameters, returning a *models.ConfigError
// on the first problem.
func Validate(exp models.Exploration) error {
	if exp.GroupID == "" {
		return &models.ConfigError{Field: "group_id", Reason: "is required"}
	}
	if exp.Goal.Type != models.GoalMinSuccessRate {
		return &models.ConfigError{Field: "goal.type", Reason: fmt.Sprintf("unsupported goal type %q", exp.Goal.Type)}
	}
	if math.IsNaN(exp.Goal.Value) || exp.Goal.Value < 0 || exp.Goal.Value > 1 {
		return &models.ConfigError{Field: "goal.value", Reason: fmt.Sprintf("must be in [0,1], got %g", exp.Goal.Value)}
	}
	if exp.MaxDepth < 1 {
		return &models.ConfigError{Field: "max_depth", Reason: fmt.Sprintf("must be >= 1, got %d", exp.MaxDepth)}
	}
	if exp.BeamWidth < 1 {
		return &models.ConfigError{Field: "beam_width", Reason: fmt.Sprintf("must be >= 1, got %d", exp.BeamWidth)}
	}
	if err := exp.Scenario.Validate(); err != nil {
		return err
	}
	if err := exp.BaselineScorecard.Validate(); err != nil {
		return err
	}
	return exp.Simulation.Validate()
}
