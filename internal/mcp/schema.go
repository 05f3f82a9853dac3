package mcp

import (
	"time"

	"github.com/nvandessel/adoptsim/internal/models"
)

// ScorecardInput overrides baseline scorecard dimensions. Unset fields keep
// the server default.
type ScorecardInput struct {
	Complexity    *float64 `json:"complexity,omitempty" jsonschema:"Feature complexity in [0,1]"`
	InitialEffort *float64 `json:"initial_effort,omitempty" jsonschema:"Effort needed before first use in [0,1]"`
	PerceivedRisk *float64 `json:"perceived_risk,omitempty" jsonschema:"Perceived risk of using the feature in [0,1]"`
	TimeToValue   *float64 `json:"time_to_value,omitempty" jsonschema:"Time until the feature pays off in [0,1]"`
}

// SimulateInput defines the input for the adoptsim_simulate tool.
type SimulateInput struct {
	GroupID         string          `json:"group_id" jsonschema:"Persona group to simulate"`
	Scenario        string          `json:"scenario,omitempty" jsonschema:"Scenario preset: baseline, crisis or first-use (default: server setting)"`
	Scorecard       *ScorecardInput `json:"scorecard,omitempty" jsonschema:"Scorecard overrides"`
	NumPersonas     int             `json:"num_personas,omitempty" jsonschema:"Number of personas to simulate (default: server setting)"`
	NumExecutions   int             `json:"num_executions,omitempty" jsonschema:"Trials per persona (default: server setting)"`
	Sigma           *float64        `json:"sigma,omitempty" jsonschema:"Trait noise standard deviation in [0,0.5]"`
	Seed            *uint64         `json:"seed,omitempty" jsonschema:"Fixed seed for a reproducible run"`
	IncludePersonas bool            `json:"include_personas,omitempty" jsonschema:"Include per-persona outcomes (default: false)"`
}

// SimulateOutput defines the output for the adoptsim_simulate tool.
type SimulateOutput struct {
	GroupID              string                  `json:"group_id" jsonschema:"Simulated persona group"`
	Scenario             string                  `json:"scenario" jsonschema:"Scenario preset used"`
	Scorecard            models.ScorecardParams  `json:"scorecard" jsonschema:"Scorecard evaluated"`
	Seed                 uint64                  `json:"seed" jsonschema:"Seed used; pass it back to replay the run"`
	Trials               int                     `json:"trials" jsonschema:"Total persona executions"`
	DidNotTry            float64                 `json:"did_not_try" jsonschema:"Share of trials that never attempted the feature"`
	Failed               float64                 `json:"failed" jsonschema:"Share of trials that attempted and failed"`
	Success              float64                 `json:"success" jsonschema:"Share of trials that succeeded"`
	ExecutionTimeSeconds float64                 `json:"execution_time_seconds" jsonschema:"Wall time of the run"`
	Personas             []models.PersonaOutcome `json:"personas,omitempty" jsonschema:"Per-persona outcomes"`
}

// ExploreInput defines the input for the adoptsim_explore tool.
type ExploreInput struct {
	GroupID         string          `json:"group_id" jsonschema:"Persona group to explore for"`
	FeatureContext  string          `json:"feature_context,omitempty" jsonschema:"Description of the feature passed to the action proposer"`
	Scenario        string          `json:"scenario,omitempty" jsonschema:"Scenario preset: baseline, crisis or first-use (default: server setting)"`
	Baseline        *ScorecardInput `json:"baseline,omitempty" jsonschema:"Baseline scorecard overrides"`
	GoalSuccessRate *float64        `json:"goal_success_rate,omitempty" jsonschema:"Target population success rate in [0,1]"`
	MaxDepth        int             `json:"max_depth,omitempty" jsonschema:"Maximum number of search depths"`
	BeamWidth       int             `json:"beam_width,omitempty" jsonschema:"Frontier nodes kept per depth"`
	NumPersonas     int             `json:"num_personas,omitempty" jsonschema:"Personas per evaluation"`
	NumExecutions   int             `json:"num_executions,omitempty" jsonschema:"Trials per persona per evaluation"`
	Seed            *uint64         `json:"seed,omitempty" jsonschema:"Fixed seed for reproducible evaluations"`
}

// PathStep is one node of a winning path.
type PathStep struct {
	NodeID      string                 `json:"node_id"`
	Depth       int                    `json:"depth"`
	Category    string                 `json:"category,omitempty"`
	Rationale   string                 `json:"rationale,omitempty"`
	Delta       *models.ScorecardDelta `json:"delta,omitempty"`
	Scorecard   models.ScorecardParams `json:"scorecard"`
	SuccessRate float64                `json:"success_rate"`
}

// ExploreOutput defines the output for the adoptsim_explore tool.
type ExploreOutput struct {
	ExplorationID   string     `json:"exploration_id" jsonschema:"ID of the exploration"`
	Status          string     `json:"status" jsonschema:"Terminal status"`
	FailureReason   string     `json:"failure_reason,omitempty" jsonschema:"Why the exploration failed"`
	BestSuccessRate float64    `json:"best_success_rate" jsonschema:"Best success rate found"`
	TotalNodes      int        `json:"total_nodes" jsonschema:"Nodes created"`
	GoalNodeID      string     `json:"goal_node_id,omitempty" jsonschema:"Node that met the goal"`
	WinningPath     []PathStep `json:"winning_path" jsonschema:"Root to best leaf"`

	ProposalFailures  int    `json:"proposal_failures,omitempty" jsonschema:"Frontier nodes whose proposer call failed"`
	LastProposalError string `json:"last_proposal_error,omitempty" jsonschema:"Most recent proposer failure"`
}

// WinningPathInput defines the input for the adoptsim_winning_path tool.
type WinningPathInput struct {
	ExplorationID string `json:"exploration_id" jsonschema:"ID of the exploration"`
}

// WinningPathOutput defines the output for the adoptsim_winning_path tool.
type WinningPathOutput struct {
	ExplorationID string     `json:"exploration_id" jsonschema:"ID of the exploration"`
	Status        string     `json:"status" jsonschema:"Current exploration status"`
	Steps         []PathStep `json:"steps" jsonschema:"Root to best leaf"`
	Improvement   float64    `json:"improvement" jsonschema:"Success rate gain of the leaf over the root"`
}

// ListExplorationsInput defines the input for the adoptsim_list_explorations tool.
type ListExplorationsInput struct {
	Status  string `json:"status,omitempty" jsonschema:"Only list explorations with this status"`
	GroupID string `json:"group_id,omitempty" jsonschema:"Only list explorations for this persona group"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Maximum number of explorations to return (default: 50)"`
}

// ExplorationListItem provides a list view of an exploration.
type ExplorationListItem struct {
	ID              string    `json:"id"`
	GroupID         string    `json:"group_id"`
	Status          string    `json:"status"`
	BestSuccessRate float64   `json:"best_success_rate"`
	TotalNodes      int       `json:"total_nodes"`
	CreatedAt       time.Time `json:"created_at"`
}

// ListExplorationsOutput defines the output for the adoptsim_list_explorations tool.
type ListExplorationsOutput struct {
	Explorations []ExplorationListItem `json:"explorations" jsonschema:"Explorations, newest first"`
	Count        int                   `json:"count" jsonschema:"Number of items"`
}
