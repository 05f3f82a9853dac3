package models

import (
	"time"
)

// ExplorationStatus is the lifecycle state of an exploration.
type ExplorationStatus string

const (
	ExplorationPending         ExplorationStatus = "pending"
	ExplorationRunning         ExplorationStatus = "running"
	ExplorationGoalAchieved    ExplorationStatus = "goal_achieved"
	ExplorationMaxDepthReached ExplorationStatus = "max_depth_reached"
	ExplorationFailed          ExplorationStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s ExplorationStatus) Terminal() bool {
	switch s {
	case ExplorationGoalAchieved, ExplorationMaxDepthReached, ExplorationFailed:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s ExplorationStatus) Valid() bool {
	switch s {
	case ExplorationPending, ExplorationRunning:
		return true
	}
	return s.Terminal()
}

// NodeStatus is the lifecycle state of a scenario node.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeEvaluated NodeStatus = "evaluated"
	NodePruned    NodeStatus = "pruned"
)

// CanTransition reports whether a node may move from s to next.
// Nodes only move forward: pending -> evaluated -> pruned, or pending -> pruned.
func (s NodeStatus) CanTransition(next NodeStatus) bool {
	switch s {
	case NodePending:
		return next == NodeEvaluated || next == NodePruned
	case NodeEvaluated:
		return next == NodePruned
	}
	return false
}

// GoalType identifies the goal metric.
type GoalType string

// GoalMinSuccessRate asks for population success >= Value.
const GoalMinSuccessRate GoalType = "min_success_rate"

// Goal is what an exploration searches for.
type Goal struct {
	Type  GoalType `json:"type" yaml:"type"`
	Value float64  `json:"value" yaml:"value"`
}

// MetBy reports whether a simulation result satisfies the goal.
func (g Goal) MetBy(r *SimulationResult) bool {
	if r == nil {
		return false
	}
	return r.Success >= g.Value
}

// Exploration is a beam search over scorecard variants toward a goal.
type Exploration struct {
	ID      string `json:"id"`
	GroupID string `json:"group_id"`

	// FeatureContext is free-text describing the feature, passed to the proposer.
	FeatureContext string `json:"feature_context,omitempty"`

	Scenario          Scenario         `json:"scenario"`
	BaselineScorecard ScorecardParams  `json:"baseline_scorecard"`
	Simulation        SimulationConfig `json:"simulation"`

	Goal      Goal `json:"goal"`
	MaxDepth  int  `json:"max_depth"`
	BeamWidth int  `json:"beam_width"`

	Status          ExplorationStatus `json:"status"`
	FailureReason   string            `json:"failure_reason,omitempty"`
	CurrentDepth    int               `json:"current_depth"`
	BestSuccessRate float64           `json:"best_success_rate"`
	TotalNodes      int               `json:"total_nodes"`
	GoalNodeID      string            `json:"goal_node_id,omitempty"`

	// ProposalFailures counts frontier nodes whose proposer call failed.
	ProposalFailures  int    `json:"proposal_failures,omitempty"`
	LastProposalError string `json:"last_proposal_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScenarioNode is one evaluated scorecard variant in an exploration tree.
// ParentID is empty only for the root.
type ScenarioNode struct {
	ID            string `json:"id"`
	ExplorationID string `json:"exploration_id"`
	ParentID      string `json:"parent_id,omitempty"`
	Depth         int    `json:"depth"`

	ActionApplied  *ScorecardDelta `json:"action_applied,omitempty"`
	ActionCategory string          `json:"action_category,omitempty"`
	Rationale      string          `json:"rationale,omitempty"`

	ScorecardParams   ScorecardParams   `json:"scorecard_params"`
	SimulationResults *SimulationResult `json:"simulation_results,omitempty"`

	Status NodeStatus `json:"status"`

	// Error records why evaluation failed; such nodes are never expanded.
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IsRoot reports whether the node has no parent.
func (n ScenarioNode) IsRoot() bool {
	return n.ParentID == ""
}

// SuccessRate returns the node's population success, or -1 when unevaluated.
func (n ScenarioNode) SuccessRate() float64 {
	if n.SimulationResults == nil {
		return -1
	}
	return n.SimulationResults.Success
}
