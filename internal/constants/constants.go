// Package constants provides named constants used throughout the adoptsim codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

import "time"

// Range limits for model inputs.
const (
	// MinScenarioModifier and MaxScenarioModifier bound the motivation, trust
	// and friction modifiers of a scenario.
	MinScenarioModifier = -0.3
	MaxScenarioModifier = 0.3

	// MaxSigma is the largest noise standard deviation a simulation accepts.
	MaxSigma = 0.5

	// OutcomeTolerance is the allowed drift when checking that outcome rates sum to 1.
	OutcomeTolerance = 1e-6
)

// Simulation defaults
const (
	// DefaultNumPersonas is the population size used when none is configured.
	DefaultNumPersonas = 50

	// DefaultNumExecutions is the number of trials run per persona.
	DefaultNumExecutions = 200

	// DefaultSigma is the default trait noise standard deviation.
	DefaultSigma = 0.05
)

// Exploration defaults
const (
	// DefaultGoalSuccessRate is the default minimum success rate an exploration aims for.
	DefaultGoalSuccessRate = 0.70

	// DefaultMaxDepth is the default number of search depths.
	DefaultMaxDepth = 3

	// DefaultBeamWidth is the default number of frontier nodes kept per depth.
	DefaultBeamWidth = 2

	// DefaultProposalTimeout bounds a single Action Proposer call.
	DefaultProposalTimeout = 30 * time.Second

	// DefaultEvaluationTimeout bounds a single node simulation.
	DefaultEvaluationTimeout = 60 * time.Second

	// DefaultEvaluationCacheSize is the number of scorecards cached per run.
	DefaultEvaluationCacheSize = 256
)

// Heuristic proposer tuning
const (
	// HeuristicStep is the amount the rule-based proposer lowers a scorecard dimension.
	HeuristicStep = 0.15
)

// Sanitization limits
const (
	// MaxRationaleLen is the maximum stored length of a proposal rationale.
	MaxRationaleLen = 500

	// MaxCategoryLen is the maximum stored length of an action category.
	MaxCategoryLen = 40
)

// DataDirName is the per-project directory holding the database, config and logs.
const DataDirName = ".adoptsim"

// BackupDirName is the backup directory inside a data directory.
const BackupDirName = "backups"
