// Package llm provides Action Proposers: collaborators that, given a scenario
// node in an exploration, suggest scorecard changes likely to improve
// adoption. It supports Anthropic, OpenAI-compatible endpoints, native CLI
// subagents, and a deterministic rule-based heuristic.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/nvandessel/adoptsim/internal/models"
)

// Provider names accepted by NewProposer.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderSubagent  = "subagent"
	ProviderHeuristic = "heuristic"
)

// ProposalContext is the exploration state handed to a proposer alongside
// the node being expanded.
type ProposalContext struct {
	// FeatureContext is free text describing the feature under design.
	FeatureContext string `json:"feature_context,omitempty"`

	Scenario models.Scenario `json:"scenario"`
	Goal     models.Goal     `json:"goal"`

	// Path holds the nodes from the root down to the node being expanded.
	Path []models.ScenarioNode `json:"path,omitempty"`
}

// Proposer suggests candidate actions for a scenario node.
type Proposer interface {
	// Propose returns up to maxProposals actions for node. Returning fewer,
	// or none, is allowed.
	Propose(ctx context.Context, node models.ScenarioNode, pctx ProposalContext, maxProposals int) ([]models.Proposal, error)

	// Available returns true if the proposer is configured and ready.
	// For API-based proposers this checks that credentials are present.
	// For subagent proposers this checks that the CLI tool is available.
	Available() bool
}

// ClientConfig configures a proposer.
type ClientConfig struct {
	// Provider identifies the backend: "anthropic", "openai", "subagent", "heuristic".
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the API key for the provider (not used for subagent or heuristic).
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL overrides the API endpoint, e.g. for OpenAI-compatible servers.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Model is the model identifier to use for requests.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// Timeout is the maximum duration to wait for a response.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// FallbackToRules uses the heuristic proposer when the LLM fails or
	// returns nothing.
	FallbackToRules bool `json:"fallback_to_rules,omitempty" yaml:"fallback_to_rules,omitempty"`

	// RequestsPerMinute paces proposer calls; zero disables pacing.
	RequestsPerMinute float64 `json:"requests_per_minute,omitempty" yaml:"requests_per_minute,omitempty"`

	// Burst is the number of calls allowed back to back before pacing applies.
	Burst int `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// DefaultConfig returns a ClientConfig with sensible defaults.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		Provider:        ProviderHeuristic,
		Timeout:         30 * time.Second,
		FallbackToRules: true,
		Burst:           4,
	}
}

// NewProposer builds the proposer described by cfg, wrapping it with the
// heuristic fallback and rate limiting when configured.
func NewProposer(cfg ClientConfig, logger *slog.Logger) (Proposer, error) {
	var p Proposer
	switch cfg.Provider {
	case ProviderHeuristic, "":
		return NewHeuristicProposer(), nil
	case ProviderAnthropic:
		p = NewAnthropicProposer(cfg)
	case ProviderOpenAI:
		p = NewOpenAIProposer(cfg)
	case ProviderSubagent:
		p = NewSubagentProposer(SubagentConfig{Model: cfg.Model, Timeout: cfg.Timeout})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	p = WrapWithRateLimit(p, rate.Limit(cfg.RequestsPerMinute/60.0), cfg.Burst)
	if cfg.FallbackToRules {
		p = WithFallback(p, NewHeuristicProposer(), logger)
	}
	return p, nil
}
