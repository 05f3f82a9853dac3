package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/nvandessel/adoptsim/internal/models"
	"github.com/nvandessel/adoptsim/internal/sanitize"
)

var (
	jsonBlockRe    = regexp.MustCompile("(?s)```json\\s*\\n?(.*?)\\s*```")
	genericBlockRe = regexp.MustCompile("(?s)```\\s*\\n?(.*?)\\s*```")
)

// ProposalPrompt builds the prompt asking a model for up to maxProposals
// scorecard changes to node.
func ProposalPrompt(node models.ScenarioNode, pctx ProposalContext, maxProposals int) string {
	var history strings.Builder
	for _, n := range pctx.Path {
		if n.IsRoot() {
			fmt.Fprintf(&history, "- baseline: success %s\n", formatRate(n))
			continue
		}
		fmt.Fprintf(&history, "- depth %d [%s] %s: success %s\n",
			n.Depth, n.ActionCategory, n.Rationale, formatRate(n))
	}
	if history.Len() == 0 {
		history.WriteString("- (none)\n")
	}

	feature := strings.TrimSpace(pctx.FeatureContext)
	if feature == "" {
		feature = "(not described)"
	}

	results := "not yet simulated"
	if r := node.SimulationResults; r != nil {
		results = fmt.Sprintf("did not try %.1f%%, failed %.1f%%, succeeded %.1f%%",
			r.DidNotTry*100, r.Failed*100, r.Success*100)
	}

	card := node.ScorecardParams
	return fmt.Sprintf(`You are a product designer improving adoption of a software feature.
Adoption was simulated over a population of synthetic users.

## Feature
%s

## Usage scenario
Name: %s
Task criticality: %.2f
Motivation modifier: %+.2f
Trust modifier: %+.2f
Friction modifier: %+.2f

## Current design scorecard (each 0.0 = best, 1.0 = worst)
complexity: %.2f
initial_effort: %.2f
perceived_risk: %.2f
time_to_value: %.2f

## Current simulated outcome
%s

## Goal
Population success rate >= %.2f

## Changes already applied on this branch
%s
## Task
Propose up to %d distinct, concrete design changes. Each change adjusts one or
more scorecard dimensions by a delta in [-1.0, 1.0]; negative values improve
the design. Realistic changes move a dimension by 0.05 to 0.30.

## Response Format
Respond with ONLY a JSON object (no markdown code blocks, no additional text):
{
  "proposals": [
    {
      "category": "<short snake_case label, e.g. simplify_flow>",
      "rationale": "<one or two sentences describing the change>",
      "delta": {"complexity": <float>, "initial_effort": <float>, "perceived_risk": <float>, "time_to_value": <float>}
    }
  ]
}`,
		feature,
		pctx.Scenario.Name, pctx.Scenario.TaskCriticality,
		pctx.Scenario.MotivationModifier, pctx.Scenario.TrustModifier, pctx.Scenario.FrictionModifier,
		card.Complexity, card.InitialEffort, card.PerceivedRisk, card.TimeToValue,
		results,
		pctx.Goal.Value,
		history.String(),
		maxProposals)
}

func formatRate(n models.ScenarioNode) string {
	if n.SimulationResults == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.1f%%", n.SimulationResults.Success*100)
}

// ParseProposalResponse parses a model response into at most maxProposals
// proposals. It accepts raw JSON, JSON in markdown code blocks, a bare
// array, and malformed JSON that jsonrepair can fix. Proposals with an
// invalid or empty delta are dropped; text fields are sanitized.
func ParseProposalResponse(response string, maxProposals int) ([]models.Proposal, error) {
	jsonStr := ExtractJSON(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	raw, err := decodeProposals(jsonStr)
	if err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(jsonStr)
		if repairErr != nil {
			return nil, fmt.Errorf("parsing proposals: %w", err)
		}
		raw, err = decodeProposals(repaired)
		if err != nil {
			return nil, fmt.Errorf("parsing repaired proposals: %w", err)
		}
	}

	proposals := make([]models.Proposal, 0, len(raw))
	for _, p := range raw {
		if len(proposals) >= maxProposals {
			break
		}
		if p.Delta.IsZero() || p.Delta.Validate() != nil {
			continue
		}
		category := sanitize.Category(p.Category)
		if category == "" {
			category = "unspecified"
		}
		proposals = append(proposals, models.Proposal{
			Category:  category,
			Rationale: sanitize.Rationale(p.Rationale),
			Delta:     p.Delta,
		})
	}
	return proposals, nil
}

func decodeProposals(s string) ([]models.Proposal, error) {
	if strings.HasPrefix(s, "[") {
		var list []models.Proposal
		if err := json.Unmarshal([]byte(s), &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var wrapper struct {
		Proposals []models.Proposal `json:"proposals"`
	}
	if err := json.Unmarshal([]byte(s), &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Proposals, nil
}

// ExtractJSON extracts JSON content from a string, handling markdown code
// blocks and leading prose. It returns "" when nothing looks like JSON.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)

	if matches := jsonBlockRe.FindStringSubmatch(s); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	if matches := genericBlockRe.FindStringSubmatch(s); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}

	// Prose before the payload, e.g. "Here are my ideas: {...}"
	if i := strings.IndexAny(s, "{["); i >= 0 {
		return s[i:]
	}
	return ""
}
