package llm

import (
	"context"
	"fmt"
	"sort"

	"github.com/nvandessel/adoptsim/internal/constants"
	"github.com/nvandessel/adoptsim/internal/models"
)

// dimension describes one scorecard axis for the heuristic proposer.
type dimension struct {
	name      string
	category  string
	rationale string
	value     func(models.ScorecardParams) float64
	delta     func(float64) models.ScorecardDelta
}

var dimensions = []dimension{
	{
		name:      "complexity",
		category:  "simplify_flow",
		rationale: "Remove steps and options from the core flow to lower complexity.",
		value:     func(p models.ScorecardParams) float64 { return p.Complexity },
		delta:     func(d float64) models.ScorecardDelta { return models.ScorecardDelta{Complexity: d} },
	},
	{
		name:      "initial_effort",
		category:  "reduce_setup",
		rationale: "Defer configuration and prefill defaults to cut initial effort.",
		value:     func(p models.ScorecardParams) float64 { return p.InitialEffort },
		delta:     func(d float64) models.ScorecardDelta { return models.ScorecardDelta{InitialEffort: d} },
	},
	{
		name:      "perceived_risk",
		category:  "build_trust",
		rationale: "Add undo, previews and clear data handling to lower perceived risk.",
		value:     func(p models.ScorecardParams) float64 { return p.PerceivedRisk },
		delta:     func(d float64) models.ScorecardDelta { return models.ScorecardDelta{PerceivedRisk: d} },
	},
	{
		name:      "time_to_value",
		category:  "accelerate_value",
		rationale: "Show a useful result in the first session to shorten time to value.",
		value:     func(p models.ScorecardParams) float64 { return p.TimeToValue },
		delta:     func(d float64) models.ScorecardDelta { return models.ScorecardDelta{TimeToValue: d} },
	},
}

// HeuristicProposer is a deterministic rule-based proposer. It lowers the
// worst scorecard dimensions first by constants.HeuristicStep. It needs no
// credentials and serves as the fallback when no LLM is configured.
type HeuristicProposer struct {
	step float64
}

// NewHeuristicProposer creates a heuristic proposer with the default step.
func NewHeuristicProposer() *HeuristicProposer {
	return &HeuristicProposer{step: constants.HeuristicStep}
}

// Propose returns one proposal per non-zero dimension, worst first, up to
// maxProposals. Ties keep the fixed dimension order.
func (h *HeuristicProposer) Propose(ctx context.Context, node models.ScenarioNode, _ ProposalContext, maxProposals int) ([]models.Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	card := node.ScorecardParams
	ranked := make([]dimension, 0, len(dimensions))
	for _, d := range dimensions {
		if d.value(card) > 0 {
			ranked = append(ranked, d)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].value(card) > ranked[j].value(card)
	})

	var proposals []models.Proposal
	for _, d := range ranked {
		if len(proposals) >= maxProposals {
			break
		}
		step := min(h.step, d.value(card))
		proposals = append(proposals, models.Proposal{
			Category:  d.category,
			Rationale: fmt.Sprintf("%s (%s %.2f -> %.2f)", d.rationale, d.name, d.value(card), d.value(card)-step),
			Delta:     d.delta(-step),
		})
	}
	return proposals, nil
}

// Available always returns true.
func (h *HeuristicProposer) Available() bool {
	return true
}
