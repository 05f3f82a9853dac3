package llm

import (
	"context"
	"math"
	"testing"

	"github.com/nvandessel/adoptsim/internal/models"
)

func TestHeuristicProposer_WorstDimensionsFirst(t *testing.T) {
	p := NewHeuristicProposer()
	node := models.ScenarioNode{ScorecardParams: models.ScorecardParams{
		Complexity: 0.3, InitialEffort: 0.8, PerceivedRisk: 0.5, TimeToValue: 0.5,
	}}

	got, err := p.Propose(context.Background(), node, ProposalContext{}, 3)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}

	wantCategories := []string{"reduce_setup", "build_trust", "accelerate_value"}
	if len(got) != len(wantCategories) {
		t.Fatalf("got %d proposals, want %d", len(got), len(wantCategories))
	}
	for i, want := range wantCategories {
		if got[i].Category != want {
			t.Errorf("proposal %d category = %s, want %s", i, got[i].Category, want)
		}
	}
	if got[0].Delta.InitialEffort != -0.15 {
		t.Errorf("first delta = %+v, want initial_effort -0.15", got[0].Delta)
	}
}

func TestHeuristicProposer_StepCappedAtValue(t *testing.T) {
	p := NewHeuristicProposer()
	node := models.ScenarioNode{ScorecardParams: models.ScorecardParams{Complexity: 0.05}}

	got, err := p.Propose(context.Background(), node, ProposalContext{}, 4)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d proposals, want 1 (zero dimensions are skipped)", len(got))
	}
	if math.Abs(got[0].Delta.Complexity+0.05) > 1e-12 {
		t.Errorf("delta = %v, want -0.05", got[0].Delta.Complexity)
	}
}

func TestHeuristicProposer_PerfectScorecard(t *testing.T) {
	got, err := NewHeuristicProposer().Propose(context.Background(), models.ScenarioNode{}, ProposalContext{}, 2)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d proposals for an all-zero scorecard, want 0", len(got))
	}
}

func TestHeuristicProposer_Deterministic(t *testing.T) {
	p := NewHeuristicProposer()
	node := models.ScenarioNode{ScorecardParams: models.ScorecardParams{
		Complexity: 0.5, InitialEffort: 0.5, PerceivedRisk: 0.5, TimeToValue: 0.5,
	}}

	got, _ := p.Propose(context.Background(), node, ProposalContext{}, 2)
	if len(got) != 2 || got[0].Category != "simplify_flow" || got[1].Category != "reduce_setup" {
		t.Errorf("ties should keep dimension order, got %+v", got)
	}
	if !p.Available() {
		t.Error("heuristic proposer should always be available")
	}
}

func TestHeuristicProposer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHeuristicProposer().Propose(ctx, models.ScenarioNode{}, ProposalContext{}, 1); err == nil {
		t.Error("expected context error")
	}
}
