package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nvandessel/adoptsim/internal/behavior"
	"github.com/nvandessel/adoptsim/internal/models"
)

func testPersonas(n int) []models.PersonaAttributes {
	rng := rand.New(rand.NewPCG(7, 11))
	out := make([]models.PersonaAttributes, n)
	for i := range out {
		out[i] = models.PersonaAttributes{
			ID: fmt.Sprintf("p-%02d", i),
			LatentTraits: models.LatentTraits{
				Capability:        rng.Float64(),
				Trust:             rng.Float64(),
				FrictionTolerance: rng.Float64(),
				ExplorationProb:   rng.Float64(),
			},
			Observables: models.Observables{
				DigitalLiteracy:       rng.Float64(),
				SimilarToolExperience: rng.Float64(),
				MotorAbility:          rng.Float64(),
				TimeAvailability:      rng.Float64(),
				DomainExpertise:       rng.Float64(),
			},
		}
	}
	return out
}

func baseCard() models.ScorecardParams {
	return models.ScorecardParams{Complexity: 0.5, InitialEffort: 0.5, PerceivedRisk: 0.5, TimeToValue: 0.5}
}

func baseConfig() models.SimulationConfig {
	return models.SimulationConfig{NumPersonas: 20, NumExecutions: 100, Sigma: 0.05}.WithSeed(42)
}

func newTestEngine(workers int) *Engine {
	return NewEngine(behavior.NewModel(behavior.DefaultWeights()), WithWorkers(workers))
}

// ignoreTiming drops wall-clock fields from comparisons.
var ignoreTiming = cmpopts.IgnoreFields(models.SimulationResult{}, "ExecutionTimeSeconds")

func TestRun_RatesSumToOne(t *testing.T) {
	scenario, _ := models.ScenarioPreset("baseline")
	res, err := newTestEngine(4).Run(context.Background(), testPersonas(20), scenario, baseCard(), baseConfig())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(res.Personas) != 20 {
		t.Fatalf("got %d persona outcomes, want 20", len(res.Personas))
	}
	for i, o := range res.Personas {
		if math.Abs(o.Sum()-1) > 1e-9 {
			t.Errorf("persona %d rates sum to %v", i, o.Sum())
		}
		if o.PersonaID != fmt.Sprintf("p-%02d", i) {
			t.Errorf("persona %d id = %q", i, o.PersonaID)
		}
	}
	pop := res.Population
	if sum := pop.DidNotTry + pop.Failed + pop.Success; math.Abs(sum-1) > 1e-9 {
		t.Errorf("population rates sum to %v", sum)
	}
	if res.Trials != 2000 {
		t.Errorf("Trials = %d, want 2000", res.Trials)
	}
	if res.Seed != 42 {
		t.Errorf("Seed = %d, want 42", res.Seed)
	}
}

func TestRun_PopulationMatchesPersonaMean(t *testing.T) {
	scenario, _ := models.ScenarioPreset("crisis")
	res, err := newTestEngine(3).Run(context.Background(), testPersonas(20), scenario, baseCard(), baseConfig())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var success float64
	for _, o := range res.Personas {
		success += o.SuccessRate
	}
	mean := success / float64(len(res.Personas))
	if math.Abs(mean-res.Population.Success) > 1e-9 {
		t.Errorf("population success = %v, persona mean = %v", res.Population.Success, mean)
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, _ := models.ScenarioPreset("baseline")
	personas := testPersonas(20)

	first, err := newTestEngine(1).Run(context.Background(), personas, scenario, baseCard(), baseConfig())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, workers := range []int{1, 2, 7, 32} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			got, err := newTestEngine(workers).Run(context.Background(), personas, scenario, baseCard(), baseConfig())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if diff := cmp.Diff(first, got, ignoreTiming); diff != "" {
				t.Errorf("result differs from single-worker run (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRun_DifferentSeedsDiffer(t *testing.T) {
	scenario, _ := models.ScenarioPreset("baseline")
	personas := testPersonas(20)
	engine := newTestEngine(4)

	a, err := engine.Run(context.Background(), personas, scenario, baseCard(), baseConfig())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	b, err := engine.Run(context.Background(), personas, scenario, baseCard(), baseConfig().WithSeed(43))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if cmp.Equal(a.Personas, b.Personas) {
		t.Error("seeds 42 and 43 produced identical persona outcomes")
	}
}

func TestRun_ComplexityMonotonic(t *testing.T) {
	scenario, _ := models.ScenarioPreset("baseline")
	personas := testPersonas(20)
	engine := newTestEngine(4)

	for seed := uint64(1); seed <= 10; seed++ {
		cfg := baseConfig().WithSeed(seed)
		prev := math.Inf(1)
		for _, c := range []float64{0, 0.25, 0.5, 0.75, 1} {
			card := baseCard()
			card.Complexity = c
			res, err := engine.Run(context.Background(), personas, scenario, card, cfg)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.Population.Success > prev {
				t.Errorf("seed %d: success rose from %v to %v at complexity %v", seed, prev, res.Population.Success, c)
			}
			prev = res.Population.Success
		}
	}
}

func TestRun_SimplerScorecardImprovesSuccess(t *testing.T) {
	scenario, _ := models.ScenarioPreset("baseline")
	personas := testPersonas(20)
	engine := newTestEngine(4)

	hard, err := engine.Run(context.Background(), personas, scenario, models.ScorecardParams{Complexity: 1, InitialEffort: 1, PerceivedRisk: 1, TimeToValue: 1}, baseConfig())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	easy, err := engine.Run(context.Background(), personas, scenario, models.ScorecardParams{}, baseConfig())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if easy.Population.Success <= hard.Population.Success {
		t.Errorf("easy success %v <= hard success %v", easy.Population.Success, hard.Population.Success)
	}
	if easy.Population.DidNotTry >= hard.Population.DidNotTry {
		t.Errorf("easy did-not-try %v >= hard did-not-try %v", easy.Population.DidNotTry, hard.Population.DidNotTry)
	}
}

func TestRun_RandomSeedReported(t *testing.T) {
	scenario, _ := models.ScenarioPreset("baseline")
	personas := testPersonas(5)
	cfg := models.SimulationConfig{NumPersonas: 5, NumExecutions: 50, Sigma: 0.1}

	res, err := newTestEngine(2).Run(context.Background(), personas, scenario, baseCard(), cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	replay, err := newTestEngine(2).Run(context.Background(), personas, scenario, baseCard(), cfg.WithSeed(res.Seed))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if diff := cmp.Diff(res, replay, ignoreTiming); diff != "" {
		t.Errorf("replay with reported seed differs (-want +got):\n%s", diff)
	}
}

func TestRun_ConfigErrors(t *testing.T) {
	scenario, _ := models.ScenarioPreset("baseline")
	personas := testPersonas(5)

	tests := []struct {
		name      string
		personas  []models.PersonaAttributes
		scenario  models.Scenario
		card      models.ScorecardParams
		cfg       models.SimulationConfig
		wantField string
	}{
		{
			name:      "zero personas",
			personas:  personas,
			scenario:  scenario,
			card:      baseCard(),
			cfg:       models.SimulationConfig{NumPersonas: 0, NumExecutions: 10},
			wantField: "num_personas",
		},
		{
			name:      "zero executions",
			personas:  personas,
			scenario:  scenario,
			card:      baseCard(),
			cfg:       models.SimulationConfig{NumPersonas: 5, NumExecutions: 0},
			wantField: "num_executions",
		},
		{
			name:      "negative sigma",
			personas:  personas,
			scenario:  scenario,
			card:      baseCard(),
			cfg:       models.SimulationConfig{NumPersonas: 5, NumExecutions: 10, Sigma: -0.1},
			wantField: "sigma",
		},
		{
			name:      "too few personas",
			personas:  personas,
			scenario:  scenario,
			card:      baseCard(),
			cfg:       models.SimulationConfig{NumPersonas: 6, NumExecutions: 10},
			wantField: "num_personas",
		},
		{
			name:      "scenario modifier out of range",
			personas:  personas,
			scenario:  models.Scenario{Name: "x", MotivationModifier: 0.5, TaskCriticality: 0.5},
			card:      baseCard(),
			cfg:       models.SimulationConfig{NumPersonas: 5, NumExecutions: 10},
			wantField: "scenario.motivation_modifier",
		},
		{
			name:      "scorecard out of range",
			personas:  personas,
			scenario:  scenario,
			card:      models.ScorecardParams{Complexity: 1.5},
			cfg:       models.SimulationConfig{NumPersonas: 5, NumExecutions: 10},
			wantField: "scorecard.complexity",
		},
		{
			name: "invalid persona trait",
			personas: append(testPersonas(4), models.PersonaAttributes{
				LatentTraits: models.LatentTraits{Capability: 2},
			}),
			scenario:  scenario,
			card:      baseCard(),
			cfg:       models.SimulationConfig{NumPersonas: 5, NumExecutions: 10},
			wantField: "latent_traits.capability",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestEngine(2).Run(context.Background(), tt.personas, tt.scenario, tt.card, tt.cfg)
			var cfgErr *models.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Run() error = %v, want *models.ConfigError", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.wantField)
			}
		})
	}
}

func TestRun_UsesFirstNPersonas(t *testing.T) {
	scenario, _ := models.ScenarioPreset("baseline")
	personas := testPersonas(10)
	cfg := models.SimulationConfig{NumPersonas: 4, NumExecutions: 50, Sigma: 0.05}.WithSeed(9)

	full, err := newTestEngine(2).Run(context.Background(), personas, scenario, baseCard(), cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	trimmed, err := newTestEngine(2).Run(context.Background(), personas[:4], scenario, baseCard(), cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if diff := cmp.Diff(full, trimmed, ignoreTiming); diff != "" {
		t.Errorf("extra personas changed the result (-want +got):\n%s", diff)
	}
}

func TestRun_Cancelled(t *testing.T) {
	scenario, _ := models.ScenarioPreset("baseline")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine(2).Run(ctx, testPersonas(5), scenario, baseCard(), models.SimulationConfig{NumPersonas: 5, NumExecutions: 10}.WithSeed(1))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}
