package models

import (
	"errors"
	"math"
	"testing"
)

func TestScorecardApply_Clamps(t *testing.T) {
	base := ScorecardParams{Complexity: 0.1, InitialEffort: 0.9, PerceivedRisk: 0.5, TimeToValue: 0.5}

	got := base.Apply(ScorecardDelta{Complexity: -0.3, InitialEffort: 0.4, PerceivedRisk: -0.2})
	want := ScorecardParams{Complexity: 0, InitialEffort: 1, PerceivedRisk: 0.3, TimeToValue: 0.5}
	if got != want {
		t.Errorf("Apply() = %+v, want %+v", got, want)
	}
	if base.Complexity != 0.1 {
		t.Error("Apply() must not mutate the receiver")
	}
}

func TestScorecardApply_NaNDeltaStaysInUnit(t *testing.T) {
	base := ScorecardParams{Complexity: 0.4, InitialEffort: 0.5, PerceivedRisk: 0.5, TimeToValue: 0.5}
	got := base.Apply(ScorecardDelta{Complexity: math.NaN()})
	if err := got.Validate(); err != nil {
		t.Errorf("Apply(NaN) = %+v, Validate() error = %v", got, err)
	}
}

func TestClamp01(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0.25, 0.25},
		{1.5, 1},
		{math.Inf(1), 1},
		{math.Inf(-1), 0},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := Clamp01(tt.in); got != tt.want {
			t.Errorf("Clamp01(%g) = %g, want %g", tt.in, got, tt.want)
		}
	}
}

func TestScorecardDeltaValidate(t *testing.T) {
	tests := []struct {
		name    string
		delta   ScorecardDelta
		wantErr bool
	}{
		{"zero", ScorecardDelta{}, false},
		{"bounds", ScorecardDelta{Complexity: -1, TimeToValue: 1}, false},
		{"below minus one", ScorecardDelta{InitialEffort: -1.01}, true},
		{"above one", ScorecardDelta{PerceivedRisk: 1.5}, true},
		{"NaN", ScorecardDelta{Complexity: math.NaN()}, true},
		{"infinite", ScorecardDelta{TimeToValue: math.Inf(1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.delta.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScorecardValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  ScorecardParams
		wantErr bool
	}{
		{"all zero", ScorecardParams{}, false},
		{"all one", ScorecardParams{1, 1, 1, 1}, false},
		{"negative complexity", ScorecardParams{Complexity: -0.01}, true},
		{"time to value above one", ScorecardParams{TimeToValue: 1.2}, true},
		{"NaN risk", ScorecardParams{PerceivedRisk: math.NaN()}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			var ce *ConfigError
			if err != nil && !errors.As(err, &ce) {
				t.Errorf("Validate() error type = %T, want *ConfigError", err)
			}
		})
	}
}

func TestSimulationConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       SimulationConfig
		wantField string
	}{
		{"valid", SimulationConfig{NumPersonas: 1, NumExecutions: 1, Sigma: 0.5}, ""},
		{"zero personas", SimulationConfig{NumPersonas: 0, NumExecutions: 1}, "num_personas"},
		{"zero executions", SimulationConfig{NumPersonas: 1, NumExecutions: 0}, "num_executions"},
		{"negative sigma", SimulationConfig{NumPersonas: 1, NumExecutions: 1, Sigma: -0.1}, "sigma"},
		{"sigma too large", SimulationConfig{NumPersonas: 1, NumExecutions: 1, Sigma: 0.51}, "sigma"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Validate() error = %v, want *ConfigError", err)
			}
			if ce.Field != tt.wantField {
				t.Errorf("ConfigError.Field = %q, want %q", ce.Field, tt.wantField)
			}
		})
	}
}

func TestScenarioValidate(t *testing.T) {
	for _, name := range ScenarioPresetNames() {
		s, _ := ScenarioPreset(name)
		if err := s.Validate(); err != nil {
			t.Errorf("preset %q invalid: %v", name, err)
		}
	}

	bad := Scenario{TrustModifier: 0.31}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for trust modifier above 0.3")
	}
	bad = Scenario{TaskCriticality: -0.5}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for negative task criticality")
	}
}

func TestPersonaValidate(t *testing.T) {
	p := PersonaAttributes{
		LatentTraits: LatentTraits{Capability: 0.5, Trust: 0.5, FrictionTolerance: 0.5, ExplorationProb: 0.5},
		Observables:  Observables{DigitalLiteracy: 0.5, SimilarToolExperience: 0.5, MotorAbility: 0.5, TimeAvailability: 0.5, DomainExpertise: 0.5},
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
	p.Observables.MotorAbility = 1.5
	if err := p.Validate(); err == nil {
		t.Error("expected error for motor ability 1.5")
	}
}

func TestNodeStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to NodeStatus
		want     bool
	}{
		{NodePending, NodeEvaluated, true},
		{NodePending, NodePruned, true},
		{NodeEvaluated, NodePruned, true},
		{NodeEvaluated, NodePending, false},
		{NodePruned, NodeEvaluated, false},
		{NodePruned, NodePruned, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestExplorationStatusTerminal(t *testing.T) {
	terminal := map[ExplorationStatus]bool{
		ExplorationPending:         false,
		ExplorationRunning:         false,
		ExplorationGoalAchieved:    true,
		ExplorationMaxDepthReached: true,
		ExplorationFailed:          true,
	}
	for s, want := range terminal {
		if s.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, s.Terminal(), want)
		}
		if !s.Valid() {
			t.Errorf("%s.Valid() = false", s)
		}
	}
	if ExplorationStatus("bogus").Valid() {
		t.Error("bogus status reported valid")
	}
}

func TestGoalMetBy(t *testing.T) {
	g := Goal{Type: GoalMinSuccessRate, Value: 0.7}
	if g.MetBy(nil) {
		t.Error("nil result must not meet the goal")
	}
	if !g.MetBy(&SimulationResult{Success: 0.7}) {
		t.Error("success equal to the goal value must meet it")
	}
	if g.MetBy(&SimulationResult{Success: 0.69}) {
		t.Error("success below the goal must not meet it")
	}
}

func TestErrorsUnwrap(t *testing.T) {
	inner := errors.New("disk full")
	var err error = &StoreError{Op: "create node", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("StoreError should unwrap to the inner error")
	}
	err = &ProposalError{NodeID: "n1", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("ProposalError should unwrap to the inner error")
	}
}
