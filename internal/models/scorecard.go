package models

import "fmt"

// ScorecardParams describes a feature design along four dimensions, each in [0,1].
// It is the variable the exploration optimizes.
type ScorecardParams struct {
	Complexity    float64 `json:"complexity" yaml:"complexity"`
	InitialEffort float64 `json:"initial_effort" yaml:"initial_effort"`
	PerceivedRisk float64 `json:"perceived_risk" yaml:"perceived_risk"`
	TimeToValue   float64 `json:"time_to_value" yaml:"time_to_value"`
}

// Validate checks that each dimension is in [0,1].
func (p ScorecardParams) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"complexity", p.Complexity},
		{"initial_effort", p.InitialEffort},
		{"perceived_risk", p.PerceivedRisk},
		{"time_to_value", p.TimeToValue},
	}
	for _, f := range fields {
		if !inUnit(f.value) {
			return &ConfigError{Field: "scorecard." + f.name, Reason: fmt.Sprintf("must be in [0,1], got %g", f.value)}
		}
	}
	return nil
}

// Apply returns p shifted by delta with every dimension clamped into [0,1].
func (p ScorecardParams) Apply(delta ScorecardDelta) ScorecardParams {
	return ScorecardParams{
		Complexity:    Clamp01(p.Complexity + delta.Complexity),
		InitialEffort: Clamp01(p.InitialEffort + delta.InitialEffort),
		PerceivedRisk: Clamp01(p.PerceivedRisk + delta.PerceivedRisk),
		TimeToValue:   Clamp01(p.TimeToValue + delta.TimeToValue),
	}
}

// ScorecardDelta is a proposed change to one or more scorecard dimensions.
// Zero fields leave the dimension unchanged.
type ScorecardDelta struct {
	Complexity    float64 `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	InitialEffort float64 `json:"initial_effort,omitempty" yaml:"initial_effort,omitempty"`
	PerceivedRisk float64 `json:"perceived_risk,omitempty" yaml:"perceived_risk,omitempty"`
	TimeToValue   float64 `json:"time_to_value,omitempty" yaml:"time_to_value,omitempty"`
}

// IsZero reports whether the delta changes nothing.
func (d ScorecardDelta) IsZero() bool {
	return d == ScorecardDelta{}
}

// Validate checks that each component is a number in [-1,1].
func (d ScorecardDelta) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"complexity", d.Complexity},
		{"initial_effort", d.InitialEffort},
		{"perceived_risk", d.PerceivedRisk},
		{"time_to_value", d.TimeToValue},
	}
	for _, f := range fields {
		if !(f.value >= -1 && f.value <= 1) {
			return fmt.Errorf("delta %s must be in [-1,1], got %g", f.name, f.value)
		}
	}
	return nil
}

// Proposal is one candidate action returned by an Action Proposer.
type Proposal struct {
	Category  string         `json:"category"`
	Rationale string         `json:"rationale"`
	Delta     ScorecardDelta `json:"delta"`
}
