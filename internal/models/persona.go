// Package models defines the core data types for adoption simulation and
// design-space exploration.
package models

import (
	"fmt"
	"math"
)

// LatentTraits are the unobserved dispositions of a persona. Each value is in [0,1].
type LatentTraits struct {
	Capability        float64 `json:"capability" yaml:"capability"`
	Trust             float64 `json:"trust" yaml:"trust"`
	FrictionTolerance float64 `json:"friction_tolerance" yaml:"friction_tolerance"`
	ExplorationProb   float64 `json:"exploration_prob" yaml:"exploration_prob"`
}

// Observables are the measurable attributes of a persona. Each value is in [0,1].
type Observables struct {
	DigitalLiteracy       float64 `json:"digital_literacy" yaml:"digital_literacy"`
	SimilarToolExperience float64 `json:"similar_tool_experience" yaml:"similar_tool_experience"`
	MotorAbility          float64 `json:"motor_ability" yaml:"motor_ability"`
	TimeAvailability      float64 `json:"time_availability" yaml:"time_availability"`
	DomainExpertise       float64 `json:"domain_expertise" yaml:"domain_expertise"`
}

// PersonaAttributes is the immutable simulation input for one persona.
type PersonaAttributes struct {
	// ID is an optional label carried through from the persona source.
	ID           string       `json:"id,omitempty" yaml:"id,omitempty"`
	LatentTraits LatentTraits `json:"latent_traits" yaml:"latent_traits"`
	Observables  Observables  `json:"observables" yaml:"observables"`
}

// Validate checks that every trait and observable lies in [0,1].
func (p PersonaAttributes) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"latent_traits.capability", p.LatentTraits.Capability},
		{"latent_traits.trust", p.LatentTraits.Trust},
		{"latent_traits.friction_tolerance", p.LatentTraits.FrictionTolerance},
		{"latent_traits.exploration_prob", p.LatentTraits.ExplorationProb},
		{"observables.digital_literacy", p.Observables.DigitalLiteracy},
		{"observables.similar_tool_experience", p.Observables.SimilarToolExperience},
		{"observables.motor_ability", p.Observables.MotorAbility},
		{"observables.time_availability", p.Observables.TimeAvailability},
		{"observables.domain_expertise", p.Observables.DomainExpertise},
	}
	for _, f := range fields {
		if !inUnit(f.value) {
			return &ConfigError{Field: f.name, Reason: fmt.Sprintf("must be in [0,1], got %g", f.value)}
		}
	}
	return nil
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

// Clamp01 limits v to the closed interval [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
