package models

import (
	"fmt"
	"sort"

	"github.com/nvandessel/adoptsim/internal/constants"
)

// Scenario is a usage context applied uniformly to the whole population
// during one simulation run.
type Scenario struct {
	Name               string  `json:"name,omitempty" yaml:"name,omitempty"`
	MotivationModifier float64 `json:"motivation_modifier" yaml:"motivation_modifier"`
	TrustModifier      float64 `json:"trust_modifier" yaml:"trust_modifier"`
	FrictionModifier   float64 `json:"friction_modifier" yaml:"friction_modifier"`
	TaskCriticality    float64 `json:"task_criticality" yaml:"task_criticality"`
}

// Validate checks modifier and criticality ranges.
func (s Scenario) Validate() error {
	mods := []struct {
		name  string
		value float64
	}{
		{"motivation_modifier", s.MotivationModifier},
		{"trust_modifier", s.TrustModifier},
		{"friction_modifier", s.FrictionModifier},
	}
	for _, m := range mods {
		if m.value < constants.MinScenarioModifier || m.value > constants.MaxScenarioModifier {
			return &ConfigError{
				Field:  "scenario." + m.name,
				Reason: fmt.Sprintf("must be in [%g,%g], got %g", constants.MinScenarioModifier, constants.MaxScenarioModifier, m.value),
			}
		}
	}
	if !inUnit(s.TaskCriticality) {
		return &ConfigError{Field: "scenario.task_criticality", Reason: fmt.Sprintf("must be in [0,1], got %g", s.TaskCriticality)}
	}
	return nil
}

// Named scenario presets.
var scenarioPresets = map[string]Scenario{
	"baseline": {
		Name:            "baseline",
		TaskCriticality: 0.5,
	},
	"crisis": {
		Name:               "crisis",
		MotivationModifier: 0.2,
		TrustModifier:      -0.1,
		FrictionModifier:   -0.2,
		TaskCriticality:    0.9,
	},
	"first-use": {
		Name:               "first-use",
		MotivationModifier: 0.1,
		TrustModifier:      -0.2,
		FrictionModifier:   -0.1,
		TaskCriticality:    0.3,
	},
}

// ScenarioPreset returns the named preset scenario.
func ScenarioPreset(name string) (Scenario, bool) {
	s, ok := scenarioPresets[name]
	return s, ok
}

// ScenarioPresetNames returns the preset names in sorted order.
func ScenarioPresetNames() []string {
	names := make([]string, 0, len(scenarioPresets))
	for name := range scenarioPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
