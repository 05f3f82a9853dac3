// Package behavior implements the per-trial adoption model: given a persona,
// a scenario and a feature scorecard it decides whether the persona attempts
// the feature and, if so, whether the attempt succeeds.
//
// Both decisions are Bernoulli draws against logistic transforms of weighted
// sums. The weights are tuning parameters; only their signs are fixed:
//
//	attempt: task criticality, motivation, digital literacy, similar-tool
//	         experience (+); complexity, initial effort, perceived risk (-)
//	success: sampled capability, trust, friction tolerance (+);
//	         complexity, initial effort (-)
package behavior

import (
	"math"
	"math/rand/v2"

	"github.com/nvandessel/adoptsim/internal/models"
)

// Weights are the coefficients of the attempt and success logits.
// Every coefficient is a magnitude; the sign is applied by the model,
// so a non-negative Weights value always preserves the monotonic directions.
type Weights struct {
	AttemptBias           float64 `json:"attempt_bias" yaml:"attempt_bias"`
	TaskCriticality       float64 `json:"task_criticality" yaml:"task_criticality"`
	Motivation            float64 `json:"motivation" yaml:"motivation"`
	DigitalLiteracy       float64 `json:"digital_literacy" yaml:"digital_literacy"`
	SimilarToolExperience float64 `json:"similar_tool_experience" yaml:"similar_tool_experience"`
	ExplorationProb       float64 `json:"exploration_prob" yaml:"exploration_prob"`
	TimeAvailability      float64 `json:"time_availability" yaml:"time_availability"`
	AttemptComplexity     float64 `json:"attempt_complexity" yaml:"attempt_complexity"`
	AttemptEffort         float64 `json:"attempt_effort" yaml:"attempt_effort"`
	PerceivedRisk         float64 `json:"perceived_risk" yaml:"perceived_risk"`
	TimeToValue           float64 `json:"time_to_value" yaml:"time_to_value"`

	SuccessBias       float64 `json:"success_bias" yaml:"success_bias"`
	Capability        float64 `json:"capability" yaml:"capability"`
	Trust             float64 `json:"trust" yaml:"trust"`
	FrictionTolerance float64 `json:"friction_tolerance" yaml:"friction_tolerance"`
	DomainExpertise   float64 `json:"domain_expertise" yaml:"domain_expertise"`
	MotorAbility      float64 `json:"motor_ability" yaml:"motor_ability"`
	SuccessComplexity float64 `json:"success_complexity" yaml:"success_complexity"`
	SuccessEffort     float64 `json:"success_effort" yaml:"success_effort"`
}

// DefaultWeights returns an uncalibrated starting point. With every input at
// 0.5 in the baseline scenario it yields roughly 60% attempts and 45% success
// among attempts.
func DefaultWeights() Weights {
	return Weights{
		AttemptBias:           0.0,
		TaskCriticality:       1.5,
		Motivation:            2.0,
		DigitalLiteracy:       1.0,
		SimilarToolExperience: 0.8,
		ExplorationProb:       0.6,
		TimeAvailability:      0.4,
		AttemptComplexity:     1.5,
		AttemptEffort:         1.2,
		PerceivedRisk:         1.4,
		TimeToValue:           0.8,

		SuccessBias:       -1.0,
		Capability:        1.6,
		Trust:             1.0,
		FrictionTolerance: 1.2,
		DomainExpertise:   0.6,
		MotorAbility:      0.3,
		SuccessComplexity: 1.8,
		SuccessEffort:     1.2,
	}
}

// SampledTraits are the per-trial trait values after scenario shift and noise.
type SampledTraits struct {
	Capability        float64
	Trust             float64
	FrictionTolerance float64
}

// Trial is the outcome of one simulated attempt. Succeeded implies Attempted.
type Trial struct {
	Attempted bool
	Succeeded bool
}

// Model evaluates single trials.
type Model struct {
	weights Weights
}

// NewModel creates a model with the given weights.
func NewModel(w Weights) *Model {
	return &Model{weights: w}
}

// Weights returns the model's coefficients.
func (m *Model) Weights() Weights {
	return m.weights
}

// SampleTraits draws noisy per-trial values for capability, trust and friction
// tolerance. Three normal draws are always consumed, in that order.
func SampleTraits(p models.PersonaAttributes, sc models.Scenario, sigma float64, rng *rand.Rand) SampledTraits {
	return SampledTraits{
		Capability:        models.Clamp01(p.LatentTraits.Capability + sc.MotivationModifier + sigma*rng.NormFloat64()),
		Trust:             models.Clamp01(p.LatentTraits.Trust + sc.TrustModifier + sigma*rng.NormFloat64()),
		FrictionTolerance: models.Clamp01(p.LatentTraits.FrictionTolerance + sc.FrictionModifier + sigma*rng.NormFloat64()),
	}
}

// AttemptProbability returns the probability that the persona tries the feature.
func (m *Model) AttemptProbability(p models.PersonaAttributes, sc models.Scenario, card models.ScorecardParams) float64 {
	w := m.weights
	z := w.AttemptBias +
		w.TaskCriticality*sc.TaskCriticality +
		w.Motivation*sc.MotivationModifier +
		w.DigitalLiteracy*p.Observables.DigitalLiteracy +
		w.SimilarToolExperience*p.Observables.SimilarToolExperience +
		w.ExplorationProb*p.LatentTraits.ExplorationProb +
		w.TimeAvailability*p.Observables.TimeAvailability -
		w.AttemptComplexity*card.Complexity -
		w.AttemptEffort*card.InitialEffort -
		w.PerceivedRisk*card.PerceivedRisk -
		w.TimeToValue*card.TimeToValue
	return logistic(z)
}

// SuccessProbability returns the probability that an attempt succeeds.
func (m *Model) SuccessProbability(p models.PersonaAttributes, traits SampledTraits, card models.ScorecardParams) float64 {
	w := m.weights
	z := w.SuccessBias +
		w.Capability*traits.Capability +
		w.Trust*traits.Trust +
		w.FrictionTolerance*traits.FrictionTolerance +
		w.DomainExpertise*p.Observables.DomainExpertise +
		w.MotorAbility*p.Observables.MotorAbility -
		w.SuccessComplexity*card.Complexity -
		w.SuccessEffort*card.InitialEffort
	return logistic(z)
}

// Evaluate runs one trial. Draw order is fixed: three normals for the traits,
// one uniform for the attempt and, only when attempted, one uniform for success.
func (m *Model) Evaluate(p models.PersonaAttributes, sc models.Scenario, card models.ScorecardParams, sigma float64, rng *rand.Rand) Trial {
	traits := SampleTraits(p, sc, sigma, rng)

	if rng.Float64() >= m.AttemptProbability(p, sc, card) {
		return Trial{}
	}
	return Trial{
		Attempted: true,
		Succeeded: rng.Float64() < m.SuccessProbability(p, traits, card),
	}
}

func logistic(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
