package persona

import (
	"fmt"
	"math/rand/v2"

	"github.com/nvandessel/adoptsim/internal/models"
)

// traitMean and traitSpread shape synthetic trait draws.
const (
	traitMean   = 0.5
	traitSpread = 0.2
)

// Synthesize generates n reproducible personas from seed. Traits are drawn
// from a normal distribution around the midpoint and clamped to [0,1].
func Synthesize(n int, seed uint64) []models.PersonaAttributes {
	rng := rand.New(rand.NewPCG(seed, uint64(n)))
	draw := func() float64 {
		return models.Clamp01(traitMean + traitSpread*rng.NormFloat64())
	}

	out := make([]models.PersonaAttributes, n)
	for i := range out {
		out[i] = models.PersonaAttributes{
			ID: fmt.Sprintf("synthetic-%d", i),
			LatentTraits: models.LatentTraits{
				Capability:        draw(),
				Trust:             draw(),
				FrictionTolerance: draw(),
				ExplorationProb:   draw(),
			},
			Observables: models.Observables{
				DigitalLiteracy:       draw(),
				SimilarToolExperience: draw(),
				MotorAbility:          draw(),
				TimeAvailability:      draw(),
				DomainExpertise:       draw(),
			},
		}
	}
	return out
}

// SyntheticSource synthesizes a population for any group ID. The group ID
// is mixed into the seed so distinct groups get distinct personas.
type SyntheticSource struct {
	Count int
	Seed  uint64
}
