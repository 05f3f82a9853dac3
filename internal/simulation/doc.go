// Package simulation runs the Monte Carlo adoption engine: every persona is
// put through NumExecutions independent trials of the behavior model and the
// tallies are reduced to per-persona and population outcome rates.
//
// A run is a pure function of its inputs and seed. Trial randomness is keyed
// by (seed, personaIndex, executionIndex), so results do not depend on the
// number of workers or the order in which personas are scheduled.
//
// Usage:
//
//	engine := simulation.NewEngine(behavior.NewModel(behavior.DefaultWeights()),
//	    simulation.WithWorkers(8))
//	res, err := engine.Run(ctx, personas, scenario, scorecard, models.SimulationConfig{
//	    NumPersonas: 50, NumExecutions: 200, Sigma: 0.05,
//	}.WithSeed(42))
package simulation
