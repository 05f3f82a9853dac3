package simulation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/adoptsim/internal/behavior"
	"github.com/nvandessel/adoptsim/internal/models"
)

// ctxCheckInterval is how many trials run between cancellation checks.
const ctxCheckInterval = 1024

// aggregateTolerance bounds the allowed gap between the pooled population
// rates and the mean of per-persona rates.
const aggregateTolerance = 1e-9

// Result is the output of one engine run.
type Result struct {
	// Personas holds one outcome per simulated persona, in input order.
	Personas []models.PersonaOutcome `json:"personas"`

	// Population aggregates all persona-executions.
	Population models.SimulationResult `json:"population"`

	// Seed is the seed actually used, so the run can be replayed.
	Seed uint64 `json:"seed"`

	// Trials is NumPersonas * NumExecutions.
	Trials int `json:"trials"`
}

// Engine runs the behavior model over a population.
type Engine struct {
	model   *behavior.Model
	workers int
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds the number of personas simulated concurrently.
// Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine around model. The worker pool defaults to GOMAXPROCS.
func NewEngine(model *behavior.Model, opts ...Option) *Engine {
	e := &Engine{
		model:   model,
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Workers returns the size of the engine's worker pool.
func (e *Engine) Workers() int {
	return e.workers
}

type tally struct {
	didNotTry int
	failed    int
	succeeded int
}

// Run simulates the first cfg.NumPersonas personas under scenario and card.
// Invalid input fails with a *models.ConfigError before any trial runs.
func (e *Engine) Run(ctx context.Context, personas []models.PersonaAttributes, scenario models.Scenario, card models.ScorecardParams, cfg models.SimulationConfig) (*Result, error) {
	if err := validateInputs(personas, scenario, card, cfg); err != nil {
		return nil, err
	}

	var seed uint64
	if cfg.Seed != nil {
		seed = *cfg.Seed
	} else {
		s, err := NewSeed()
		if err != nil {
			return nil, err
		}
		seed = s
	}

	start := time.Now()
	population := personas[:cfg.NumPersonas]
	tallies := make([]tally, len(population))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range population {
		g.Go(func() error {
			t, err := e.runPersona(gctx, i, population[i], scenario, card, cfg, seed)
			if err != nil {
				return err
			}
			tallies[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("simulation cancelled: %w", err)
	}

	res := aggregate(population, tallies, cfg.NumExecutions)
	if err := checkAggregate(res); err != nil {
		return nil, err
	}
	res.Seed = seed
	res.Population.ExecutionTimeSeconds = time.Since(start).Seconds()

	e.logger.Debug("simulation complete",
		"personas", len(population),
		"executions", cfg.NumExecutions,
		"success", res.Population.Success,
		"seed", seed,
		"elapsed", time.Since(start))

	return res, nil
}

// runPersona runs every execution for one persona on its own stream.
func (e *Engine) runPersona(ctx context.Context, index int, p models.PersonaAttributes, scenario models.Scenario, card models.ScorecardParams, cfg models.SimulationConfig, seed uint64) (tally, error) {
	var t tally
	stream := behavior.NewStream()
	for exec := 0; exec < cfg.NumExecutions; exec++ {
		if exec%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return tally{}, err
			}
		}
		trial := e.model.Evaluate(p, scenario, card, cfg.Sigma, stream.Key(seed, index, exec))
		switch {
		case !trial.Attempted:
			t.didNotTry++
		case trial.Succeeded:
			t.succeeded++
		default:
			t.failed++
		}
	}
	return t, nil
}

func validateInputs(personas []models.PersonaAttributes, scenario models.Scenario, card models.ScorecardParams, cfg models.SimulationConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(personas) < cfg.NumPersonas {
		return &models.ConfigError{
			Field:  "num_personas",
			Reason: fmt.Sprintf("requests %d personas but only %d are available", cfg.NumPersonas, len(personas)),
		}
	}
	for i, p := range personas[:cfg.NumPersonas] {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("persona %d: %w", i, err)
		}
	}
	if err := scenario.Validate(); err != nil {
		return err
	}
	return card.Validate()
}

// aggregate converts raw tallies into rates. Population rates are pooled
// counts over all trials.
func aggregate(population []models.PersonaAttributes, tallies []tally, executions int) *Result {
	n := float64(executions)
	res := &Result{
		Personas: make([]models.PersonaOutcome, len(tallies)),
		Trials:   len(tallies) * executions,
	}

	var total tally
	for i, t := range tallies {
		res.Personas[i] = models.PersonaOutcome{
			PersonaID:     population[i].ID,
			DidNotTryRate: float64(t.didNotTry) / n,
			FailedRate:    float64(t.failed) / n,
			SuccessRate:   float64(t.succeeded) / n,
		}
		total.didNotTry += t.didNotTry
		total.failed += t.failed
		total.succeeded += t.succeeded
	}

	trials := float64(res.Trials)
	res.Population = models.SimulationResult{
		DidNotTry: float64(total.didNotTry) / trials,
		Failed:    float64(total.failed) / trials,
		Success:   float64(total.succeeded) / trials,
	}
	return res
}

// checkAggregate verifies that pooled rates equal the mean of per-persona rates.
func checkAggregate(res *Result) error {
	var dnt, failed, success float64
	for _, o := range res.Personas {
		dnt += o.DidNotTryRate
		failed += o.FailedRate
		success += o.SuccessRate
	}
	n := float64(len(res.Personas))
	if math.Abs(dnt/n-res.Population.DidNotTry) > aggregateTolerance ||
		math.Abs(failed/n-res.Population.Failed) > aggregateTolerance ||
		math.Abs(success/n-res.Population.Success) > aggregateTolerance {
		return fmt.Errorf("population aggregate disagrees with persona mean: pooled=%+v", res.Population)
	}
	return nil
}
