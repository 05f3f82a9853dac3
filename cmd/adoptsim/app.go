package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nvandessel/adoptsim/internal/behavior"
	"github.com/nvandessel/adoptsim/internal/config"
	"github.com/nvandessel/adoptsim/internal/explore"
	"github.com/nvandessel/adoptsim/internal/llm"
	"github.com/nvandessel/adoptsim/internal/logging"
	"github.com/nvandessel/adoptsim/internal/models"
	"github.com/nvandessel/adoptsim/internal/persona"
	"github.com/nvandessel/adoptsim/internal/simulation"
	"github.com/nvandessel/adoptsim/internal/store"
)

// syntheticPopulationSize is the group size served when no population file
// is configured. Simulations use the first num_personas of it.
const syntheticPopulationSize = 1000

// app holds the components a command runs on, built from configuration.
type app struct {
	root      string
	dataDir   string
	cfg       *config.AdoptConfig
	logger    *slog.Logger
	store     store.Store
	personas  persona.Source
	engine    *simulation.Engine
	proposer  llm.Proposer
	decisions *logging.DecisionLogger
	registry  *prometheus.Registry
	metrics   *explore.Metrics
	driver    *explore.Driver
}

// loadConfig loads configuration for the command's --root and applies --log-level.
func loadConfig(cmd *cobra.Command) (string, *config.AdoptConfig, error) {
	root, _ := cmd.Flags().GetString("root")
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", nil, fmt.Errorf("resolve root: %w", err)
	}

	cfg, err := config.Load(absRoot)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return absRoot, cfg, nil
}

// newApp loads configuration and opens every component. Callers must Close it.
func newApp(cmd *cobra.Command) (*app, error) {
	root, cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return openApp(root, cfg, cmd.ErrOrStderr())
}

func openApp(root string, cfg *config.AdoptConfig, logOut io.Writer) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{
		root:     root,
		dataDir:  store.LocalDataPath(root),
		cfg:      cfg,
		logger:   logging.NewLogger(cfg.Logging.Level, logOut),
		registry: prometheus.NewRegistry(),
	}

	st, err := openStore(root, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.store = st

	if a.personas, err = openPersonas(cfg.Simulation); err != nil {
		a.Close()
		return nil, err
	}

	if a.proposer, err = llm.NewProposer(cfg.LLM.ClientConfig(), a.logger); err != nil {
		a.Close()
		return nil, fmt.Errorf("action proposer: %w", err)
	}

	a.engine = newEngine(cfg.Simulation, a.logger)
	a.decisions = logging.NewDecisionLogger(a.dataDir, cfg.Logging.Level)
	a.metrics = explore.MustNewMetrics(a.registry)
	a.driver = explore.NewDriver(a.store, a.personas, a.proposer, a.engine, explore.Options{
		Workers:           cfg.Exploration.Workers,
		ProposalTimeout:   cfg.Exploration.ProposalTimeout,
		EvaluationTimeout: cfg.Exploration.EvaluationTimeout,
		CacheSize:         cfg.Exploration.CacheSize,
		Logger:            a.logger,
		Decisions:         a.decisions,
		Metrics:           a.metrics,
	})
	return a, nil
}

func newEngine(cfg config.SimulationConfig, logger *slog.Logger) *simulation.Engine {
	return simulation.NewEngine(
		behavior.NewModel(behavior.DefaultWeights()),
		simulation.WithWorkers(cfg.Workers),
		simulation.WithLogger(logger),
	)
}

func openStore(root string, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewInMemoryStore(), nil
	case "", "sqlite":
		var (
			st  *store.SQLiteStore
			err error
		)
		if cfg.Path != "" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
			st, err = store.OpenSQLiteStore(cfg.Path)
		} else {
			st, err = store.NewSQLiteStore(root)
		}
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func openPersonas(cfg config.SimulationConfig) (persona.Source, error) {
	if cfg.PopulationFile != "" {
		src, err := persona.NewFileSource(cfg.PopulationFile)
		if err != nil {
			return nil, fmt.Errorf("persona source: %w", err)
		}
		return src, nil
	}
	return persona.SyntheticSource{
		Count: max(syntheticPopulationSize, cfg.NumPersonas),
		Seed:  cfg.PopulationSeed,
	}, nil
}

// Close releases the store and the decision log.
func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	errs = append(errs, a.decisions.Close())
	return errors.Join(errs...)
}

// params returns exploration params for groupID from configuration.
func (a *app) params(groupID string) (explore.Params, error) {
	scenario, err := a.cfg.Simulation.ScenarioValue()
	if err != nil {
		return explore.Params{}, err
	}
	p := explore.DefaultParams(groupID)
	p.Scenario = scenario
	p.Simulation = a.cfg.Simulation.Model()
	p.Goal = models.Goal{Type: models.GoalMinSuccessRate, Value: a.cfg.Exploration.GoalSuccessRate}
	p.MaxDepth = a.cfg.Exploration.MaxDepth
	p.BeamWidth = a.cfg.Exploration.BeamWidth
	return p, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
