// Package config provides unified configuration loading for adoptsim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/adoptsim/internal/constants"
	"github.com/nvandessel/adoptsim/internal/llm"
	"github.com/nvandessel/adoptsim/internal/models"
)

// FileName is the config file name inside a data directory.
const FileName = "config.yaml"

// AdoptConfig contains all adoptsim configuration settings.
type AdoptConfig struct {
	// Simulation sizes each Monte Carlo run.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Exploration shapes beam searches.
	Exploration ExplorationConfig `json:"exploration" yaml:"exploration"`

	// LLM selects the action proposer.
	LLM LLMConfig `json:"llm" yaml:"llm"`

	// Store selects where explorations are persisted.
	Store StoreConfig `json:"store" yaml:"store"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimulationConfig sizes simulation runs and names their inputs.
type SimulationConfig struct {
	NumPersonas   int     `json:"num_personas" yaml:"num_personas" env:"ADOPTSIM_NUM_PERSONAS"`
	NumExecutions int     `json:"num_executions" yaml:"num_executions" env:"ADOPTSIM_NUM_EXECUTIONS"`
	Sigma         float64 `json:"sigma" yaml:"sigma" env:"ADOPTSIM_SIGMA"`

	// Seed fixes the random stream. Unset means a fresh seed per run.
	Seed *uint64 `json:"seed,omitempty" yaml:"seed,omitempty" env:"ADOPTSIM_SEED"`

	// Workers bounds the persona worker pool. Zero means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers" env:"ADOPTSIM_WORKERS"`

	// Scenario names a preset: baseline, crisis or first-use.
	Scenario string `json:"scenario" yaml:"scenario" env:"ADOPTSIM_SCENARIO"`

	// PopulationFile is a YAML persona file. Empty selects a synthetic population.
	PopulationFile string `json:"population_file,omitempty" yaml:"population_file,omitempty" env:"ADOPTSIM_POPULATION_FILE"`

	// PopulationSeed seeds the synthetic population.
	PopulationSeed uint64 `json:"population_seed" yaml:"population_seed" env:"ADOPTSIM_POPULATION_SEED"`
}

// Model returns the engine's view of the config.
func (c SimulationConfig) Model() models.SimulationConfig {
	return models.SimulationConfig{
		NumPersonas:   c.NumPersonas,
		NumExecutions: c.NumExecutions,
		Sigma:         c.Sigma,
		Seed:          c.Seed,
	}
}

// ScenarioValue resolves the scenario preset.
func (c SimulationConfig) ScenarioValue() (models.Scenario, error) {
	name := c.Scenario
	if name == "" {
		name = "baseline"
	}
	sc, ok := models.ScenarioPreset(name)
	if !ok {
		return models.Scenario{}, fmt.Errorf("unknown scenario %q (valid: %s)", name, strings.Join(models.ScenarioPresetNames(), ", "))
	}
	return sc, nil
}

// ExplorationConfig shapes beam searches.
type ExplorationConfig struct {
	GoalSuccessRate   float64       `json:"goal_success_rate" yaml:"goal_success_rate" env:"ADOPTSIM_GOAL_SUCCESS_RATE"`
	MaxDepth          int           `json:"max_depth" yaml:"max_depth" env:"ADOPTSIM_MAX_DEPTH"`
	BeamWidth         int           `json:"beam_width" yaml:"beam_width" env:"ADOPTSIM_BEAM_WIDTH"`
	Workers           int           `json:"workers" yaml:"workers" env:"ADOPTSIM_EXPLORE_WORKERS"`
	ProposalTimeout   time.Duration `json:"proposal_timeout" yaml:"proposal_timeout" env:"ADOPTSIM_PROPOSAL_TIMEOUT"`
	EvaluationTimeout time.Duration `json:"evaluation_timeout" yaml:"evaluation_timeout" env:"ADOPTSIM_EVALUATION_TIMEOUT"`
	CacheSize         int           `json:"cache_size" yaml:"cache_size" env:"ADOPTSIM_CACHE_SIZE"`
}

// LLMConfig configures the action proposer.
type LLMConfig struct {
	// Provider identifies the backend: "anthropic", "openai", "subagent" or "heuristic".
	Provider string `json:"provider" yaml:"provider" env:"ADOPTSIM_LLM_PROVIDER"`

	// APIKey is the API key for the provider. Supports ${VAR} syntax for env vars.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" env:"ADOPTSIM_LLM_API_KEY"`

	// BaseURL overrides the API endpoint, e.g. for OpenAI-compatible servers.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" env:"ADOPTSIM_LLM_BASE_URL"`

	// Model is the model name. Empty selects the provider default.
	Model string `json:"model,omitempty" yaml:"model,omitempty" env:"ADOPTSIM_LLM_MODEL"`

	// Timeout is the maximum duration to wait for one response.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"ADOPTSIM_LLM_TIMEOUT"`

	// FallbackToRules answers with the heuristic proposer when the
	// provider is unavailable or fails.
	FallbackToRules bool `json:"fallback_to_rules" yaml:"fallback_to_rules" env:"ADOPTSIM_LLM_FALLBACK"`

	// RequestsPerMinute paces provider calls. Zero disables pacing.
	RequestsPerMinute float64 `json:"requests_per_minute" yaml:"requests_per_minute" env:"ADOPTSIM_LLM_RPM"`
	Burst             int     `json:"burst" yaml:"burst" env:"ADOPTSIM_LLM_BURST"`
}

// RedactedAPIKey returns the API key with most characters masked.
// Shows first 4 and last 4 characters, e.g., "sk-a...xyz9".
// Returns "" for empty keys and "(set)" for keys shorter than 12 chars.
func (c LLMConfig) RedactedAPIKey() string {
	if c.APIKey == "" {
		return ""
	}
	if len(c.APIKey) < 12 {
		return "(set)"
	}
	return c.APIKey[:4] + "..." + c.APIKey[len(c.APIKey)-4:]
}

// String implements fmt.Stringer to prevent accidental API key logging.
func (c LLMConfig) String() string {
	return fmt.Sprintf("LLMConfig{Provider:%s, APIKey:%s, Model:%s, Fallback:%t}",
		c.Provider, c.RedactedAPIKey(), c.Model, c.FallbackToRules)
}

// ClientConfig converts to the proposer factory's config.
func (c LLMConfig) ClientConfig() llm.ClientConfig {
	return llm.ClientConfig{
		Provider:          c.Provider,
		APIKey:            c.APIKey,
		BaseURL:           c.BaseURL,
		Model:             c.Model,
		Timeout:           c.Timeout,
		FallbackToRules:   c.FallbackToRules,
		RequestsPerMinute: c.RequestsPerMinute,
		Burst:             c.Burst,
	}
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is "sqlite" (default) or "memory".
	Backend string `json:"backend" yaml:"backend" env:"ADOPTSIM_STORE"`

	// Path overrides the SQLite database location.
	Path string `json:"path,omitempty" yaml:"path,omitempty" env:"ADOPTSIM_DB_PATH"`
}

// LoggingConfig configures adoptsim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to .adoptsim/decisions.jsonl.
	// "trace" additionally includes full proposer prompt/response content.
	Level string `json:"level" yaml:"level" env:"ADOPTSIM_LOG_LEVEL"`
}

// Default returns an AdoptConfig with sensible defaults.
func Default() *AdoptConfig {
	return &AdoptConfig{
		Simulation: SimulationConfig{
			NumPersonas:    constants.DefaultNumPersonas,
			NumExecutions:  constants.DefaultNumExecutions,
			Sigma:          constants.DefaultSigma,
			Scenario:       "baseline",
			PopulationSeed: 1,
		},
		Exploration: ExplorationConfig{
			GoalSuccessRate:   constants.DefaultGoalSuccessRate,
			MaxDepth:          constants.DefaultMaxDepth,
			BeamWidth:         constants.DefaultBeamWidth,
			ProposalTimeout:   constants.DefaultProposalTimeout,
			EvaluationTimeout: constants.DefaultEvaluationTimeout,
			CacheSize:         constants.DefaultEvaluationCacheSize,
		},
		LLM: LLMConfig{
			Provider:        llm.ProviderHeuristic,
			Timeout:         30 * time.Second,
			FallbackToRules: true,
			Burst:           4,
		},
		Store: StoreConfig{
			Backend: "sqlite",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// GlobalPath returns ~/.adoptsim/config.yaml.
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, constants.DataDirName, FileName), nil
}

// LocalPath returns <root>/.adoptsim/config.yaml.
func LocalPath(root string) string {
	return filepath.Join(root, constants.DataDirName, FileName)
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.adoptsim/config.yaml -> <root>/.adoptsim/config.yaml -> environment.
// An empty root skips the project file.
func Load(root string) (*AdoptConfig, error) {
	cfg := Default()

	var paths []string
	if global, err := GlobalPath(); err == nil {
		paths = append(paths, global)
	}
	if root != "" {
		paths = append(paths, LocalPath(root))
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := mergeFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file over defaults.
func LoadFromFile(path string) (*AdoptConfig, error) {
	cfg := Default()
	if err := mergeFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFile(cfg *AdoptConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	cfg.LLM.APIKey = expandEnvVars(cfg.LLM.APIKey)
	return nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *AdoptConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c *AdoptConfig) Redacted() AdoptConfig {
	cp := *c
	cp.LLM.APIKey = c.LLM.RedactedAPIKey()
	return cp
}

// Validate checks that the configuration is valid.
func (c *AdoptConfig) Validate() error {
	if err := c.Simulation.Model().Validate(); err != nil {
		return err
	}
	if c.Simulation.Workers < 0 {
		return fmt.Errorf("simulation.workers must be non-negative, got %d", c.Simulation.Workers)
	}
	if _, err := c.Simulation.ScenarioValue(); err != nil {
		return err
	}

	e := c.Exploration
	if e.GoalSuccessRate < 0 || e.GoalSuccessRate > 1 {
		return fmt.Errorf("exploration.goal_success_rate must be between 0 and 1, got %f", e.GoalSuccessRate)
	}
	if e.MaxDepth < 1 {
		return fmt.Errorf("exploration.max_depth must be >= 1, got %d", e.MaxDepth)
	}
	if e.BeamWidth < 1 {
		return fmt.Errorf("exploration.beam_width must be >= 1, got %d", e.BeamWidth)
	}
	if e.ProposalTimeout < 0 || e.EvaluationTimeout < 0 {
		return fmt.Errorf("exploration timeouts must be non-negative")
	}

	if c.LLM.Timeout < 0 {
		return fmt.Errorf("llm.timeout must be non-negative, got %v", c.LLM.Timeout)
	}
	if c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("llm.requests_per_minute must be non-negative, got %v", c.LLM.RequestsPerMinute)
	}
	validProviders := map[string]bool{
		"": true, llm.ProviderAnthropic: true, llm.ProviderOpenAI: true,
		llm.ProviderSubagent: true, llm.ProviderHeuristic: true,
	}
	if !validProviders[c.LLM.Provider] {
		return fmt.Errorf("invalid provider: %s (valid: anthropic, openai, subagent, heuristic)", c.LLM.Provider)
	}

	switch c.Store.Backend {
	case "", "sqlite", "memory":
	default:
		return fmt.Errorf("invalid store backend: %s (valid: sqlite, memory)", c.Store.Backend)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}
	return nil
}

// applyEnvOverrides applies ADOPTSIM_* variables, then the provider's
// conventional API key variable when no key is configured.
func applyEnvOverrides(cfg *AdoptConfig) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case llm.ProviderAnthropic:
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case llm.ProviderOpenAI:
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	cfg.LLM.APIKey = expandEnvVars(cfg.LLM.APIKey)
	return nil
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}

// setters maps dotted keys to string setters for `config set`.
var setters = map[string]func(c *AdoptConfig, v string) error{
	"simulation.num_personas":        intSetter(func(c *AdoptConfig) *int { return &c.Simulation.NumPersonas }),
	"simulation.num_executions":      intSetter(func(c *AdoptConfig) *int { return &c.Simulation.NumExecutions }),
	"simulation.sigma":               floatSetter(func(c *AdoptConfig) *float64 { return &c.Simulation.Sigma }),
	"simulation.workers":             intSetter(func(c *AdoptConfig) *int { return &c.Simulation.Workers }),
	"simulation.scenario":            stringSetter(func(c *AdoptConfig) *string { return &c.Simulation.Scenario }),
	"simulation.population_file":     stringSetter(func(c *AdoptConfig) *string { return &c.Simulation.PopulationFile }),
	"exploration.goal_success_rate":  floatSetter(func(c *AdoptConfig) *float64 { return &c.Exploration.GoalSuccessRate }),
	"exploration.max_depth":          intSetter(func(c *AdoptConfig) *int { return &c.Exploration.MaxDepth }),
	"exploration.beam_width":         intSetter(func(c *AdoptConfig) *int { return &c.Exploration.BeamWidth }),
	"exploration.workers":            intSetter(func(c *AdoptConfig) *int { return &c.Exploration.Workers }),
	"exploration.proposal_timeout":   durationSetter(func(c *AdoptConfig) *time.Duration { return &c.Exploration.ProposalTimeout }),
	"exploration.evaluation_timeout": durationSetter(func(c *AdoptConfig) *time.Duration { return &c.Exploration.EvaluationTimeout }),
	"llm.provider":                   stringSetter(func(c *AdoptConfig) *string { return &c.LLM.Provider }),
	"llm.api_key":                    stringSetter(func(c *AdoptConfig) *string { return &c.LLM.APIKey }),
	"llm.base_url":                   stringSetter(func(c *AdoptConfig) *string { return &c.LLM.BaseURL }),
	"llm.model":                      stringSetter(func(c *AdoptConfig) *string { return &c.LLM.Model }),
	"llm.timeout":                    durationSetter(func(c *AdoptConfig) *time.Duration { return &c.LLM.Timeout }),
	"llm.requests_per_minute":        floatSetter(func(c *AdoptConfig) *float64 { return &c.LLM.RequestsPerMinute }),
	"store.backend":                  stringSetter(func(c *AdoptConfig) *string { return &c.Store.Backend }),
	"store.path":                     stringSetter(func(c *AdoptConfig) *string { return &c.Store.Path }),
	"logging.level":                  stringSetter(func(c *AdoptConfig) *string { return &c.Logging.Level }),
	"llm.fallback_to_rules": func(c *AdoptConfig, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.LLM.FallbackToRules = b
		return nil
	},
	"simulation.seed": func(c *AdoptConfig, v string) error {
		if v == "" || v == "none" {
			c.Simulation.Seed = nil
			return nil
		}
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return err
		}
		c.Simulation.Seed = &n
		return nil
	},
}

// Keys returns the settable keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns a dotted key from its string form and validates the result.
func (c *AdoptConfig) Set(key, value string) error {
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}
	next := *c
	if err := set(&next, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

func intSetter(field func(*AdoptConfig) *int) func(*AdoptConfig, string) error {
	return func(c *AdoptConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatSetter(field func(*AdoptConfig) *float64) func(*AdoptConfig, string) error {
	return func(c *AdoptConfig, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func durationSetter(field func(*AdoptConfig) *time.Duration) func(*AdoptConfig, string) error {
	return func(c *AdoptConfig, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

func stringSetter(field func(*AdoptConfig) *string) func(*AdoptConfig, string) error {
	return func(c *AdoptConfig, v string) error {
		*field(c) = v
		return nil
	}
}
