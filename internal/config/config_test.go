package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// isolateEnv points HOME at an empty directory and clears variables that
// would leak into Load.
func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY",
		"ADOPTSIM_LLM_PROVIDER", "ADOPTSIM_LLM_API_KEY", "ADOPTSIM_SEED",
		"ADOPTSIM_NUM_PERSONAS", "ADOPTSIM_LOG_LEVEL", "ADOPTSIM_BEAM_WIDTH",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Simulation.NumPersonas != 50 || cfg.Simulation.NumExecutions != 200 {
		t.Errorf("simulation size = %d x %d, want 50 x 200", cfg.Simulation.NumPersonas, cfg.Simulation.NumExecutions)
	}
	if cfg.Simulation.Seed != nil {
		t.Error("expected no fixed seed by default")
	}
	if cfg.Exploration.GoalSuccessRate != 0.70 || cfg.Exploration.MaxDepth != 3 || cfg.Exploration.BeamWidth != 2 {
		t.Errorf("exploration defaults = %+v", cfg.Exploration)
	}
	if cfg.LLM.Provider != "heuristic" || !cfg.LLM.FallbackToRules {
		t.Errorf("llm defaults = %v", cfg.LLM)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("Store.Backend = %q, want sqlite", cfg.Store.Backend)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("TEST_ADOPTSIM_KEY", "sk-from-env-123456")
	path := filepath.Join(t.TempDir(), FileName)
	writeFile(t, path, `
simulation:
  num_personas: 30
  seed: 42
  scenario: crisis
exploration:
  beam_width: 4
  proposal_timeout: 10s
llm:
  provider: anthropic
  api_key: ${TEST_ADOPTSIM_KEY}
  timeout: 15s
logging:
  level: debug
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Simulation.NumPersonas != 30 {
		t.Errorf("NumPersonas = %d, want 30", cfg.Simulation.NumPersonas)
	}
	if cfg.Simulation.NumExecutions != 200 {
		t.Errorf("unset fields should keep defaults, NumExecutions = %d", cfg.Simulation.NumExecutions)
	}
	if cfg.Simulation.Seed == nil || *cfg.Simulation.Seed != 42 {
		t.Errorf("Seed = %v, want 42", cfg.Simulation.Seed)
	}
	if cfg.Exploration.BeamWidth != 4 || cfg.Exploration.ProposalTimeout != 10*time.Second {
		t.Errorf("exploration = %+v", cfg.Exploration)
	}
	if cfg.LLM.APIKey != "sk-from-env-123456" {
		t.Errorf("APIKey not expanded: %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", cfg.LLM.Timeout)
	}

	sc, err := cfg.Simulation.ScenarioValue()
	if err != nil || sc.Name != "crisis" {
		t.Errorf("ScenarioValue() = %+v, %v", sc, err)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), FileName)
	writeFile(t, path, "simulation: [not, a, map]\n")
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestLoad_Layering(t *testing.T) {
	home := isolateEnv(t)
	root := t.TempDir()

	writeFile(t, filepath.Join(home, ".adoptsim", FileName), `
simulation:
  num_personas: 10
  num_executions: 20
llm:
  provider: anthropic
`)
	writeFile(t, LocalPath(root), `
simulation:
  num_executions: 40
`)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env-key-000")
	t.Setenv("ADOPTSIM_SEED", "7")
	t.Setenv("ADOPTSIM_BEAM_WIDTH", "5")

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Simulation.NumPersonas != 10 {
		t.Errorf("NumPersonas = %d, want 10 from global file", cfg.Simulation.NumPersonas)
	}
	if cfg.Simulation.NumExecutions != 40 {
		t.Errorf("NumExecutions = %d, want 40 from project file", cfg.Simulation.NumExecutions)
	}
	if cfg.Simulation.Seed == nil || *cfg.Simulation.Seed != 7 {
		t.Errorf("Seed = %v, want 7 from env", cfg.Simulation.Seed)
	}
	if cfg.Exploration.BeamWidth != 5 {
		t.Errorf("BeamWidth = %d, want 5 from env", cfg.Exploration.BeamWidth)
	}
	if cfg.LLM.APIKey != "sk-ant-env-key-000" {
		t.Errorf("APIKey = %q, want provider env key", cfg.LLM.APIKey)
	}
}

func TestLoad_ProviderKeyOnlyForSelectedProvider(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("ADOPTSIM_LLM_PROVIDER", "anthropic")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.APIKey != "" {
		t.Errorf("APIKey = %q, OPENAI_API_KEY must not apply to anthropic", cfg.LLM.APIKey)
	}
}

func TestLoad_BadEnv(t *testing.T) {
	isolateEnv(t)
	t.Setenv("ADOPTSIM_NUM_PERSONAS", "many")
	if _, err := Load(""); err == nil {
		t.Error("expected error for non-numeric ADOPTSIM_NUM_PERSONAS")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AdoptConfig)
		wantErr string
	}{
		{"valid", func(*AdoptConfig) {}, ""},
		{"zero personas", func(c *AdoptConfig) { c.Simulation.NumPersonas = 0 }, "num_personas"},
		{"sigma too high", func(c *AdoptConfig) { c.Simulation.Sigma = 0.6 }, "sigma"},
		{"unknown scenario", func(c *AdoptConfig) { c.Simulation.Scenario = "holiday" }, "unknown scenario"},
		{"goal above one", func(c *AdoptConfig) { c.Exploration.GoalSuccessRate = 1.1 }, "goal_success_rate"},
		{"zero beam", func(c *AdoptConfig) { c.Exploration.BeamWidth = 0 }, "beam_width"},
		{"bad provider", func(c *AdoptConfig) { c.LLM.Provider = "ollama" }, "invalid provider"},
		{"bad backend", func(c *AdoptConfig) { c.Store.Backend = "postgres" }, "invalid store backend"},
		{"bad level", func(c *AdoptConfig) { c.Logging.Level = "loud" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestSetAndSave(t *testing.T) {
	cfg := Default()

	if err := cfg.Set("exploration.beam_width", "3"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := cfg.Set("simulation.seed", "99"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := cfg.Set("llm.timeout", "45s"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := cfg.Set("exploration.beam_width", "0"); err == nil {
		t.Error("Set() should reject values that fail validation")
	}
	if cfg.Exploration.BeamWidth != 3 {
		t.Errorf("rejected Set() changed BeamWidth to %d", cfg.Exploration.BeamWidth)
	}
	if err := cfg.Set("no.such.key", "1"); err == nil {
		t.Error("Set() should reject unknown keys")
	}
	if err := cfg.Set("simulation.num_personas", "lots"); err == nil {
		t.Error("Set() should reject unparsable values")
	}

	path := filepath.Join(t.TempDir(), "nested", FileName)
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestKeys(t *testing.T) {
	keys := Keys()
	if len(keys) == 0 {
		t.Fatal("no keys")
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("keys not sorted: %q >= %q", keys[i-1], keys[i])
		}
	}
}

func TestLLMConfig_Redaction(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"short", "(set)"},
		{"sk-ant-abcdefghijklmnop", "sk-a...mnop"},
	}
	for _, tt := range tests {
		c := LLMConfig{Provider: "anthropic", APIKey: tt.key}
		if got := c.RedactedAPIKey(); got != tt.want {
			t.Errorf("RedactedAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
		if tt.key != "" && strings.Contains(c.String(), tt.key) {
			t.Errorf("String() leaks the key: %s", c.String())
		}
	}

	cfg := Default()
	cfg.LLM.APIKey = "sk-ant-abcdefghijklmnop"
	if red := cfg.Redacted(); red.LLM.APIKey != "sk-a...mnop" || cfg.LLM.APIKey == red.LLM.APIKey {
		t.Errorf("Redacted() = %q", red.LLM.APIKey)
	}
}

func TestClientConfig(t *testing.T) {
	c := LLMConfig{Provider: "openai", APIKey: "k", Model: "m", RequestsPerMinute: 30, Burst: 2, FallbackToRules: true}
	cc := c.ClientConfig()
	if cc.Provider != "openai" || cc.Model != "m" || cc.RequestsPerMinute != 30 || cc.Burst != 2 || !cc.FallbackToRules {
		t.Errorf("ClientConfig() = %+v", cc)
	}
}
