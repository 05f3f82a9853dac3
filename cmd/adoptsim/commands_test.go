package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/adoptsim/internal/config"
	"github.com/nvandessel/adoptsim/internal/constants"
	"github.com/nvandessel/adoptsim/internal/store"
)

func TestInitCmd(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	got := mustRunJSON(t, tmpDir, "init")
	if got["created_config"] != true {
		t.Errorf("created_config = %v, want true", got["created_config"])
	}
	for _, name := range []string{config.FileName, store.DatabaseFile} {
		if _, err := os.Stat(filepath.Join(tmpDir, constants.DataDirName, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	// A second init keeps the existing config.
	got = mustRunJSON(t, tmpDir, "init")
	if got["created_config"] != false {
		t.Errorf("second init created_config = %v, want false", got["created_config"])
	}
}

func TestSimulateCmd(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	got := mustRunJSON(t, tmpDir, "simulate", "--group", "novices", "--seed", "9", "--scenario", "crisis")
	if got["seed"] != float64(9) {
		t.Errorf("seed = %v, want 9", got["seed"])
	}
	if got["trials"] != float64(400) {
		t.Errorf("trials = %v, want 400", got["trials"])
	}
	if got["scenario"] != "crisis" {
		t.Errorf("scenario = %v, want crisis", got["scenario"])
	}
	pop := got["population"].(map[string]any)
	sum := pop["did_not_try"].(float64) + pop["failed"].(float64) + pop["success"].(float64)
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("outcome rates sum to %v, want 1", sum)
	}
	if _, ok := got["personas"]; ok {
		t.Error("personas included without --detail")
	}

	again := mustRunJSON(t, tmpDir, "simulate", "--group", "novices", "--seed", "9", "--scenario", "crisis")
	if again["population"].(map[string]any)["success"] != pop["success"] {
		t.Error("same seed produced different success rates")
	}

	if _, err := os.Stat(filepath.Join(tmpDir, constants.DataDirName)); !os.IsNotExist(err) {
		t.Errorf("simulate created a data directory: %v", err)
	}
}

func TestSimulateCmdErrors(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing group", []string{"simulate"}, "--group is required"},
		{"unknown scenario", []string{"simulate", "--group", "g", "--scenario", "panic"}, "panic"},
		{"zero personas", []string{"simulate", "--group", "g", "--personas", "0"}, "num_personas"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCmd(t, tmpDir, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestExploreWorkflow(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	got := mustRunJSON(t, tmpDir, "explore",
		"--group", "novices", "--context", "bulk import",
		"--max-depth", "2", "--beam", "2", "--seed", "3")
	exp := got["exploration"].(map[string]any)
	id := exp["id"].(string)
	if status := exp["status"]; status != "goal_achieved" && status != "max_depth_reached" {
		t.Fatalf("status = %v", status)
	}
	path := got["winning_path"].([]any)
	if len(path) == 0 {
		t.Fatal("empty winning path")
	}
	if first := path[0].(map[string]any); first["depth"] != float64(0) {
		t.Errorf("path starts at depth %v, want 0", first["depth"])
	}

	t.Run("list", func(t *testing.T) {
		got := mustRunJSON(t, tmpDir, "list")
		if got["count"] != float64(1) {
			t.Errorf("count = %v, want 1", got["count"])
		}
		got = mustRunJSON(t, tmpDir, "list", "--group", "someone-else")
		if got["count"] != float64(0) {
			t.Errorf("filtered count = %v, want 0", got["count"])
		}
		if _, err := runCmd(t, tmpDir, "list", "--status", "done"); err == nil {
			t.Error("expected error for invalid status")
		}
	})

	t.Run("show", func(t *testing.T) {
		got := mustRunJSON(t, tmpDir, "show", id)
		nodes := got["nodes"].([]any)
		if want := exp["total_nodes"].(float64); float64(len(nodes)) != want {
			t.Errorf("nodes = %d, want %v", len(nodes), want)
		}
		out, err := runCmd(t, tmpDir, "show", id)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, "baseline") {
			t.Errorf("show output missing baseline row:\n%s", out)
		}
	})

	t.Run("path", func(t *testing.T) {
		got := mustRunJSON(t, tmpDir, "path", id)
		if n := len(got["winning_path"].([]any)); n != len(path) {
			t.Errorf("path length = %d, want %d", n, len(path))
		}
		if _, err := runCmd(t, tmpDir, "path", "missing"); err == nil {
			t.Error("expected error for unknown exploration")
		}
	})

	t.Run("graph", func(t *testing.T) {
		out, err := runCmd(t, tmpDir, "graph", id)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(out, "digraph exploration {") {
			t.Errorf("DOT output = %q", out)
		}
		got := mustRunJSON(t, tmpDir, "graph", id, "--format", "json")
		if got["node_count"] != exp["total_nodes"] {
			t.Errorf("node_count = %v, want %v", got["node_count"], exp["total_nodes"])
		}
		htmlPath := filepath.Join(tmpDir, "tree.html")
		if _, err := runCmd(t, tmpDir, "graph", id, "--format", "html", "-o", htmlPath, "--no-open"); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(htmlPath)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "<html") {
			t.Error("HTML output missing <html")
		}
		if _, err := runCmd(t, tmpDir, "graph"); err == nil {
			t.Error("expected error without an ID or --serve")
		}
		if _, err := runCmd(t, tmpDir, "graph", id, "--format", "svg"); err == nil {
			t.Error("expected error for unknown format")
		}
	})

	t.Run("validate", func(t *testing.T) {
		got := mustRunJSON(t, tmpDir, "validate")
		if got["valid"] != true || got["checked"] != float64(1) {
			t.Errorf("validate = %v", got)
		}
	})

	t.Run("export delete import", func(t *testing.T) {
		file := filepath.Join(tmpDir, "run.jsonl")
		if _, err := runCmd(t, tmpDir, "export", id, "-o", file); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(file)
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Count(string(data), "\n")
		if want := int(exp["total_nodes"].(float64)) + 1; lines != want {
			t.Errorf("export lines = %d, want %d", lines, want)
		}

		mustRunJSON(t, tmpDir, "delete", id)
		if got := mustRunJSON(t, tmpDir, "list"); got["count"] != float64(0) {
			t.Errorf("count after delete = %v, want 0", got["count"])
		}

		got := mustRunJSON(t, tmpDir, "import", file)
		if got["id"] != id {
			t.Errorf("imported id = %v, want %s", got["id"], id)
		}
		if got := mustRunJSON(t, tmpDir, "show", id); len(got["nodes"].([]any)) != int(exp["total_nodes"].(float64)) {
			t.Error("imported node count differs")
		}
	})
}

func TestExploreCmdErrors(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing group", []string{"explore"}, "--group is required"},
		{"goal out of range", []string{"explore", "--group", "g", "--goal", "1.5"}, "goal_success_rate"},
		{"zero beam", []string{"explore", "--group", "g", "--beam", "0"}, "beam_width"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCmd(t, tmpDir, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestConfigCmd(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	got := mustRunJSON(t, tmpDir, "config", "set", "exploration.beam_width", "5")
	if got["path"] != config.LocalPath(tmpDir) {
		t.Errorf("path = %v, want %s", got["path"], config.LocalPath(tmpDir))
	}

	got = mustRunJSON(t, tmpDir, "config", "get", "exploration.beam_width")
	if got["value"] != float64(5) {
		t.Errorf("beam_width = %v, want 5", got["value"])
	}

	if _, err := runCmd(t, tmpDir, "config", "set", "exploration.beam_width", "0"); err == nil {
		t.Error("expected validation error for beam_width 0")
	}
	if _, err := runCmd(t, tmpDir, "config", "set", "nope.key", "1"); err == nil {
		t.Error("expected error for unknown key")
	}

	mustRunJSON(t, tmpDir, "config", "set", "llm.api_key", "sk-abcdefghijklmnop")
	got = mustRunJSON(t, tmpDir, "config", "get", "llm.api_key")
	if got["value"] != "sk-a...mnop" {
		t.Errorf("api_key = %v, want redacted", got["value"])
	}

	out, err := runCmd(t, tmpDir, "config", "list")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "sk-abcdefghijklmnop") {
		t.Error("config list leaked the API key")
	}
	if !strings.Contains(out, "beam_width: 5") {
		t.Errorf("config list missing beam_width:\n%s", out)
	}

	info, err := os.Stat(config.LocalPath(tmpDir))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config mode = %o, want 600", perm)
	}
}

func TestGetConfigValue(t *testing.T) {
	cfg := config.Default()
	tests := []struct {
		key     string
		want    any
		wantErr bool
	}{
		{"llm.provider", "heuristic", false},
		{"exploration.max_depth", float64(cfg.Exploration.MaxDepth), false},
		{"simulation.seed", nil, false},
		{"store.backend", "sqlite", false},
		{"nope", nil, true},
		{"simulation.nope", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := getConfigValue(cfg, tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("getConfigValue(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestBackupCmd(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	exp := mustRunJSON(t, tmpDir, "explore", "--group", "g", "--max-depth", "1", "--beam", "1", "--seed", "5")
	id := exp["exploration"].(map[string]any)["id"].(string)

	got := mustRunJSON(t, tmpDir, "backup", "create")
	path := got["path"].(string)
	if filepath.Dir(path) != filepath.Join(tmpDir, constants.DataDirName, constants.BackupDirName) {
		t.Errorf("backup path = %s", path)
	}
	if header := got["header"].(map[string]any); header["exploration_count"] != float64(1) {
		t.Errorf("exploration_count = %v, want 1", header["exploration_count"])
	}

	if got := mustRunJSON(t, tmpDir, "backup", "verify", path); got["valid"] != true {
		t.Errorf("verify = %v", got)
	}
	if got := mustRunJSON(t, tmpDir, "backup", "list"); got["count"] != float64(1) {
		t.Errorf("list count = %v, want 1", got["count"])
	}

	mustRunJSON(t, tmpDir, "delete", id)
	got = mustRunJSON(t, tmpDir, "backup", "restore", path)
	if got["explorations_restored"] != float64(1) {
		t.Errorf("restore = %v", got)
	}
	got = mustRunJSON(t, tmpDir, "backup", "restore", path)
	if got["explorations_skipped"] != float64(1) {
		t.Errorf("second restore = %v, want skipped", got)
	}

	outside := filepath.Join(t.TempDir(), "b.json.gz")
	if _, err := runCmd(t, tmpDir, "backup", "create", "-o", outside); err == nil {
		t.Error("expected error for backup outside allowed directories")
	}

	// Backup names carry millisecond timestamps.
	time.Sleep(5 * time.Millisecond)
	mustRunJSON(t, tmpDir, "backup", "create")
	time.Sleep(5 * time.Millisecond)
	got = mustRunJSON(t, tmpDir, "backup", "create", "--keep", "1")
	if deleted := got["deleted"].([]any); len(deleted) != 2 {
		t.Errorf("deleted = %d, want 2", len(deleted))
	}
}
