package backup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nvandessel/adoptsim/internal/models"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		CreatedAt: baseTime,
		Explorations: []ExplorationTree{{
			Exploration: models.Exploration{ID: "exp-a", GroupID: "g", Status: models.ExplorationGoalAchieved, CreatedAt: baseTime, UpdatedAt: baseTime},
			Nodes: []models.ScenarioNode{
				{ID: "r", ExplorationID: "exp-a", Status: models.NodeEvaluated, CreatedAt: baseTime},
				{ID: "c", ExplorationID: "exp-a", ParentID: "r", Depth: 1, Status: models.NodeEvaluated, CreatedAt: baseTime},
			},
		}},
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.json.gz")
	snap := testSnapshot()

	header, err := Write(path, snap)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if header.Version != FormatVersion || !strings.HasPrefix(header.Checksum, "sha256:") {
		t.Errorf("header = %+v", header)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if diff := cmp.Diff(snap, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if diff := cmp.Diff(header, h); diff != "" {
		t.Errorf("header mismatch (-write +read):\n%s", diff)
	}
}

func TestRead_Tampered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.json.gz")
	if _, err := Write(path, testSnapshot()); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Verify(path); err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("Verify() error = %v, want checksum mismatch", err)
	}
	if _, err := Read(path); err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("Read() error = %v, want checksum mismatch", err)
	}
}

func TestRead_BadHeader(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"not json", "hello\n", "parsing header"},
		{"wrong version", `{"version":9}` + "\n", "unsupported backup version"},
		{"no newline", `{"version":1}`, "reading header line"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := Read(path); err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Read() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}
