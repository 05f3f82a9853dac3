package explore

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nvandessel/adoptsim/internal/models"
	"github.com/nvandessel/adoptsim/internal/store"
)

var pathEpoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func pathNode(id, parent string, depth int, success float64, minute int) models.ScenarioNode {
	n := models.ScenarioNode{
		ID:            id,
		ExplorationID: "exp",
		ParentID:      parent,
		Depth:         depth,
		Status:        models.NodeEvaluated,
		CreatedAt:     pathEpoch.Add(time.Duration(minute) * time.Minute),
	}
	if success >= 0 {
		n.SimulationResults = &models.SimulationResult{Success: success, DidNotTry: 1 - success}
	}
	return n
}

func pathIDs(path []models.ScenarioNode) []string {
	ids := make([]string, len(path))
	for i, n := range path {
		ids[i] = n.ID
	}
	return ids
}

func TestSelectWinningPath(t *testing.T) {
	tests := []struct {
		name  string
		nodes []models.ScenarioNode
		want  []string
	}{
		{
			name:  "empty",
			nodes: nil,
			want:  []string{},
		},
		{
			name:  "root only",
			nodes: []models.ScenarioNode{pathNode("root", "", 0, 0.3, 0)},
			want:  []string{"root"},
		},
		{
			name: "highest success wins",
			nodes: []models.ScenarioNode{
				pathNode("root", "", 0, 0.3, 0),
				pathNode("a", "root", 1, 0.4, 1),
				pathNode("b", "root", 1, 0.5, 2),
				pathNode("a1", "a", 2, 0.6, 3),
			},
			want: []string{"root", "a", "a1"},
		},
		{
			name: "equal success prefers shallower leaf",
			nodes: []models.ScenarioNode{
				pathNode("root", "", 0, 0.3, 0),
				pathNode("a", "root", 1, 0.5, 1),
				pathNode("b", "root", 1, 0.4, 2),
				pathNode("b1", "b", 2, 0.5, 3),
			},
			want: []string{"root", "a"},
		},
		{
			name: "equal success and depth prefers earlier leaf",
			nodes: []models.ScenarioNode{
				pathNode("root", "", 0, 0.3, 0),
				pathNode("late", "root", 1, 0.5, 5),
				pathNode("early", "root", 1, 0.5, 1),
			},
			want: []string{"root", "early"},
		},
		{
			name: "full tie falls back to ID",
			nodes: []models.ScenarioNode{
				pathNode("root", "", 0, 0.3, 0),
				pathNode("y", "root", 1, 0.5, 1),
				pathNode("x", "root", 1, 0.5, 1),
			},
			want: []string{"root", "x"},
		},
		{
			name: "unevaluated leaf ranks last",
			nodes: []models.ScenarioNode{
				pathNode("root", "", 0, 0.3, 0),
				pathNode("failed", "root", 1, -1, 1),
				pathNode("ok", "root", 1, 0.01, 2),
			},
			want: []string{"root", "ok"},
		},
		{
			name: "interior node is never a leaf",
			nodes: []models.ScenarioNode{
				pathNode("root", "", 0, 0.3, 0),
				pathNode("a", "root", 1, 0.9, 1),
				pathNode("a1", "a", 2, 0.2, 2),
				pathNode("b", "root", 1, 0.1, 3),
			},
			want: []string{"root", "a", "a1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := SelectWinningPath(tt.nodes)
			if err != nil {
				t.Fatalf("SelectWinningPath() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, pathIDs(path)); diff != "" {
				t.Errorf("path mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSelectWinningPath_DanglingParent(t *testing.T) {
	nodes := []models.ScenarioNode{
		pathNode("root", "", 0, 0.3, 0),
		pathNode("orphan", "ghost", 2, 0.9, 1),
	}
	if _, err := SelectWinningPath(nodes); err == nil {
		t.Error("expected error for dangling parent")
	}
}

func TestWinningPath_FromStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	exp, err := NewExploration(testParams(), pathEpoch)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.CreateExploration(ctx, exp); err != nil {
		t.Fatal(err)
	}

	nodes := []models.ScenarioNode{
		pathNode("root", "", 0, 0.3, 0),
		pathNode("a", "root", 1, 0.45, 1),
		pathNode("b", "root", 1, 0.45, 2),
	}
	for _, n := range nodes {
		n.ExplorationID = exp.ID
		if err := st.CreateNode(ctx, n); err != nil {
			t.Fatalf("CreateNode(%s) error = %v", n.ID, err)
		}
	}

	path, err := WinningPath(ctx, st, exp.ID)
	if err != nil {
		t.Fatalf("WinningPath() error = %v", err)
	}
	if diff := cmp.Diff([]string{"root", "a"}, pathIDs(path)); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}

	empty, err := WinningPath(ctx, st, "no-such-exploration")
	if err == nil && len(empty) != 0 {
		t.Errorf("unknown exploration should give an empty path or error, got %v", pathIDs(empty))
	}
}
