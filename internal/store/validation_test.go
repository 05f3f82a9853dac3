package store

import (
	"context"
	"testing"

	"github.com/nvandessel/adoptsim/internal/models"
)

func TestValidateTree(t *testing.T) {
	tests := []struct {
		name   string
		nodes  []models.ScenarioNode
		issues []string
	}{
		{
			name: "valid",
			nodes: []models.ScenarioNode{
				testNode("r", "e", "", 0, 0.1, 0),
				testNode("a", "e", "r", 1, 0.2, 1),
				testNode("a1", "e", "a", 2, 0.3, 2),
			},
		},
		{
			name:  "empty",
			nodes: nil,
		},
		{
			name: "dangling parent",
			nodes: []models.ScenarioNode{
				testNode("r", "e", "", 0, 0.1, 0),
				testNode("a", "e", "ghost", 1, 0.2, 1),
			},
			issues: []string{"dangling-parent"},
		},
		{
			name: "depth mismatch",
			nodes: []models.ScenarioNode{
				testNode("r", "e", "", 0, 0.1, 0),
				testNode("a", "e", "r", 2, 0.2, 1),
			},
			issues: []string{"depth-mismatch"},
		},
		{
			name: "two roots",
			nodes: []models.ScenarioNode{
				testNode("r", "e", "", 0, 0.1, 0),
				testNode("s", "e", "", 0, 0.1, 1),
			},
			issues: []string{"multiple-roots"},
		},
		{
			name: "root depth",
			nodes: []models.ScenarioNode{
				testNode("r", "e", "", 1, 0.1, 0),
			},
			issues: []string{"root-depth"},
		},
		{
			name: "foreign node",
			nodes: []models.ScenarioNode{
				testNode("r", "e", "", 0, 0.1, 0),
				testNode("x", "other", "r", 1, 0.1, 1),
			},
			issues: []string{"foreign-parent", "foreign-parent"},
		},
		{
			name: "cycle without root",
			nodes: []models.ScenarioNode{
				testNode("a", "e", "b", 1, 0.1, 0),
				testNode("b", "e", "a", 2, 0.1, 1),
			},
			issues: []string{"depth-mismatch", "no-root", "cycle"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateTree("e", tt.nodes)
			if len(got) != len(tt.issues) {
				t.Fatalf("got %d issues %v, want %v", len(got), got, tt.issues)
			}
			for i, issue := range tt.issues {
				if got[i].Issue != issue {
					t.Errorf("issue %d = %s, want %s", i, got[i].Issue, issue)
				}
			}
		})
	}
}

func TestValidateExploration(t *testing.T) {
	s := NewInMemoryStore()
	seedTree(t, s)

	issues, err := ValidateExploration(context.Background(), s, "exp-1")
	if err != nil {
		t.Fatalf("ValidateExploration() error = %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("unexpected issues: %v", issues)
	}
}

func TestValidationError_String(t *testing.T) {
	e := ValidationError{NodeID: "a", RefID: "r", Issue: "depth-mismatch", Detail: "depth 2, parent depth 0"}
	want := "depth-mismatch: node a ref r (depth 2, parent depth 0)"
	if got := e.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
