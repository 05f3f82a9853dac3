package store

import (
	"context"
	"fmt"

	"github.com/nvandessel/adoptsim/internal/models"
)

// ValidationError describes one structural problem in an exploration tree.
type ValidationError struct {
	NodeID string `json:"node_id"`
	RefID  string `json:"ref_id,omitempty"` // the related node, usually the parent
	Issue  string `json:"issue"`            // "dangling-parent", "depth-mismatch", "root-depth", "multiple-roots", "no-root", "foreign-parent", "cycle"
	Detail string `json:"detail,omitempty"`
}

// String returns a human-readable description of the validation error.
func (e ValidationError) String() string {
	s := fmt.Sprintf("%s: node %s", e.Issue, e.NodeID)
	if e.RefID != "" {
		s += " ref " + e.RefID
	}
	if e.Detail != "" {
		s += " (" + e.Detail + ")"
	}
	return s
}

// ValidateExploration loads an exploration's nodes and checks the tree.
func ValidateExploration(ctx context.Context, s NodeStore, explorationID string) ([]ValidationError, error) {
	nodes, err := s.GetNodesByExploration(ctx, explorationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes: %w", err)
	}
	return ValidateTree(explorationID, nodes), nil
}

// ValidateTree checks that nodes form a single rooted tree whose depths
// increase by one along every parent link.
func ValidateTree(explorationID string, nodes []models.ScenarioNode) []ValidationError {
	if len(nodes) == 0 {
		return nil
	}

	var issues []ValidationError
	byID := make(map[string]models.ScenarioNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	var roots []string
	for _, n := range nodes {
		if n.ExplorationID != explorationID {
			issues = append(issues, ValidationError{NodeID: n.ID, Issue: "foreign-parent",
				Detail: fmt.Sprintf("node belongs to exploration %s", n.ExplorationID)})
		}
		if n.IsRoot() {
			roots = append(roots, n.ID)
			if n.Depth != 0 {
				issues = append(issues, ValidationError{NodeID: n.ID, Issue: "root-depth",
					Detail: fmt.Sprintf("depth %d", n.Depth)})
			}
			continue
		}
		parent, ok := byID[n.ParentID]
		if !ok {
			issues = append(issues, ValidationError{NodeID: n.ID, RefID: n.ParentID, Issue: "dangling-parent"})
			continue
		}
		if parent.ExplorationID != n.ExplorationID {
			issues = append(issues, ValidationError{NodeID: n.ID, RefID: n.ParentID, Issue: "foreign-parent"})
		}
		if n.Depth != parent.Depth+1 {
			issues = append(issues, ValidationError{NodeID: n.ID, RefID: n.ParentID, Issue: "depth-mismatch",
				Detail: fmt.Sprintf("depth %d, parent depth %d", n.Depth, parent.Depth)})
		}
	}

	switch {
	case len(roots) == 0:
		issues = append(issues, ValidationError{NodeID: nodes[0].ID, Issue: "no-root"})
	case len(roots) > 1:
		for _, id := range roots[1:] {
			issues = append(issues, ValidationError{NodeID: id, RefID: roots[0], Issue: "multiple-roots"})
		}
	}

	issues = append(issues, detectCycles(nodes, byID)...)
	return issues
}

// detectCycles reports nodes whose parent chain loops back on itself.
func detectCycles(nodes []models.ScenarioNode, byID map[string]models.ScenarioNode) []ValidationError {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(nodes))
	var issues []ValidationError

	for _, start := range nodes {
		if state[start.ID] != unvisited {
			continue
		}
		var chain []string
		id := start.ID
		for id != "" {
			if state[id] == done {
				break
			}
			if state[id] == visiting {
				issues = append(issues, ValidationError{NodeID: id, Issue: "cycle"})
				break
			}
			state[id] = visiting
			chain = append(chain, id)
			n, ok := byID[id]
			if !ok {
				break
			}
			id = n.ParentID
		}
		for _, c := range chain {
			state[c] = done
		}
	}
	return issues
}
