package explore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/nvandessel/adoptsim/internal/models"
	"github.com/nvandessel/adoptsim/internal/store"
)

// WinningPath loads the nodes of an exploration and returns the path from
// the root to its best leaf. It does not depend on any live run state.
func WinningPath(ctx context.Context, nodes store.NodeStore, explorationID string) ([]models.ScenarioNode, error) {
	all, err := nodes.GetNodesByExploration(ctx, explorationID)
	if err != nil {
		return nil, err
	}
	return SelectWinningPath(all)
}

// SelectWinningPath returns the root-to-leaf path ending at the best leaf
// of a node tree. A leaf is a node that is no other node's parent.
//
// Leaves are ordered by success rate descending, then depth ascending,
// then creation time ascending, with node ID as the final tie-break.
// Unevaluated leaves rank below every evaluated one. An empty tree yields
// an empty path.
func SelectWinningPath(nodes []models.ScenarioNode) ([]models.ScenarioNode, error) {
	if len(nodes) == 0 {
		return []models.ScenarioNode{}, nil
	}

	byID := make(map[string]models.ScenarioNode, len(nodes))
	parents := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
		if !n.IsRoot() {
			parents[n.ParentID] = true
		}
	}

	var leaves []models.ScenarioNode
	for _, n := range nodes {
		if !parents[n.ID] {
			leaves = append(leaves, n)
		}
	}
	if len(leaves) == 0 {
		for _, n := range nodes {
			if n.IsRoot() {
				return []models.ScenarioNode{n}, nil
			}
		}
		return nil, fmt.Errorf("exploration %s has no root node", nodes[0].ExplorationID)
	}

	winner := slices.MinFunc(leaves, compareLeaves)
	path := []models.ScenarioNode{winner}
	seen := map[string]bool{winner.ID: true}
	for cur := winner; !cur.IsRoot(); {
		parent, ok := byID[cur.ParentID]
		if !ok {
			return nil, fmt.Errorf("node %s: parent %s not found", cur.ID, cur.ParentID)
		}
		if seen[parent.ID] {
			return nil, fmt.Errorf("node %s: cycle through %s", cur.ID, parent.ID)
		}
		seen[parent.ID] = true
		path = append(path, parent)
		cur = parent
	}
	slices.Reverse(path)
	return path, nil
}

func compareLeaves(a, b models.ScenarioNode) int {
	if c := cmp.Compare(b.SuccessRate(), a.SuccessRate()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Depth, b.Depth); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
