// Package store persists explorations and their scenario node trees.
package store

import (
	"context"
	"fmt"

	"github.com/nvandessel/adoptsim/internal/models"
)

// NodeStore holds the scenario node tree of each exploration. Nodes are
// created once; afterwards only their status changes.
type NodeStore interface {
	// CreateNode inserts a node. A non-root node's parent must already exist
	// in the same exploration at depth node.Depth-1.
	CreateNode(ctx context.Context, node models.ScenarioNode) error

	// GetNodesByExploration returns every node of an exploration in creation order.
	GetNodesByExploration(ctx context.Context, explorationID string) ([]models.ScenarioNode, error)

	// GetPathToNode returns the nodes from the root down to nodeID, inclusive.
	GetPathToNode(ctx context.Context, nodeID string) ([]models.ScenarioNode, error)

	// UpdateNodeStatus moves a node forward in its lifecycle.
	UpdateNodeStatus(ctx context.Context, nodeID string, status models.NodeStatus) error
}

// ExplorationStore holds exploration records.
type ExplorationStore interface {
	CreateExploration(ctx context.Context, exp models.Exploration) error
	GetExploration(ctx context.Context, id string) (*models.Exploration, error)

	// UpdateExploration replaces the mutable status and progress fields.
	// Updating an exploration already in a terminal status fails with ErrTerminal.
	UpdateExploration(ctx context.Context, exp models.Exploration) error

	// ListExplorations returns all explorations, newest first.
	ListExplorations(ctx context.Context) ([]models.Exploration, error)

	// DeleteExploration removes an exploration and all of its nodes.
	DeleteExploration(ctx context.Context, id string) error
}

// Store combines node and exploration persistence.
type Store interface {
	NodeStore
	ExplorationStore
	Close() error
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &models.StoreError{Op: op, Err: err}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
}

func validateNewNode(node models.ScenarioNode) error {
	if node.ID == "" {
		return fmt.Errorf("node ID is required")
	}
	if node.ExplorationID == "" {
		return fmt.Errorf("node %s: exploration ID is required", node.ID)
	}
	if node.IsRoot() && node.Depth != 0 {
		return fmt.Errorf("root node %s has depth %d", node.ID, node.Depth)
	}
	if node.ParentID == node.ID {
		return fmt.Errorf("node %s is its own parent", node.ID)
	}
	return nil
}

func checkParent(node models.ScenarioNode, parent models.ScenarioNode) error {
	if parent.ExplorationID != node.ExplorationID {
		return fmt.Errorf("node %s: parent %s belongs to exploration %s", node.ID, parent.ID, parent.ExplorationID)
	}
	if node.Depth != parent.Depth+1 {
		return fmt.Errorf("node %s: depth %d does not follow parent depth %d", node.ID, node.Depth, parent.Depth)
	}
	return nil
}

func checkTransition(id string, from, to models.NodeStatus) error {
	if from == to {
		return nil
	}
	if !from.CanTransition(to) {
		return fmt.Errorf("node %s %s -> %s: %w", id, from, to, models.ErrInvalidTransition)
	}
	return nil
}

func cloneNode(n models.ScenarioNode) models.ScenarioNode {
	if n.ActionApplied != nil {
		d := *n.ActionApplied
		n.ActionApplied = &d
	}
	if n.SimulationResults != nil {
		r := *n.SimulationResults
		n.SimulationResults = &r
	}
	return n
}

func cloneExploration(e models.Exploration) models.Exploration {
	if e.Simulation.Seed != nil {
		s := *e.Simulation.Seed
		e.Simulation.Seed = &s
	}
	return e
}
