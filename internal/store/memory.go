package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nvandessel/adoptsim/internal/models"
)

// InMemoryStore implements Store for testing and single-process use.
type InMemoryStore struct {
	mu           sync.RWMutex
	explorations map[string]models.Exploration
	nodes        map[string]models.ScenarioNode
	order        map[string][]string // exploration ID -> node IDs in creation order
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		explorations: make(map[string]models.Exploration),
		nodes:        make(map[string]models.ScenarioNode),
		order:        make(map[string][]string),
	}
}

// CreateExploration adds an exploration.
func (s *InMemoryStore) CreateExploration(ctx context.Context, exp models.Exploration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exp.ID == "" {
		return storeErr("create exploration", fmt.Errorf("exploration ID is required"))
	}
	if _, exists := s.explorations[exp.ID]; exists {
		return storeErr("create exploration", fmt.Errorf("exploration %s already exists", exp.ID))
	}
	s.explorations[exp.ID] = cloneExploration(exp)
	return nil
}

// GetExploration retrieves an exploration by ID.
func (s *InMemoryStore) GetExploration(ctx context.Context, id string) (*models.Exploration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exp, ok := s.explorations[id]
	if !ok {
		return nil, storeErr("get exploration", notFound("exploration", id))
	}
	cp := cloneExploration(exp)
	return &cp, nil
}

// UpdateExploration replaces a stored exploration.
func (s *InMemoryStore) UpdateExploration(ctx context.Context, exp models.Exploration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.explorations[exp.ID]
	if !ok {
		return storeErr("update exploration", notFound("exploration", exp.ID))
	}
	if current.Status.Terminal() {
		return storeErr("update exploration", fmt.Errorf("exploration %s is %s: %w", exp.ID, current.Status, models.ErrTerminal))
	}
	s.explorations[exp.ID] = cloneExploration(exp)
	return nil
}

// ListExplorations returns all explorations, newest first.
func (s *InMemoryStore) ListExplorations(ctx context.Context) ([]models.Exploration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Exploration, 0, len(s.explorations))
	for _, exp := range s.explorations {
		out = append(out, cloneExploration(exp))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteExploration removes an exploration and its nodes.
func (s *InMemoryStore) DeleteExploration(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.explorations[id]; !ok {
		return storeErr("delete exploration", notFound("exploration", id))
	}
	for _, nodeID := range s.order[id] {
		delete(s.nodes, nodeID)
	}
	delete(s.order, id)
	delete(s.explorations, id)
	return nil
}

// CreateNode adds a node to an existing exploration.
func (s *InMemoryStore) CreateNode(ctx context.Context, node models.ScenarioNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateNewNode(node); err != nil {
		return storeErr("create node", err)
	}
	if _, ok := s.explorations[node.ExplorationID]; !ok {
		return storeErr("create node", notFound("exploration", node.ExplorationID))
	}
	if _, exists := s.nodes[node.ID]; exists {
		return storeErr("create node", fmt.Errorf("node %s already exists", node.ID))
	}
	if !node.IsRoot() {
		parent, ok := s.nodes[node.ParentID]
		if !ok {
			return storeErr("create node", notFound("parent node", node.ParentID))
		}
		if err := checkParent(node, parent); err != nil {
			return storeErr("create node", err)
		}
	}

	s.nodes[node.ID] = cloneNode(node)
	s.order[node.ExplorationID] = append(s.order[node.ExplorationID], node.ID)
	return nil
}

// GetNodesByExploration returns nodes in creation order.
func (s *InMemoryStore) GetNodesByExploration(ctx context.Context, explorationID string) ([]models.ScenarioNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.order[explorationID]
	out := make([]models.ScenarioNode, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneNode(s.nodes[id]))
	}
	return out, nil
}

// GetPathToNode walks parent links from nodeID back to the root.
func (s *InMemoryStore) GetPathToNode(ctx context.Context, nodeID string) ([]models.ScenarioNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var path []models.ScenarioNode
	seen := make(map[string]bool)
	id := nodeID
	for id != "" {
		if seen[id] {
			return nil, storeErr("get path", fmt.Errorf("cycle at node %s", id))
		}
		seen[id] = true
		node, ok := s.nodes[id]
		if !ok {
			return nil, storeErr("get path", notFound("node", id))
		}
		path = append(path, cloneNode(node))
		id = node.ParentID
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// UpdateNodeStatus changes a node's status.
func (s *InMemoryStore) UpdateNodeStatus(ctx context.Context, nodeID string, status models.NodeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return storeErr("update node status", notFound("node", nodeID))
	}
	if err := checkTransition(nodeID, node.Status, status); err != nil {
		return storeErr("update node status", err)
	}
	node.Status = status
	s.nodes[nodeID] = node
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
