// Package persona provides persona populations to the simulation engine.
package persona

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/nvandessel/adoptsim/internal/models"
)

// Source resolves a group identifier to its persona population.
type Source interface {
	GetPopulation(ctx context.Context, groupID string) ([]models.PersonaAttributes, error)
}

// StaticSource serves populations registered in memory.
type StaticSource struct {
	mu     sync.RWMutex
	groups map[string][]models.PersonaAttributes
}

// NewStaticSource creates an empty static source.
func NewStaticSource() *StaticSource {
	return &StaticSource{groups: make(map[string][]models.PersonaAttributes)}
}

// Add registers a population under groupID, replacing any existing one.
func (s *StaticSource) Add(groupID string, personas []models.PersonaAttributes) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]models.PersonaAttributes, len(personas))
	copy(cp, personas)
	s.groups[groupID] = cp
}

// GetPopulation returns a copy of the population for groupID.
func (s *StaticSource) GetPopulation(ctx context.Context, groupID string) ([]models.PersonaAttributes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	personas, ok := s.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("group %q: %w", groupID, models.ErrNotFound)
	}
	cp := make([]models.PersonaAttributes, len(personas))
	copy(cp, personas)
	return cp, nil
}

// Groups returns the registered group IDs in no particular order.
func (s *StaticSource) Groups() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.groups))
	for id := range s.groups {
		ids = append(ids, id)
	}
	return ids
}

// GetPopulation implements Source.
func (s SyntheticSource) GetPopulation(ctx context.Context, groupID string) ([]models.PersonaAttributes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Count < 1 {
		return nil, fmt.Errorf("synthetic population count must be >= 1, got %d", s.Count)
	}
	return Synthesize(s.Count, s.Seed^groupHash(groupID)), nil
}

func groupHash(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}
