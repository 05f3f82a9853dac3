package persona

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/adoptsim/internal/models"
)

// PopulationFile is the on-disk YAML layout for persona groups.
//
//	groups:
//	  novices:
//	    synthesize: {count: 50, seed: 7}
//	  experts:
//	    personas:
//	      - id: e1
//	        latent_traits: {capability: 0.9, trust: 0.7, friction_tolerance: 0.8, exploration_prob: 0.6}
//	        observables: {digital_literacy: 0.9, ...}
type PopulationFile struct {
	Groups map[string]GroupSpec `yaml:"groups"`
}

// GroupSpec defines one group either by listing personas or by asking for a
// synthetic population.
type GroupSpec struct {
	Personas   []models.PersonaAttributes `yaml:"personas,omitempty"`
	Synthesize *SynthSpec                 `yaml:"synthesize,omitempty"`
}

// SynthSpec requests a synthetic population.
type SynthSpec struct {
	Count int    `yaml:"count"`
	Seed  uint64 `yaml:"seed"`
}

// FileSource reads groups from a YAML population file. The file is parsed
// once at construction.
type FileSource struct {
	path   string
	static *StaticSource
}

// NewFileSource loads and validates a population file.
func NewFileSource(path string) (*FileSource, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read population file: %w", err)
	}
	static, err := parsePopulation(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &FileSource{path: path, static: static}, nil
}

// Path returns the file the source was loaded from.
func (f *FileSource) Path() string {
	return f.path
}

// GetPopulation implements Source.
func (f *FileSource) GetPopulation(ctx context.Context, groupID string) ([]models.PersonaAttributes, error) {
	return f.static.GetPopulation(ctx, groupID)
}

// Groups returns the group IDs defined in the file, sorted.
func (f *FileSource) Groups() []string {
	ids := f.static.Groups()
	sort.Strings(ids)
	return ids
}

func parsePopulation(data []byte) (*StaticSource, error) {
	var file PopulationFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse population: %w", err)
	}
	if len(file.Groups) == 0 {
		return nil, fmt.Errorf("population file defines no groups")
	}

	static := NewStaticSource()
	for id, group := range file.Groups {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("group with empty id")
		}
		personas, err := group.resolve(id)
		if err != nil {
			return nil, err
		}
		static.Add(id, personas)
	}
	return static, nil
}

func (g GroupSpec) resolve(id string) ([]models.PersonaAttributes, error) {
	switch {
	case g.Synthesize != nil && len(g.Personas) > 0:
		return nil, fmt.Errorf("group %q: personas and synthesize are mutually exclusive", id)
	case g.Synthesize != nil:
		if g.Synthesize.Count < 1 {
			return nil, fmt.Errorf("group %q: synthesize count must be >= 1", id)
		}
		return Synthesize(g.Synthesize.Count, g.Synthesize.Seed), nil
	case len(g.Personas) == 0:
		return nil, fmt.Errorf("group %q: no personas", id)
	}

	personas := make([]models.PersonaAttributes, len(g.Personas))
	for i, p := range g.Personas {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("group %q persona %d: %w", id, i, err)
		}
		if p.ID == "" {
			p.ID = fmt.Sprintf("%s-%d", id, i)
		}
		personas[i] = p
	}
	return personas, nil
}
