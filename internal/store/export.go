package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nvandessel/adoptsim/internal/models"
)

// Record kinds in an exploration JSONL stream.
const (
	RecordExploration = "exploration"
	RecordNode        = "node"
)

// Record is one line of an exploration JSONL export.
type Record struct {
	Type        string               `json:"type"`
	Exploration *models.Exploration  `json:"exploration,omitempty"`
	Node        *models.ScenarioNode `json:"node,omitempty"`
}

// ExportExplorationJSONL writes the exploration header followed by its nodes
// in creation order, one JSON object per line.
func ExportExplorationJSONL(ctx context.Context, s Store, explorationID string, w io.Writer) error {
	exp, err := s.GetExploration(ctx, explorationID)
	if err != nil {
		return err
	}
	nodes, err := s.GetNodesByExploration(ctx, explorationID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(Record{Type: RecordExploration, Exploration: exp}); err != nil {
		return fmt.Errorf("failed to encode exploration: %w", err)
	}
	for i := range nodes {
		if err := enc.Encode(Record{Type: RecordNode, Node: &nodes[i]}); err != nil {
			return fmt.Errorf("failed to encode node %s: %w", nodes[i].ID, err)
		}
	}
	return nil
}

// ImportExplorationJSONL reads a stream produced by ExportExplorationJSONL
// into s and returns the imported exploration ID.
func ImportExplorationJSONL(ctx context.Context, s Store, r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024) // 1MB max line length

	var explorationID string
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return "", fmt.Errorf("line %d: %w", lineNum, err)
		}

		switch rec.Type {
		case RecordExploration:
			if explorationID != "" || rec.Exploration == nil {
				return "", fmt.Errorf("line %d: unexpected exploration record", lineNum)
			}
			if err := s.CreateExploration(ctx, *rec.Exploration); err != nil {
				return "", err
			}
			explorationID = rec.Exploration.ID
		case RecordNode:
			if explorationID == "" || rec.Node == nil {
				return "", fmt.Errorf("line %d: node record before exploration", lineNum)
			}
			if rec.Node.ExplorationID != explorationID {
				return "", fmt.Errorf("line %d: node %s belongs to exploration %s", lineNum, rec.Node.ID, rec.Node.ExplorationID)
			}
			if err := s.CreateNode(ctx, *rec.Node); err != nil {
				return "", err
			}
		default:
			return "", fmt.Errorf("line %d: unknown record type %q", lineNum, rec.Type)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scanner error: %w", err)
	}
	if explorationID == "" {
		return "", fmt.Errorf("no exploration record found")
	}
	return explorationID, nil
}
