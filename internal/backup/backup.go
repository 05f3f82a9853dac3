// Package backup snapshots the exploration store to compressed, checksummed
// files and restores them.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/adoptsim/internal/constants"
	"github.com/nvandessel/adoptsim/internal/models"
	"github.com/nvandessel/adoptsim/internal/pathutil"
	"github.com/nvandessel/adoptsim/internal/store"
)

// FilePrefix starts every backup file name.
const FilePrefix = "adoptsim-backup-"

// Snapshot is the payload of a backup file.
type Snapshot struct {
	CreatedAt    time.Time         `json:"created_at"`
	Explorations []ExplorationTree `json:"explorations"`
}

// ExplorationTree is one exploration with its nodes in creation order.
type ExplorationTree struct {
	Exploration models.Exploration    `json:"exploration"`
	Nodes       []models.ScenarioNode `json:"nodes"`
}

// NodeCount returns the number of nodes across all explorations.
func (s *Snapshot) NodeCount() int {
	n := 0
	for _, t := range s.Explorations {
		n += len(t.Nodes)
	}
	return n
}

// DefaultDir returns the project backup directory (<root>/.adoptsim/backups).
func DefaultDir(projectRoot string) string {
	return filepath.Join(store.LocalDataPath(projectRoot), constants.BackupDirName)
}

// AllowedDirs returns the directories backups may be written to or read from:
// the project backup directory and ~/.adoptsim/backups.
func AllowedDirs(projectRoot string) ([]string, error) {
	global, err := store.GlobalDataPath()
	if err != nil {
		return nil, err
	}
	return []string{
		DefaultDir(projectRoot),
		filepath.Join(global, constants.BackupDirName),
	}, nil
}

// GeneratePath creates a timestamped backup filename in dir.
func GeneratePath(dir string, now time.Time) string {
	return filepath.Join(dir, FilePrefix+now.UTC().Format("20060102-150405.000")+".json.gz")
}

// Take reads every exploration and its nodes from s.
func Take(ctx context.Context, s store.Store) (*Snapshot, error) {
	exps, err := s.ListExplorations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list explorations: %w", err)
	}
	snap := &Snapshot{
		CreatedAt:    time.Now().UTC(),
		Explorations: make([]ExplorationTree, 0, len(exps)),
	}
	for _, exp := range exps {
		nodes, err := s.GetNodesByExploration(ctx, exp.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get nodes for %s: %w", exp.ID, err)
		}
		snap.Explorations = append(snap.Explorations, ExplorationTree{Exploration: exp, Nodes: nodes})
	}
	return snap, nil
}

// Backup writes a snapshot of s to outputPath. When allowedDirs is non-empty
// the path must fall inside one of them.
func Backup(ctx context.Context, s store.Store, outputPath string, allowedDirs []string) (*Header, error) {
	if len(allowedDirs) > 0 {
		confined, err := pathutil.Confine(outputPath, allowedDirs)
		if err != nil {
			return nil, fmt.Errorf("backup path rejected: %w", err)
		}
		outputPath = confined
	}
	snap, err := Take(ctx, s)
	if err != nil {
		return nil, err
	}
	return Write(outputPath, snap)
}

// RestoreMode controls how restore handles explorations that already exist.
type RestoreMode string

const (
	// RestoreMerge skips explorations that already exist (default).
	RestoreMerge RestoreMode = "merge"
	// RestoreReplace deletes an existing exploration before restoring it.
	RestoreReplace RestoreMode = "replace"
)

// ParseRestoreMode validates a mode name. Empty means merge.
func ParseRestoreMode(s string) (RestoreMode, error) {
	switch m := RestoreMode(s); m {
	case "", RestoreMerge:
		return RestoreMerge, nil
	case RestoreReplace:
		return m, nil
	default:
		return "", fmt.Errorf("unknown restore mode %q (want merge or replace)", s)
	}
}

// RestoreResult counts what a restore did.
type RestoreResult struct {
	ExplorationsRestored int `json:"explorations_restored"`
	ExplorationsSkipped  int `json:"explorations_skipped"`
	NodesRestored        int `json:"nodes_restored"`
}

// Restore loads the backup at inputPath into s.
func Restore(ctx context.Context, s store.Store, inputPath string, mode RestoreMode, allowedDirs []string) (*RestoreResult, error) {
	if len(allowedDirs) > 0 {
		confined, err := pathutil.Confine(inputPath, allowedDirs)
		if err != nil {
			return nil, fmt.Errorf("restore path rejected: %w", err)
		}
		inputPath = confined
	}
	snap, err := Read(inputPath)
	if err != nil {
		return nil, err
	}
	return RestoreSnapshot(ctx, s, snap, mode)
}

// RestoreSnapshot writes snap's explorations into s. Nodes are created in
// their stored order, which places every parent before its children.
func RestoreSnapshot(ctx context.Context, s store.Store, snap *Snapshot, mode RestoreMode) (*RestoreResult, error) {
	result := &RestoreResult{}
	for _, t := range snap.Explorations {
		id := t.Exploration.ID
		_, err := s.GetExploration(ctx, id)
		switch {
		case err == nil && mode == RestoreMerge:
			result.ExplorationsSkipped++
			continue
		case err == nil:
			if err := s.DeleteExploration(ctx, id); err != nil {
				return result, fmt.Errorf("failed to replace exploration %s: %w", id, err)
			}
		case !errors.Is(err, models.ErrNotFound):
			return result, fmt.Errorf("failed to check exploration %s: %w", id, err)
		}

		if err := s.CreateExploration(ctx, t.Exploration); err != nil {
			return result, fmt.Errorf("failed to restore exploration %s: %w", id, err)
		}
		for _, n := range t.Nodes {
			if n.ExplorationID != id {
				return result, fmt.Errorf("node %s belongs to exploration %s, not %s", n.ID, n.ExplorationID, id)
			}
			if err := s.CreateNode(ctx, n); err != nil {
				return result, fmt.Errorf("failed to restore node %s: %w", n.ID, err)
			}
			result.NodesRestored++
		}
		result.ExplorationsRestored++
	}
	return result, nil
}

// removeIfExists deletes path, ignoring a missing file.
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
