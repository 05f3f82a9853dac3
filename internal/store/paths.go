package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/adoptsim/internal/constants"
)

// DatabaseFile is the SQLite file name inside the data directory.
const DatabaseFile = "adoptsim.db"

// GlobalDataPath returns the path to the global data directory (~/.adoptsim).
func GlobalDataPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DataDirName), nil
}

// LocalDataPath returns the data directory for the given project root.
func LocalDataPath(projectRoot string) string {
	return filepath.Join(projectRoot, constants.DataDirName)
}

// DatabasePath returns the default SQLite path for projectRoot.
func DatabasePath(projectRoot string) string {
	return filepath.Join(LocalDataPath(projectRoot), DatabaseFile)
}

// EnsureDataDir creates the project data directory if it doesn't exist.
func EnsureDataDir(projectRoot string) (string, error) {
	dir := LocalDataPath(projectRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", constants.DataDirName, err)
	}
	return dir, nil
}
