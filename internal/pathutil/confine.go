// Package pathutil confines file operations to allowed directories.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideAllowed reports a path that resolves outside every allowed directory.
var ErrOutsideAllowed = errors.New("outside allowed directories")

// RedactPath reduces a full path to .../<parent>/<basename> for error messages.
// For example, "/home/user/.adoptsim/config.yaml" becomes ".../.adoptsim/config.yaml".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	base := filepath.Base(cleaned)
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// Confine resolves path and checks that it lies inside one of allowedDirs.
// Symlinks in existing ancestors are followed, so a link inside an allowed
// directory cannot point outside it. It returns the resolved absolute path.
func Confine(path string, allowedDirs []string) (string, error) {
	switch {
	case path == "":
		return "", errors.New("path is empty")
	case len(allowedDirs) == 0:
		return "", errors.New("no allowed directories configured")
	case strings.ContainsRune(path, '\x00'):
		return "", errors.New("path contains null byte")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", RedactPath(path), err)
	}
	dir, err := resolveExisting(filepath.Dir(abs))
	if err != nil {
		return "", err
	}
	resolved := filepath.Join(dir, filepath.Base(abs))

	for _, allowed := range allowedDirs {
		allowedAbs, err := filepath.Abs(allowed)
		if err != nil {
			continue
		}
		allowedResolved, err := resolveExisting(allowedAbs)
		if err != nil {
			continue
		}
		if within(resolved, allowedResolved) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%s: %w", RedactPath(abs), ErrOutsideAllowed)
}

// resolveExisting follows symlinks on the deepest existing ancestor of dir
// and re-appends the missing tail.
func resolveExisting(dir string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve %s", RedactPath(dir))
	}
	resolvedParent, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(dir)), nil
}

func within(path, base string) bool {
	return path == base || strings.HasPrefix(path, base+string(os.PathSeparator))
}
