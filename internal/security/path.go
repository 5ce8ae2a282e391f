// Package security holds filesystem path checks applied before any
// user-supplied or config-supplied path is opened.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilePath rejects paths that could escape their intended
// location: empty paths, embedded null bytes, and any ".." segment.
// Absolute paths are allowed; database and config files are addressed
// absolutely in deployments.
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("file path contains null byte")
	}

	// Walk the raw segments rather than the cleaned path: Clean folds
	// "a/../b" into "b", which would hide the traversal attempt.
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if segment == ".." {
			return fmt.Errorf("path contains directory traversal: %s", path)
		}
	}
	return nil
}
