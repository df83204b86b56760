// Package pathutil resolves the directories given in configuration files and flags.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveAbsolutePath expands a leading ~ to the home directory and makes the path
// absolute. Symlinks are kept as given: dataset paths are later rewritten by prefix
// substitution and must keep the spelling of the configured input directory.
func ResolveAbsolutePath(path string) (string, error) {
	if path == "" {
		return os.Getwd()
	}

	if path == "~" || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}

	return filepath.Abs(path)
}
