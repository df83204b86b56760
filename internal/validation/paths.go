// Package validation checks names and paths coming from dataset files before they
// are used to build paths in the work directory.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateName checks that a dataset nickname or stream name can be used as a single
// path component. Both end up in job output file names.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("name contains null byte: %q", name)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("name cannot contain path separators: %s", name)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("name cannot be %q", name)
	}
	return nil
}

// ValidatePathInDirectory checks that path, once cleaned, lies strictly below baseDir.
// Relative paths are taken relative to baseDir.
func ValidatePathInDirectory(path, baseDir string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if baseDir == "" {
		return fmt.Errorf("base directory cannot be empty")
	}

	cleanBase := filepath.Clean(baseDir)
	resolved := filepath.Clean(path)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(cleanBase, resolved)
	}

	rel, err := filepath.Rel(cleanBase, resolved)
	if err != nil {
		return fmt.Errorf("failed to compute relative path: %w", err)
	}
	if rel == "." {
		return fmt.Errorf("path is the base directory itself: %s", path)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %s is not below %s", path, baseDir)
	}
	return nil
}
