// Package diskspace checks that a file system can take the outputs about to be written.
package diskspace

import (
	"errors"
	"fmt"
	"path/filepath"
)

// InsufficientSpaceError indicates that there is not enough disk space available.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	requiredMB := float64(e.RequiredBytes) / (1024 * 1024)
	availableMB := float64(e.AvailableBytes) / (1024 * 1024)
	return fmt.Sprintf("insufficient disk space for %s: need %.2f MB, have %.2f MB available",
		e.Path, requiredMB, availableMB)
}

// Check returns an InsufficientSpaceError when the file system holding the directory
// of targetPath has less than requiredBytes*margin available. When the available
// space cannot be determined the check passes and the write fails on its own.
func Check(targetPath string, requiredBytes int64, margin float64) error {
	available, ok := Available(filepath.Dir(targetPath))
	if !ok {
		return nil
	}
	required := int64(float64(requiredBytes) * margin)
	if available < required {
		return &InsufficientSpaceError{Path: targetPath, RequiredBytes: required, AvailableBytes: available}
	}
	return nil
}

// IsInsufficientSpaceError reports whether err wraps an InsufficientSpaceError.
func IsInsufficientSpaceError(err error) bool {
	var target *InsufficientSpaceError
	return errors.As(err, &target)
}
