package diskspace

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheck(t *testing.T) {
	target := filepath.Join(t.TempDir(), "DY.root")
	if _, ok := Available(filepath.Dir(target)); !ok {
		t.Skip("Could not determine available space")
	}

	t.Run("SmallFile", func(t *testing.T) {
		if err := Check(target, 1024, 1.1); err != nil {
			t.Errorf("Expected no error for small file, got: %v", err)
		}
	})

	t.Run("VeryLargeFile", func(t *testing.T) {
		err := Check(target, 1<<62, 1.0)
		if err == nil {
			t.Fatal("Expected insufficient space for 4 EiB")
		}
		if !IsInsufficientSpaceError(err) {
			t.Errorf("Expected InsufficientSpaceError, got: %T", err)
		}
	})
}

func TestCheck_UnknownSpacePasses(t *testing.T) {
	if err := Check("/does/not/exist/DY.root", 1<<62, 1.1); err != nil {
		t.Errorf("Expected check to pass when space is unknown, got: %v", err)
	}
}

func TestIsInsufficientSpaceError(t *testing.T) {
	err := &InsufficientSpaceError{Path: "/tmp/test.root", RequiredBytes: 1000, AvailableBytes: 500}
	if !IsInsufficientSpaceError(fmt.Errorf("DY: %w", err)) {
		t.Error("Expected wrapped InsufficientSpaceError to be detected")
	}
	if IsInsufficientSpaceError(fmt.Errorf("some other error")) {
		t.Error("Expected false for non-disk-space error")
	}
	if IsInsufficientSpaceError(nil) {
		t.Error("Expected false for nil")
	}
}

func TestInsufficientSpaceErrorMessage(t *testing.T) {
	err := &InsufficientSpaceError{
		Path:           "/tmp/test.root",
		RequiredBytes:  1024 * 1024 * 100,
		AvailableBytes: 1024 * 1024 * 50,
	}
	msg := err.Error()
	for _, want := range []string{"/tmp/test.root", "100.00", "50.00"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error message %q should contain %q", msg, want)
		}
	}
}
