package pathutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveAbsolutePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ResolveAbsolutePath("~/ntuples")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if want := filepath.Join(home, "ntuples"); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	got, err = ResolveAbsolutePath("~")
	if err != nil || got != home {
		t.Errorf("Expected %s, got %s (err %v)", home, got, err)
	}

	wd, _ := os.Getwd()
	got, err = ResolveAbsolutePath("work")
	if err != nil || got != filepath.Join(wd, "work") {
		t.Errorf("Expected relative path below %s, got %s (err %v)", wd, got, err)
	}

	got, err = ResolveAbsolutePath("/store/~user")
	if err != nil || got != "/store/~user" {
		t.Errorf("Expected path unchanged, got %s (err %v)", got, err)
	}
}
