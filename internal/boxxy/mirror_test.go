//go:build linux

package boxxy

import (
	"os"
	"path/filepath"
	"testing"
)

func Test_Stage_Creates_A_Directory_Under_ContainersDir(t *testing.T) {
	t.Parallel()

	path, err := stage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defer func() { _ = unstage(path) }()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat staging dir: %v", err)
	}

	if !info.IsDir() {
		t.Errorf("staging path %q is not a directory", path)
	}

	if filepath.Dir(path) != containersDir {
		t.Errorf("staging path %q not under %q", path, containersDir)
	}
}

func Test_Stage_Produces_Distinct_Paths_Across_Calls(t *testing.T) {
	t.Parallel()

	first, err := stage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defer func() { _ = unstage(first) }()

	second, err := stage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defer func() { _ = unstage(second) }()

	if first == second {
		t.Errorf("stage() returned the same path twice: %q", first)
	}
}

func Test_Unstage_Removes_The_Empty_Staging_Shell(t *testing.T) {
	t.Parallel()

	path, err := stage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := unstage(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected %q to be removed, stat err = %v", path, err)
	}
}
