//go:build linux

package boxxy

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// materialize ensures path exists, creating it (and any missing parent
// directories) according to mode (§4.E). For ModeDirectory, a missing
// endpoint is created as an empty directory. For ModeFile, the parent
// directories are created and the endpoint itself is created as an empty
// regular file iff it does not already exist.
//
// materialize also validates invariant 3.3: an existing endpoint must
// already be the right kind (file vs. directory) for mode.
func materialize(path string, mode Mode) error {
	info, err := os.Lstat(path)
	switch {
	case err == nil:
		return checkKind(path, info, mode)
	case !os.IsNotExist(err):
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", path, err)
	}

	switch mode {
	case ModeFile:
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				return nil
			}

			return fmt.Errorf("create file %s: %w", path, err)
		}

		return f.Close()
	default:
		if err := os.Mkdir(path, 0o755); err != nil && !os.IsExist(err) {
			return fmt.Errorf("create directory %s: %w", path, err)
		}

		return nil
	}
}

func checkKind(path string, info os.FileInfo, mode Mode) error {
	switch mode {
	case ModeFile:
		if info.IsDir() {
			return fmt.Errorf("%s exists and is a directory, but rule mode is %q", path, ModeFile)
		}
	default:
		if !info.IsDir() {
			return fmt.Errorf("%s exists and is a regular file, but rule mode is %q", path, ModeDirectory)
		}
	}

	return nil
}

// bindMountRec bind-mounts src onto dst recursively (used for the initial
// mirror-root bind, §4.C step 1).
func bindMountRec(src, dst string) error {
	if err := unix.Mount(src, dst, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind mount %s -> %s: %w", src, dst, err)
	}

	return nil
}

// bindMount installs a non-recursive bind mount from rewrite onto target
// (§4.C step 4, §4.E "both file and directory modes use MS_BIND").
func bindMount(rewrite, target string) error {
	if err := unix.Mount(rewrite, target, "", unix.MS_BIND, ""); err != nil {
		return fmt.Errorf("bind mount %s -> %s: %w", rewrite, target, err)
	}

	return nil
}

// makeMountPrivate marks path (recursively) MS_PRIVATE so later mounts
// don't propagate to the host (§4.D step 4).
func makeMountPrivate(path string) error {
	if err := unix.Mount("none", path, "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return fmt.Errorf("make %s private: %w", path, err)
	}

	return nil
}

// remountReadOnly remounts path read-only in place (§4.D step 8,
// "--immutable").
func remountReadOnly(path string) error {
	if err := unix.Mount("", path, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
		return fmt.Errorf("remount %s read-only: %w", path, err)
	}

	return nil
}
