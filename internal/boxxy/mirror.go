package boxxy

import (
	"fmt"
	"os"
	"path/filepath"
)

// containersDir is where every invocation's staging directory lives
// (§3 invariant 4).
const containersDir = "/tmp/boxxy-containers"

// maxStageAttempts bounds the retry loop for staging-name collisions
// (§8 property 6: concurrent invocations must produce distinct names,
// retrying on collision).
const maxStageAttempts = 20

// stage creates a fresh, uniquely-named staging directory under
// containersDir and returns its path. It must be called before the
// namespace sandbox is entered, so the kernel can bind-mount the host root
// onto it from within the new mount namespace.
func stage() (string, error) {
	if err := os.MkdirAll(containersDir, 0o700); err != nil {
		return "", &NamespaceError{Op: "stage", Err: fmt.Errorf("create %s: %w", containersDir, err)}
	}

	for attempt := 0; attempt < maxStageAttempts; attempt++ {
		name, err := stagingName()
		if err != nil {
			return "", &NamespaceError{Op: "stage", Err: err}
		}

		path := filepath.Join(containersDir, name)

		err = os.Mkdir(path, 0o700)
		if err == nil {
			return path, nil
		}

		if !os.IsExist(err) {
			return "", &NamespaceError{Op: "stage", Err: fmt.Errorf("create %s: %w", path, err)}
		}
	}

	return "", &NamespaceError{Op: "stage", Err: fmt.Errorf("could not find an unused staging name after %d attempts", maxStageAttempts)}
}

// unstage removes the now-empty staging directory shell left behind after
// the namespace and its mounts are torn down (§5). Best-effort: leakage is
// non-fatal because /tmp cleanup handles it eventually.
func unstage(path string) error {
	return os.Remove(path)
}
