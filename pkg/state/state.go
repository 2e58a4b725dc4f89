package state

import (
	"fmt"
	"os"
)

// EnsureStateDir ensures the daemon state directory exists. It rejects
// symlinks and permissive modes, and verifies the directory is writable
// by the process before the credential store opens inside it.
func EnsureStateDir(path string) error {
	if path == "" {
		return fmt.Errorf("empty state path")
	}

	if fi, err := os.Lstat(path); err == nil {
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("state path is a symlink: %s", path)
		}
		if !fi.IsDir() {
			return fmt.Errorf("state path exists and is not a directory: %s", path)
		}
		if fi.Mode().Perm()&0o022 != 0 {
			return fmt.Errorf("state path has permissive mode (group/other write): %s", path)
		}
	}

	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("cannot create state path %s: %w", path, err)
	}

	// double-check no symlink after creation
	if fi, err := os.Lstat(path); err == nil {
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("state path is a symlink after creation: %s", path)
		}
	}

	// writability check: create and remove a temp file
	tmp, err := os.CreateTemp(path, ".validate-*")
	if err != nil {
		return fmt.Errorf("state path not writable: %s: %w", path, err)
	}
	tmp.Close()
	_ = os.Remove(tmp.Name())
	return nil
}
