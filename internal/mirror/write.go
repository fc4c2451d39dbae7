package mirror

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	dirPerm  = 0o750
	filePerm = 0o644
)

// WriteAtomic writes r to path through a temporary file in the same
// directory, renaming it into place once the copy succeeds. Parent
// directories are created as needed. On error no partial file remains.
func WriteAtomic(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return 0, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".part-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()        //nolint:errcheck // best effort on failure path
		_ = os.Remove(tmpName) //nolint:errcheck // best effort on failure path
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return n, err
	}
	if err := tmp.Chmod(filePerm); err != nil {
		cleanup()
		return n, fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName) //nolint:errcheck // best effort on failure path
		return n, fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName) //nolint:errcheck // best effort on failure path
		return n, fmt.Errorf("failed to move file into place: %w", err)
	}
	return n, nil
}
