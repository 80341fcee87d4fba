package iox

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// FileExists reports whether path exists. Any stat error other than
// "not exist" is treated as existing so callers surface it on open.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

// IsExecutable reports whether path is a regular file the current
// process may execute.
func IsExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return unix.Access(path, unix.X_OK) == nil
}

// ListFiles returns the paths of the entries in dir for which keep returns
// true. Paths are dir joined with the entry name, in directory order.
func ListFiles(dir string, keep func(path string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if keep(p) {
			out = append(out, p)
		}
	}
	return out, nil
}
