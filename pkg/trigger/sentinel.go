// Package trigger implements the promotion contract between the pool and a
// standby: an HTTP endpoint that durably writes a trigger file the database
// watches, and the client the pool side uses to call it.
package trigger

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Sentinel is the promotion trigger file inside a node's data directory
type Sentinel struct {
	path string
}

// NewSentinel returns the sentinel <dataDir>/<fileName>
func NewSentinel(dataDir, fileName string) *Sentinel {
	return &Sentinel{path: filepath.Join(dataDir, fileName)}
}

// Path returns the sentinel location
func (s *Sentinel) Path() string {
	return s.path
}

// Exists reports whether promotion has been requested
func (s *Sentinel) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Promote creates the sentinel and makes it durable. An existing sentinel is
// success with created=false. Concurrent callers all succeed and exactly one
// of them creates the file.
func (s *Sentinel) Promote() (created bool, err error) {
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		// Another caller won the race; make sure what it wrote is on disk too.
		if err := syncPath(s.path); err != nil {
			return false, err
		}
		return false, syncPath(filepath.Dir(s.path))
	}
	if err != nil {
		return false, fmt.Errorf("failed to create trigger file %s: %w", s.path, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return true, fmt.Errorf("failed to sync trigger file: %w", err)
	}
	if err := f.Close(); err != nil {
		return true, fmt.Errorf("failed to close trigger file: %w", err)
	}
	if err := syncPath(filepath.Dir(s.path)); err != nil {
		return true, err
	}
	return true, nil
}

// Clear removes the sentinel. Used when a node re-seeds as a standby.
func (s *Sentinel) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove trigger file: %w", err)
	}
	return nil
}

func syncPath(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s for sync: %w", path, err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	return nil
}
