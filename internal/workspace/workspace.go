// Package workspace is the sink for generated artifacts. Each session
// writes under its own subdirectory of the configured root, so two runs
// never contend for the same paths.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// PersistenceError reports a failed artifact write or stat.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("workspace: %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Sink abstracts artifact persistence so the assembly layer can be tested
// without touching the filesystem.
type Sink interface {
	// Write stores content at the relative path, creating parent
	// directories as needed.
	Write(path, content string) error
	// Exists reports whether a file is present at the relative path.
	Exists(path string) bool
	// Size returns the byte length of the file at the relative path.
	Size(path string) (int64, error)
}

// Dir is a Sink rooted at a directory on the local filesystem.
type Dir struct {
	root string
}

// NewDir returns a Dir rooted at root. The directory is created lazily on
// first write.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Root returns the directory all relative paths resolve under.
func (d *Dir) Root() string { return d.root }

// SessionDir returns the absolute directory for a session's artifacts.
func (d *Dir) SessionDir(sessionID string) string {
	return filepath.Join(d.root, sessionID)
}

func (d *Dir) Write(path, content string) error {
	full := filepath.Join(d.root, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	return nil
}

func (d *Dir) Exists(path string) bool {
	info, err := os.Stat(filepath.Join(d.root, path))
	return err == nil && !info.IsDir()
}

func (d *Dir) Size(path string) (int64, error) {
	info, err := os.Stat(filepath.Join(d.root, path))
	if err != nil {
		return 0, &PersistenceError{Path: path, Err: err}
	}
	return info.Size(), nil
}
