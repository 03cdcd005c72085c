// Package workspace manages per-session durable directories and their
// tracked temporary subdirectories.
//
// A workspace is derived deterministically from the session id: the same id
// always maps to the same root path, so the object can be rebuilt from the
// id alone after a cache eviction or a process restart. All mutating
// operations hold the workspace's own mutex so pipeline stages and a
// concurrent cleanup cannot race on directory state. Cleanup is explicit
// and idempotent — never left to finalizers.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrInactive is returned when a workspace is used after cleanup. This is a
// programmer error: a workspace must not outlive its session.
var ErrInactive = errors.New("workspace: no longer active")

// Workspace owns one session's root directory and the temp subdirectories
// created under it during processing.
type Workspace struct {
	id   string
	root string

	mu       sync.Mutex
	tempDirs []string
	active   bool
}

// New allocates the root directory for the given session id under baseDir.
// Creation is idempotent: re-opening an id whose directory already exists
// returns a fresh handle to the same root.
func New(baseDir, id string) (*Workspace, error) {
	root := filepath.Join(baseDir, id)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("workspace: create root %s: %w", root, err)
	}
	return &Workspace{id: id, root: root, active: true}, nil
}

// ID returns the owning session id.
func (w *Workspace) ID() string { return w.id }

// Root returns the workspace root directory path.
func (w *Workspace) Root() string { return w.root }

// Active reports whether the workspace has not been cleaned up yet.
func (w *Workspace) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// CreateTempDir allocates a uniquely named subdirectory under the root,
// tracks it for cleanup, and returns its path.
func (w *Workspace) CreateTempDir(prefix string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active {
		return "", fmt.Errorf("workspace %s: %w", w.id, ErrInactive)
	}

	dir, err := os.MkdirTemp(w.root, prefix)
	if err != nil {
		return "", fmt.Errorf("workspace: create temp dir: %w", err)
	}
	w.tempDirs = append(w.tempDirs, dir)
	return dir, nil
}

// RemoveTempDir deletes one tracked subdirectory and stops tracking it.
// Paths that were never tracked are ignored.
func (w *Workspace) RemoveTempDir(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, d := range w.tempDirs {
		if d != dir {
			continue
		}
		if err := os.RemoveAll(d); err != nil {
			return fmt.Errorf("workspace: remove temp dir %s: %w", d, err)
		}
		w.tempDirs = append(w.tempDirs[:i], w.tempDirs[i+1:]...)
		return nil
	}
	return nil
}

// FilePath resolves name inside the workspace root. Names that escape the
// root (absolute or ..-prefixed after cleaning) are rejected.
func (w *Workspace) FilePath(name string) (string, error) {
	w.mu.Lock()
	active := w.active
	w.mu.Unlock()
	if !active {
		return "", fmt.Errorf("workspace %s: %w", w.id, ErrInactive)
	}

	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("workspace: path %q escapes session root", name)
	}
	return filepath.Join(w.root, cleaned), nil
}

// ListFiles returns the root-relative paths of every file in the workspace,
// including files inside temp subdirectories. Inactive or missing
// workspaces list as empty.
func (w *Workspace) ListFiles() []string {
	if !w.Active() {
		return nil
	}

	var files []string
	_ = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil //nolint:nilerr // unreadable entries are skipped, not fatal
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	return files
}

// TotalSize returns the byte total of every file under the root; 0 when the
// workspace is inactive or the directory is gone.
func (w *Workspace) TotalSize() int64 {
	if !w.Active() {
		return 0
	}

	var total int64
	_ = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil //nolint:nilerr // unreadable entries are skipped, not fatal
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

// Info is a point-in-time snapshot of workspace contents.
type Info struct {
	SessionID      string   `json:"session_id"`
	Active         bool     `json:"active"`
	Files          []string `json:"files"`
	TotalSizeBytes int64    `json:"total_size_bytes"`
	TempDirs       int      `json:"temp_dirs"`
}

// Snapshot assembles an Info for the status and files surfaces.
func (w *Workspace) Snapshot() Info {
	w.mu.Lock()
	tempDirs := len(w.tempDirs)
	w.mu.Unlock()

	return Info{
		SessionID:      w.id,
		Active:         w.Active(),
		Files:          w.ListFiles(),
		TotalSizeBytes: w.TotalSize(),
		TempDirs:       tempDirs,
	}
}

// Cleanup removes all tracked temp directories, then the root directory,
// then marks the workspace inactive. Idempotent: the second call is a
// no-op. On a removal failure the workspace stays active so cleanup can be
// retried.
func (w *Workspace) Cleanup() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active {
		return nil
	}

	var errs []error
	for _, dir := range w.tempDirs {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("workspace: remove temp dir %s: %w", dir, err))
		}
	}
	if err := os.RemoveAll(w.root); err != nil {
		errs = append(errs, fmt.Errorf("workspace: remove root %s: %w", w.root, err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	w.tempDirs = nil
	w.active = false
	return nil
}
