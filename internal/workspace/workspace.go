package workspace

import (
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"workspace-editor-server/internal/errors"
	"workspace-editor-server/internal/filesystem"
	"workspace-editor-server/internal/models"
)

// DefaultExcludedDirs are dependency-cache directories left out of snapshots.
var DefaultExcludedDirs = []string{"node_modules", "__pycache__", "bower_components"}

const defaultMaxFileSize = 10 * 1024 * 1024

// Options tune a Workspace.
type Options struct {
	// MaxFileSizeBytes bounds reads and writes. Zero selects 10MB.
	MaxFileSizeBytes int64
	// ExcludedDirs replaces DefaultExcludedDirs when non-nil.
	ExcludedDirs []string
}

// Workspace is the handle every component receives instead of reaching for a
// process-wide root. It is safe for concurrent use; it holds no mutable state.
type Workspace struct {
	root         string
	fs           filesystem.FileSystemAdapter
	maxFileSize  int64
	excludedDirs map[string]struct{}
}

// New opens the workspace rooted at root.
func New(root string, fs filesystem.FileSystemAdapter, opts Options) (*Workspace, error) {
	if fs == nil {
		return nil, fmt.Errorf("filesystem adapter is required")
	}
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute path for workspace root: %w", err)
	}
	stats, err := fs.GetFileStats(absRoot)
	if err != nil {
		return nil, fmt.Errorf("workspace root is not accessible: %w", err)
	}
	if !stats.IsDir {
		return nil, fmt.Errorf("workspace root is not a directory: %s", absRoot)
	}
	// Prefix checks compare resolved paths, so the root must be resolved too.
	resolvedRoot, err := fs.EvalSymlinks(absRoot)
	if err != nil {
		return nil, err
	}

	excluded := opts.ExcludedDirs
	if excluded == nil {
		excluded = DefaultExcludedDirs
	}
	excludedSet := make(map[string]struct{}, len(excluded))
	for _, name := range excluded {
		if name = strings.TrimSpace(name); name != "" {
			excludedSet[name] = struct{}{}
		}
	}
	maxSize := opts.MaxFileSizeBytes
	if maxSize <= 0 {
		maxSize = defaultMaxFileSize
	}
	return &Workspace{
		root:         resolvedRoot,
		fs:           fs,
		maxFileSize:  maxSize,
		excludedDirs: excludedSet,
	}, nil
}

// Root returns the absolute, symlink-resolved workspace root.
func (w *Workspace) Root() string { return w.root }

// FS returns the filesystem adapter backing the workspace.
func (w *Workspace) FS() filesystem.FileSystemAdapter { return w.fs }

// MaxFileSize returns the per-file size limit in bytes.
func (w *Workspace) MaxFileSize() int64 { return w.maxFileSize }

// Resolve maps a workspace-relative path to an absolute one. A leading slash
// is relative to the workspace root, not the host filesystem. Paths that
// are empty, name the root itself, or escape the root (directly or via a
// symlink) are rejected with INVALID_PATH.
func (w *Workspace) Resolve(path string) (string, *models.ErrorDetail) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.NewInvalidPathError(path, "Path must not be empty.")
	}

	cleanedPath := filepath.Join(w.root, filepath.FromSlash(trimmed))
	if cleanedPath == w.root {
		return "", errors.NewInvalidPathError(path, "Path must name an entry inside the workspace.")
	}
	if !w.contains(cleanedPath) {
		return "", errors.NewInvalidPathError(path, "Path traversal attempt detected (pre-symlink).")
	}

	// Resolve the deepest existing ancestor; the remainder cannot be a link yet.
	existing := cleanedPath
	for {
		exists, err := w.fs.FileExists(existing)
		if err != nil {
			if stdErrors.Is(err, os.ErrPermission) {
				return "", errors.NewPermissionDeniedError(path, "path_resolution")
			}
			return "", errors.NewFileSystemError(path, "path_resolution", err.Error())
		}
		if exists {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		existing = parent
	}
	resolved, err := w.fs.EvalSymlinks(existing)
	if err != nil {
		return "", errors.NewFileSystemError(path, "eval_symlinks", fmt.Sprintf("Error evaluating symlinks: %v", err))
	}
	if resolved != w.root && !w.contains(resolved) {
		return "", errors.NewInvalidPathError(path, "Path traversal attempt detected (post-symlink).")
	}
	return cleanedPath, nil
}

// Rel converts an absolute path under the root to its slash-separated
// workspace-relative form.
func (w *Workspace) Rel(absPath string) string {
	rel, err := filepath.Rel(w.root, absPath)
	if err != nil {
		return absPath
	}
	return filepath.ToSlash(rel)
}

func (w *Workspace) contains(absPath string) bool {
	rel, err := filepath.Rel(w.root, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// IsExcludedDir reports whether a directory name is left out of snapshots.
func (w *Workspace) IsExcludedDir(name string) bool {
	_, ok := w.excludedDirs[name]
	return ok
}
