package workspace

import (
	"fmt"
	"path/filepath"
	"sort"

	"workspace-editor-server/internal/models"
)

// Snapshot lists every non-hidden file and directory under the root,
// skipping dependency-cache directories. Nothing is cached; each call walks
// the tree again.
func (w *Workspace) Snapshot() (*models.WorkspaceSnapshot, error) {
	snap := &models.WorkspaceSnapshot{
		Root:        w.root,
		Files:       []string{},
		Directories: []string{},
	}
	if err := w.walk(w.root, snap); err != nil {
		return nil, err
	}
	sort.Strings(snap.Files)
	sort.Strings(snap.Directories)
	return snap, nil
}

func (w *Workspace) walk(dir string, snap *models.WorkspaceSnapshot) error {
	entries, err := w.fs.ListDir(dir)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", w.Rel(dir), err)
	}
	for _, entry := range entries {
		if entry.IsHidden {
			continue
		}
		full := filepath.Join(dir, entry.Name)
		if entry.IsDir {
			if w.IsExcludedDir(entry.Name) {
				continue
			}
			snap.Directories = append(snap.Directories, w.Rel(full))
			if err := w.walk(full, snap); err != nil {
				return err
			}
			continue
		}
		snap.Files = append(snap.Files, w.Rel(full))
	}
	return nil
}

// Context assembles the workspace description sent to the reasoning engine.
func (w *Workspace) Context(openFiles []string, currentFile string, selection *models.Selection) (*models.WorkspaceContext, error) {
	snap, err := w.Snapshot()
	if err != nil {
		return nil, err
	}
	if openFiles == nil {
		openFiles = []string{}
	}
	return &models.WorkspaceContext{
		WorkspacePath: w.root,
		Files:         snap.Files,
		Directories:   snap.Directories,
		OpenFiles:     openFiles,
		CurrentFile:   currentFile,
		Selection:     selection,
	}, nil
}
