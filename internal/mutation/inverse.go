package mutation

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"workspace-editor-server/internal/errors"
	"workspace-editor-server/internal/filesystem"
	"workspace-editor-server/internal/models"
)

// PreImage is the state of an item's target before the item ran.
type PreImage struct {
	Path    string // workspace-relative, as given by the item
	AbsPath string
	Existed bool
	IsDir   bool
	Content []byte
	Mode    os.FileMode
	// MissingDirs lists directories on the way to the target that did not
	// exist yet, outermost first. For a make-directory item it includes the
	// target itself.
	MissingDirs []string
}

// Capture records the pre-image of item's target. It must run before the
// item is applied; an item whose path cannot be resolved has no pre-image
// and will fail on its own when applied.
func (p *Primitives) Capture(item models.BatchItem) (PreImage, *models.ErrorDetail) {
	path := item.Path()
	absPath, errDetail := p.ws.Resolve(path)
	if errDetail != nil {
		return PreImage{}, errDetail
	}
	pre := PreImage{Path: path, AbsPath: absPath}

	dirStart := filepath.Dir(absPath)
	if item.Operation != nil && item.Operation.Type == models.OperationMkdir {
		dirStart = absPath
	}
	missing, err := p.missingDirs(dirStart)
	if err != nil {
		return PreImage{}, errors.NewFileSystemError(path, "capture", err.Error())
	}
	pre.MissingDirs = missing

	exists, err := p.fs.FileExists(absPath)
	if err != nil {
		return PreImage{}, errors.NewFileSystemError(path, "capture", err.Error())
	}
	if !exists {
		return pre, nil
	}
	stats, err := p.fs.GetFileStats(absPath)
	if err != nil {
		return PreImage{}, errors.NewFileSystemError(path, "capture", err.Error())
	}
	pre.Existed = true
	pre.IsDir = stats.IsDir
	pre.Mode = stats.Mode
	if stats.IsDir {
		return pre, nil
	}
	if stats.Size > p.ws.MaxFileSize() {
		return PreImage{}, errors.NewFileTooLargeError(path, int(p.ws.MaxFileSize()/(1024*1024)))
	}
	content, err := p.fs.ReadFileBytes(absPath)
	if err != nil {
		return PreImage{}, errors.NewFileSystemError(path, "capture", err.Error())
	}
	pre.Content = content
	return pre, nil
}

func (p *Primitives) missingDirs(dir string) ([]string, error) {
	var missing []string
	root := p.ws.Root()
	for current := dir; current != root; {
		exists, err := p.fs.FileExists(current)
		if err != nil {
			return nil, err
		}
		if exists {
			break
		}
		missing = append([]string{current}, missing...)
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return missing, nil
}

// Inverse undoes one applied item. Exactly one of Edit, DeletePath and
// Restore describes the content change; RemoveDirs lists directories the
// item created, removed deepest first once they are empty.
type Inverse struct {
	Description string
	// Edit is a line-level inverse, applied with Lines verbatim.
	Edit  *models.LineEdit
	Lines []string
	// DeletePath undoes the creation of a file that did not exist.
	DeletePath string
	// Restore puts the pre-image back byte for byte. Alongside Edit it is the
	// expected end state, restored directly if the line inverse misses it.
	Restore    *PreImage
	RemoveDirs []string
}

// Invert computes the inverse of item from its pre-image:
//
//	create (new file)       -> delete, then remove created parents
//	create (overwrite)      -> restore the overwritten content
//	edit                    -> restore the previous content
//	delete                  -> recreate with the previous content
//	mkdir                   -> remove the directories it created
//	insert at n, k lines    -> delete [n, n+k-1]
//	replace [n, m], k lines -> replace [n, n+k-1] with the original span
//	delete [n, m]           -> insert the removed span at n
func Invert(item models.BatchItem, pre PreImage) (Inverse, error) {
	if item.Operation != nil {
		op := item.Operation
		switch op.Type {
		case models.OperationCreate:
			if pre.Existed {
				return Inverse{Description: "restore overwritten " + op.Path, Restore: &pre}, nil
			}
			return Inverse{Description: "delete created " + op.Path, DeletePath: op.Path, RemoveDirs: pre.MissingDirs}, nil
		case models.OperationEdit:
			return Inverse{Description: "restore " + op.Path, Restore: &pre}, nil
		case models.OperationDelete:
			return Inverse{Description: "recreate " + op.Path, Restore: &pre}, nil
		case models.OperationMkdir:
			return Inverse{Description: "remove created directory " + op.Path, RemoveDirs: pre.MissingDirs}, nil
		}
		return Inverse{}, &Error{Kind: errors.KindInvalidOperation, Message: fmt.Sprintf("Invalid operation type: %q", op.Type)}
	}
	if item.Edit == nil {
		return Inverse{}, &Error{Kind: errors.KindInvalidOperation, Message: "Batch item is empty"}
	}

	edit := *item.Edit
	var newLines []string
	if edit.Type != models.EditDelete {
		newLines = filesystem.SplitContentLines(edit.Content)
	}
	lines, _ := filesystem.SplitLines(string(pre.Content))
	change, err := Transform(lines, edit.Type, edit.StartLine, edit.LastLine(), newLines, false)
	if err != nil {
		return Inverse{}, err
	}
	inv := Inverse{Restore: &pre}
	switch edit.Type {
	case models.EditInsert:
		inv.Edit = rangeEdit(models.EditDelete, edit.Path, edit.StartLine, change.Inserted)
	case models.EditReplace:
		inv.Edit = rangeEdit(models.EditReplace, edit.Path, edit.StartLine, change.Inserted)
		inv.Lines = change.Removed
	case models.EditDelete:
		inv.Edit = &models.LineEdit{Type: models.EditInsert, Path: edit.Path, StartLine: edit.StartLine}
		inv.Lines = change.Removed
	}
	if inv.Edit == nil {
		// A replace with no new lines has no span to target; restore directly.
		inv.Description = "restore " + edit.Path
		return inv, nil
	}
	inv.Description = fmt.Sprintf("%s %s at line %d", inv.Edit.Type, edit.Path, inv.Edit.StartLine)
	return inv, nil
}

// rangeEdit targets the k lines starting at start, or returns nil when k is 0.
func rangeEdit(editType models.EditType, path string, start, k int) *models.LineEdit {
	if k == 0 {
		return nil
	}
	return &models.LineEdit{Type: editType, Path: path, StartLine: start, EndLine: models.LineNumber(start + k - 1)}
}

// Undo applies an inverse and reports the combined outcome.
func (p *Primitives) Undo(inv Inverse) models.OperationResult {
	res := models.OperationResult{Success: true, Message: "Undid: " + inv.Description}
	if len(inv.RemoveDirs) > 0 {
		res.Path = p.ws.Rel(inv.RemoveDirs[len(inv.RemoveDirs)-1])
	}
	switch {
	case inv.Edit != nil:
		res = p.undoLineEdit(inv)
	case inv.DeletePath != "":
		res = p.Delete(inv.DeletePath)
	case inv.Restore != nil:
		res = p.Restore(*inv.Restore)
	}
	if !res.Success {
		return res
	}
	if err := p.RemoveDirectories(inv.RemoveDirs); err != nil {
		return failure(res.Path, errors.KindOperationFailed, fmt.Sprintf("Failed to remove created directories: %v", err))
	}
	return res
}

func (p *Primitives) undoLineEdit(inv Inverse) models.OperationResult {
	res := p.applyLines(*inv.Edit, inv.Lines, true)
	res.Edit = inv.Edit
	if inv.Restore == nil {
		return res
	}
	// Line splitting cannot tell an emptied file from one holding a single
	// empty line, so the pre-image decides.
	if res.Success {
		current, err := p.fs.ReadFileBytes(inv.Restore.AbsPath)
		if err == nil && bytes.Equal(current, inv.Restore.Content) {
			return res
		}
	}
	restored := p.Restore(*inv.Restore)
	restored.Edit = inv.Edit
	return restored
}

// Restore writes a pre-image back: content and mode for a file that existed,
// removal for one that did not.
func (p *Primitives) Restore(pre PreImage) models.OperationResult {
	if pre.AbsPath == "" {
		return failure(pre.Path, errors.KindOperationFailed, "Pre-image has no resolved path")
	}
	if !pre.Existed {
		exists, err := p.fs.FileExists(pre.AbsPath)
		if err != nil {
			return failure(pre.Path, errors.KindOperationFailed, fmt.Sprintf("Failed to check path: %v", err))
		}
		if exists {
			if err := p.fs.Remove(pre.AbsPath); err != nil {
				return failure(pre.Path, errors.KindOperationFailed, fmt.Sprintf("Failed to remove file: %v", err))
			}
		}
		return models.OperationResult{Success: true, Message: fmt.Sprintf("Removed file: %s", pre.Path), Path: pre.Path}
	}
	if pre.IsDir {
		return models.OperationResult{Success: true, Message: fmt.Sprintf("Directory kept: %s", pre.Path), Path: pre.Path}
	}
	if _, err := p.fs.MkdirAll(filepath.Dir(pre.AbsPath), defaultDirPerm); err != nil {
		return failure(pre.Path, errors.KindOperationFailed, fmt.Sprintf("Failed to create parent directories: %v", err))
	}
	mode := pre.Mode
	if mode == 0 {
		mode = defaultFilePerm
	}
	if err := p.fs.WriteFileBytesAtomic(pre.AbsPath, pre.Content, mode); err != nil {
		return failure(pre.Path, errors.KindOperationFailed, fmt.Sprintf("Failed to restore file: %v", err))
	}
	return models.OperationResult{Success: true, Message: fmt.Sprintf("Restored file: %s", pre.Path), Path: pre.Path}
}

// RemoveDirectories removes dirs deepest first. Directories that gained
// entries in the meantime are left in place and reported in the error.
func (p *Primitives) RemoveDirectories(dirs []string) error {
	var failed []string
	for i := len(dirs) - 1; i >= 0; i-- {
		exists, err := p.fs.FileExists(dirs[i])
		if err != nil || !exists {
			continue
		}
		if err := p.fs.RemoveEmptyDir(dirs[i]); err != nil {
			failed = append(failed, p.ws.Rel(dirs[i]))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("not removed: %s", strings.Join(failed, ", "))
	}
	return nil
}
