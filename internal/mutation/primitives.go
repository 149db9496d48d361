// Package mutation implements the single-step workspace changes: whole-file
// create, overwrite, delete and make-directory, plus line-level edits. A
// primitive never returns a Go error; every failure is reported through the
// Success and Error fields of the OperationResult it produces.
package mutation

import (
	"fmt"
	"os"
	"path/filepath"

	"workspace-editor-server/internal/diff"
	"workspace-editor-server/internal/errors"
	"workspace-editor-server/internal/filesystem"
	"workspace-editor-server/internal/models"
	"workspace-editor-server/internal/workspace"
)

const (
	defaultFilePerm os.FileMode = 0644
	defaultDirPerm  os.FileMode = 0755
)

// Primitives applies single mutations inside one workspace.
type Primitives struct {
	ws *workspace.Workspace
	fs filesystem.FileSystemAdapter
}

// New returns primitives bound to ws.
func New(ws *workspace.Workspace) *Primitives {
	return &Primitives{ws: ws, fs: ws.FS()}
}

// Workspace returns the workspace the primitives operate on.
func (p *Primitives) Workspace() *workspace.Workspace { return p.ws }

// Apply dispatches a batch item to the matching primitive. Items with no
// payload or an unrecognized variant fail without touching storage.
func (p *Primitives) Apply(item models.BatchItem) models.OperationResult {
	switch {
	case item.Operation != nil && item.Edit != nil:
		return failure(item.Path(), errors.KindInvalidOperation, "Batch item must hold exactly one of operation or edit")
	case item.Operation != nil:
		return p.ApplyOperation(*item.Operation)
	case item.Edit != nil:
		return p.ApplyLineEdit(*item.Edit)
	}
	return failure("", errors.KindInvalidOperation, "Batch item is empty")
}

// ApplyOperation runs one whole-file operation.
func (p *Primitives) ApplyOperation(op models.MutationOperation) models.OperationResult {
	var res models.OperationResult
	switch op.Type {
	case models.OperationCreate:
		res = p.Create(op.Path, op.Content, op.OverwriteAllowed())
	case models.OperationEdit:
		res = p.Edit(op.Path, op.Content)
	case models.OperationDelete:
		res = p.Delete(op.Path)
	case models.OperationMkdir:
		res = p.MakeDirectory(op.Path)
	default:
		res = failure(op.Path, errors.KindInvalidOperation, fmt.Sprintf("Invalid operation type: %q", op.Type))
	}
	res.Operation = &op
	return res
}

// Create writes a new file, creating missing parent directories. An existing
// file is only replaced when overwriteAllowed is set.
func (p *Primitives) Create(path, content string, overwriteAllowed bool) models.OperationResult {
	absPath, errDetail := p.ws.Resolve(path)
	if errDetail != nil {
		return FailureFromDetail(path, errDetail)
	}
	if res, ok := p.checkSize(path, len(content)); !ok {
		return res
	}

	stats, exists, res, ok := p.stat(path, absPath)
	if !ok {
		return res
	}
	perm := defaultFilePerm
	before := ""
	if exists {
		if stats.IsDir {
			return failure(path, errors.KindOperationFailed, fmt.Sprintf("Cannot create file, path is a directory: %s", path))
		}
		if !overwriteAllowed {
			return failure(path, errors.KindFileExists, fmt.Sprintf("File already exists: %s", path))
		}
		current, err := p.fs.ReadFileBytes(absPath)
		if err != nil {
			return failure(path, errors.KindOperationFailed, fmt.Sprintf("Failed to read existing file: %v", err))
		}
		before = string(current)
		perm = stats.Mode
	}

	createdDirs, err := p.fs.MkdirAll(filepath.Dir(absPath), defaultDirPerm)
	if err != nil {
		return failure(path, errors.KindOperationFailed, fmt.Sprintf("Failed to create parent directories: %v", err))
	}
	if err := p.fs.WriteFileBytesAtomic(absPath, []byte(content), perm); err != nil {
		message := fmt.Sprintf("Failed to write file: %v", err)
		if rmErr := p.RemoveDirectories(createdDirs); rmErr != nil {
			message = fmt.Sprintf("%s (%v)", message, rmErr)
		}
		return failure(path, errors.KindOperationFailed, message)
	}

	message := fmt.Sprintf("Created file: %s", path)
	if exists {
		message = fmt.Sprintf("Overwrote file: %s", path)
	}
	return models.OperationResult{
		Success: true,
		Message: message,
		Path:    path,
		Changes: diff.Summarize(before, content),
	}
}

// Edit replaces the entire content of an existing file.
func (p *Primitives) Edit(path, content string) models.OperationResult {
	absPath, errDetail := p.ws.Resolve(path)
	if errDetail != nil {
		return FailureFromDetail(path, errDetail)
	}
	if res, ok := p.checkSize(path, len(content)); !ok {
		return res
	}
	stats, current, res, ok := p.readExistingFile(path, absPath)
	if !ok {
		return res
	}
	if err := p.fs.WriteFileBytesAtomic(absPath, []byte(content), stats.Mode); err != nil {
		return failure(path, errors.KindOperationFailed, fmt.Sprintf("Failed to write file: %v", err))
	}
	return models.OperationResult{
		Success: true,
		Message: fmt.Sprintf("Updated file: %s", path),
		Path:    path,
		Changes: diff.Summarize(string(current), content),
	}
}

// Delete removes an existing file. Directories are refused.
func (p *Primitives) Delete(path string) models.OperationResult {
	absPath, errDetail := p.ws.Resolve(path)
	if errDetail != nil {
		return FailureFromDetail(path, errDetail)
	}
	_, current, res, ok := p.readExistingFile(path, absPath)
	if !ok {
		return res
	}
	if err := p.fs.Remove(absPath); err != nil {
		return failure(path, errors.KindOperationFailed, fmt.Sprintf("Failed to delete file: %v", err))
	}
	return models.OperationResult{
		Success: true,
		Message: fmt.Sprintf("Deleted file: %s", path),
		Path:    path,
		Changes: diff.Summarize(string(current), ""),
	}
}

// MakeDirectory creates a directory and any missing parents. An existing
// directory is not an error.
func (p *Primitives) MakeDirectory(path string) models.OperationResult {
	absPath, errDetail := p.ws.Resolve(path)
	if errDetail != nil {
		return FailureFromDetail(path, errDetail)
	}
	stats, exists, res, ok := p.stat(path, absPath)
	if !ok {
		return res
	}
	if exists && !stats.IsDir {
		return failure(path, errors.KindOperationFailed, fmt.Sprintf("Path exists and is not a directory: %s", path))
	}
	if _, err := p.fs.MkdirAll(absPath, defaultDirPerm); err != nil {
		return failure(path, errors.KindOperationFailed, fmt.Sprintf("Failed to create directory: %v", err))
	}
	message := fmt.Sprintf("Created directory: %s", path)
	if exists {
		message = fmt.Sprintf("Directory already exists: %s", path)
	}
	return models.OperationResult{Success: true, Message: message, Path: path}
}

// ApplyLineEdit applies an insert, replace or delete to an existing file.
// The edit's content is split into lines with one trailing newline ignored;
// the file keeps its own line separator.
func (p *Primitives) ApplyLineEdit(edit models.LineEdit) models.OperationResult {
	var newLines []string
	if edit.Type != models.EditDelete {
		newLines = filesystem.SplitContentLines(edit.Content)
	}
	res := p.applyLines(edit, newLines, false)
	res.Edit = &edit
	return res
}

// applyLines is ApplyLineEdit with the replacement lines given verbatim.
func (p *Primitives) applyLines(edit models.LineEdit, newLines []string, appendAllowed bool) models.OperationResult {
	path := edit.Path
	switch edit.Type {
	case models.EditInsert, models.EditReplace, models.EditDelete:
	default:
		return failure(path, errors.KindInvalidEditType, fmt.Sprintf("Invalid edit type: %q", edit.Type))
	}
	absPath, errDetail := p.ws.Resolve(path)
	if errDetail != nil {
		return FailureFromDetail(path, errDetail)
	}
	stats, current, res, ok := p.readExistingFile(path, absPath)
	if !ok {
		return res
	}

	lines, sep := filesystem.SplitLines(string(current))
	change, err := Transform(lines, edit.Type, edit.StartLine, edit.LastLine(), newLines, appendAllowed)
	if err != nil {
		return failureFromError(path, err)
	}
	updated := filesystem.JoinLines(change.Lines, sep)
	if res, ok := p.checkSize(path, len(updated)); !ok {
		return res
	}
	if err := p.fs.WriteFileBytesAtomic(absPath, []byte(updated), stats.Mode); err != nil {
		return failure(path, errors.KindOperationFailed, fmt.Sprintf("Failed to write file: %v", err))
	}
	return models.OperationResult{
		Success: true,
		Message: fmt.Sprintf("Applied %s edit to %s at lines %d-%d", edit.Type, path, edit.StartLine, edit.LastLine()),
		Path:    path,
		Changes: &models.ChangeSummary{
			LinesAdded:   change.Inserted,
			LinesRemoved: len(change.Removed),
			Preview:      diff.Preview(string(current), updated),
		},
	}
}

func (p *Primitives) stat(path, absPath string) (*filesystem.FileStats, bool, models.OperationResult, bool) {
	exists, err := p.fs.FileExists(absPath)
	if err != nil {
		return nil, false, failure(path, errors.KindOperationFailed, fmt.Sprintf("Failed to check path: %v", err)), false
	}
	if !exists {
		return nil, false, models.OperationResult{}, true
	}
	stats, err := p.fs.GetFileStats(absPath)
	if err != nil {
		return nil, false, failure(path, errors.KindOperationFailed, fmt.Sprintf("Failed to stat path: %v", err)), false
	}
	return stats, true, models.OperationResult{}, true
}

// readExistingFile loads a regular file that must already exist.
func (p *Primitives) readExistingFile(path, absPath string) (*filesystem.FileStats, []byte, models.OperationResult, bool) {
	stats, exists, res, ok := p.stat(path, absPath)
	if !ok {
		return nil, nil, res, false
	}
	if !exists {
		return nil, nil, failure(path, errors.KindFileNotFound, fmt.Sprintf("File not found: %s", path)), false
	}
	if stats.IsDir {
		return nil, nil, failure(path, errors.KindOperationFailed, fmt.Sprintf("Path is a directory: %s", path)), false
	}
	if stats.Size > p.ws.MaxFileSize() {
		return nil, nil, failure(path, errors.KindOperationFailed, fmt.Sprintf("File exceeds maximum size of %d bytes", p.ws.MaxFileSize())), false
	}
	content, err := p.fs.ReadFileBytes(absPath)
	if err != nil {
		return nil, nil, failure(path, errors.KindOperationFailed, fmt.Sprintf("Failed to read file: %v", err)), false
	}
	return stats, content, models.OperationResult{}, true
}

func (p *Primitives) checkSize(path string, size int) (models.OperationResult, bool) {
	if int64(size) > p.ws.MaxFileSize() {
		return failure(path, errors.KindOperationFailed, fmt.Sprintf("Content exceeds maximum size of %d bytes", p.ws.MaxFileSize())), false
	}
	return models.OperationResult{}, true
}

func failure(path string, kind models.ErrorKind, message string) models.OperationResult {
	return models.OperationResult{Success: false, Message: message, Path: path, Error: kind}
}

// FailureFromDetail converts an ErrorDetail into a failed result for path.
func FailureFromDetail(path string, detail *models.ErrorDetail) models.OperationResult {
	kind := detail.Kind
	if kind == "" {
		kind = errors.KindOperationFailed
	}
	message := detail.Message
	if data, ok := detail.Data.(map[string]interface{}); ok {
		if details, ok := data["details"].(string); ok && details != "" && details != message {
			message = fmt.Sprintf("%s: %s", message, details)
		}
	}
	return failure(path, kind, message)
}

func failureFromError(path string, err error) models.OperationResult {
	if mErr, ok := err.(*Error); ok {
		return failure(path, mErr.Kind, mErr.Message)
	}
	return failure(path, errors.KindOperationFailed, err.Error())
}
