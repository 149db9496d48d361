package workspace

import (
	stdErrors "errors"
	"fmt"
	"os"

	"workspace-editor-server/internal/errors"
	"workspace-editor-server/internal/filesystem"
	"workspace-editor-server/internal/models"
)

// ReadFile returns a file, or an inclusive 1-based line range of it, for the
// editor surface.
func (w *Workspace) ReadFile(req models.ReadFileRequest) (*models.ReadFileResponse, *models.ErrorDetail) {
	filePath, errDetail := w.Resolve(req.Path)
	if errDetail != nil {
		return nil, errDetail
	}

	if req.StartLine < 0 || req.EndLine < 0 {
		return nil, errors.NewInvalidParamsError("Line numbers must be 1 or greater if specified.", map[string]interface{}{"start_line": req.StartLine, "end_line": req.EndLine})
	}
	if req.StartLine > 0 && req.EndLine > 0 && req.StartLine > req.EndLine {
		return nil, errors.NewInvalidParamsError("start_line cannot be greater than end_line.", map[string]interface{}{"start_line": req.StartLine, "end_line": req.EndLine})
	}

	stats, err := w.fs.GetFileStats(filePath)
	if err != nil {
		if stdErrors.Is(err, os.ErrNotExist) {
			return nil, errors.NewFileNotFoundError(req.Path, "read")
		}
		if stdErrors.Is(err, os.ErrPermission) {
			return nil, errors.NewPermissionDeniedError(req.Path, "read")
		}
		return nil, errors.NewFileSystemError(req.Path, "get_stats", err.Error())
	}
	if stats.IsDir {
		return nil, errors.NewInvalidParamsError(fmt.Sprintf("Path '%s' is a directory, not a file.", req.Path), map[string]interface{}{"path": req.Path})
	}
	if stats.Size > w.maxFileSize {
		return nil, errors.NewFileTooLargeError(req.Path, int(w.maxFileSize/(1024*1024)))
	}

	fileContent, err := w.fs.ReadFileBytes(filePath)
	if err != nil {
		return nil, errors.NewFileSystemError(req.Path, "read_bytes", err.Error())
	}
	if !w.fs.IsValidUTF8(fileContent) {
		return nil, errors.NewFileSystemError(req.Path, "read", "File content is not valid UTF-8")
	}

	lines, sep := filesystem.SplitLines(string(fileContent))
	total := len(lines)

	if req.StartLine == 0 && req.EndLine == 0 {
		return &models.ReadFileResponse{Path: req.Path, Content: string(fileContent), TotalLines: total}, nil
	}

	start, end := req.StartLine, req.EndLine
	if start == 0 {
		start = 1
	}
	if end == 0 || end > total {
		end = total
	}
	if start > total {
		return nil, errors.NewInvalidParamsError(
			fmt.Sprintf("start_line %d is greater than total lines %d.", start, total),
			map[string]interface{}{"path": req.Path, "start_line": start, "total_lines": total})
	}
	return &models.ReadFileResponse{
		Path:           req.Path,
		Content:        filesystem.JoinLines(lines[start-1:end], sep),
		TotalLines:     total,
		RangeRequested: &models.RangeRequested{StartLine: start, EndLine: end},
	}, nil
}
