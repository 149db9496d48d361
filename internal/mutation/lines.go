package mutation

import (
	"fmt"

	"workspace-editor-server/internal/errors"
	"workspace-editor-server/internal/models"
)

// Error is a primitive failure with its kind.
type Error struct {
	Kind    models.ErrorKind
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// LineChange is the outcome of a line transform.
type LineChange struct {
	// Lines is the new line sequence.
	Lines []string
	// Removed is the span the edit took out (Replace and delete).
	Removed []string
	// Inserted is the number of lines the edit put in.
	Inserted int
}

// Transform applies one line edit to lines. startLine and endLine are
// 1-based and inclusive. Insert puts newLines before startLine, Replace
// substitutes [startLine, endLine], and delete removes that range.
//
// Ranges must satisfy 1 <= startLine <= endLine <= len(lines). With
// appendAllowed an Insert may also target len(lines)+1, which compensation
// needs to restore a span deleted from the end of a file.
func Transform(lines []string, editType models.EditType, startLine, endLine int, newLines []string, appendAllowed bool) (LineChange, error) {
	switch editType {
	case models.EditInsert, models.EditReplace, models.EditDelete:
	default:
		return LineChange{}, &Error{Kind: errors.KindInvalidEditType, Message: fmt.Sprintf("Invalid edit type: %q", editType)}
	}

	count := len(lines)
	maxStart := count
	if appendAllowed && editType == models.EditInsert {
		maxStart = count + 1
	}
	if startLine < 1 || startLine > maxStart {
		return LineChange{}, invalidLines(startLine, endLine, count)
	}
	if editType != models.EditInsert && (endLine < startLine || endLine > count) {
		return LineChange{}, invalidLines(startLine, endLine, count)
	}
	if editType == models.EditInsert && endLine != startLine && (endLine < startLine || endLine > count) {
		return LineChange{}, invalidLines(startLine, endLine, count)
	}

	startIdx := startLine - 1
	switch editType {
	case models.EditInsert:
		out := make([]string, 0, count+len(newLines))
		out = append(out, lines[:startIdx]...)
		out = append(out, newLines...)
		out = append(out, lines[startIdx:]...)
		return LineChange{Lines: out, Inserted: len(newLines)}, nil
	case models.EditReplace:
		removed := append([]string(nil), lines[startIdx:endLine]...)
		out := make([]string, 0, count-len(removed)+len(newLines))
		out = append(out, lines[:startIdx]...)
		out = append(out, newLines...)
		out = append(out, lines[endLine:]...)
		return LineChange{Lines: out, Removed: removed, Inserted: len(newLines)}, nil
	default:
		removed := append([]string(nil), lines[startIdx:endLine]...)
		out := make([]string, 0, count-len(removed))
		out = append(out, lines[:startIdx]...)
		out = append(out, lines[endLine:]...)
		return LineChange{Lines: out, Removed: removed}, nil
	}
}

func invalidLines(startLine, endLine, count int) *Error {
	return &Error{
		Kind:    errors.KindInvalidLineNumbers,
		Message: fmt.Sprintf("Invalid line numbers: start %d, end %d (file has %d lines)", startLine, endLine, count),
	}
}
