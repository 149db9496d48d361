// Package validate performs the structural checks a proposed agent response
// must pass before anything in it is applied. Checks are pure: they never
// look at the workspace.
package validate

import (
	"fmt"
	"strings"

	"workspace-editor-server/internal/errors"
	"workspace-editor-server/internal/models"
)

// Issue is one failed check. Field is a path such as "edits[2].startLine".
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error lists every issue found in one value.
type Error struct {
	Issues []Issue
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Field+": "+issue.Message)
	}
	return "invalid response: " + strings.Join(parts, "; ")
}

// Detail converts the error into an INVALID_RESPONSE ErrorDetail.
func (e *Error) Detail() *models.ErrorDetail {
	issues := make(map[string]interface{}, len(e.Issues))
	for _, issue := range e.Issues {
		issues[issue.Field] = issue.Message
	}
	detail := errors.NewInvalidParamsError(e.Error(), issues)
	detail.Code = errors.CodeInvalidResponse
	detail.Kind = errors.KindInvalidResponse
	return detail
}

// TurnError wraps the issues as a turn-aborting error.
func (e *Error) TurnError() *errors.TurnError {
	return errors.NewTurnError(errors.KindInvalidResponse, e.Error(), e.Issues)
}

// Response checks a complete proposed response: a non-empty message plus
// well-formed operations and edits.
func Response(resp models.ProposedResponse) error {
	var issues []Issue
	if strings.TrimSpace(resp.Message) == "" {
		issues = append(issues, Issue{Field: "message", Message: "message is required"})
	}
	for i, op := range resp.Operations {
		issues = append(issues, Operation(fmt.Sprintf("operations[%d]", i), op)...)
	}
	for i, edit := range resp.Edits {
		issues = append(issues, Edit(fmt.Sprintf("edits[%d]", i), edit)...)
	}
	return asError(issues)
}

// Items checks a batch without the message requirement, which only applies
// to complete responses.
func Items(items []models.BatchItem) error {
	var issues []Issue
	for i, item := range items {
		prefix := fmt.Sprintf("items[%d]", i)
		switch {
		case item.Operation != nil && item.Edit != nil:
			issues = append(issues, Issue{Field: prefix, Message: "must hold exactly one of operation or edit"})
		case item.Operation != nil:
			issues = append(issues, Operation(prefix, *item.Operation)...)
		case item.Edit != nil:
			issues = append(issues, Edit(prefix, *item.Edit)...)
		default:
			issues = append(issues, Issue{Field: prefix, Message: "item is empty"})
		}
	}
	return asError(issues)
}

// Operation checks one whole-file operation. Type values are not checked
// against the known set here; unknown types fail in the edit engine with
// INVALID_OPERATION.
func Operation(prefix string, op models.MutationOperation) []Issue {
	var issues []Issue
	if op.Type == "" {
		issues = append(issues, Issue{Field: prefix + ".type", Message: "type is required"})
	}
	if strings.TrimSpace(op.Path) == "" {
		issues = append(issues, Issue{Field: prefix + ".path", Message: "path is required"})
	}
	if (op.Type == models.OperationCreate || op.Type == models.OperationEdit) && op.Content == "" {
		issues = append(issues, Issue{Field: prefix + ".content", Message: fmt.Sprintf("content is required for %s", op.Type)})
	}
	return issues
}

// Edit checks one line edit.
func Edit(prefix string, edit models.LineEdit) []Issue {
	var issues []Issue
	if edit.Type == "" {
		issues = append(issues, Issue{Field: prefix + ".type", Message: "type is required"})
	}
	if strings.TrimSpace(edit.Path) == "" {
		issues = append(issues, Issue{Field: prefix + ".path", Message: "path is required"})
	}
	if edit.StartLine == 0 {
		issues = append(issues, Issue{Field: prefix + ".startLine", Message: "startLine is required"})
	}
	if edit.Type != models.EditDelete && edit.Content == "" {
		issues = append(issues, Issue{Field: prefix + ".content", Message: "content is required unless type is delete"})
	}
	return issues
}

func asError(issues []Issue) error {
	if len(issues) == 0 {
		return nil
	}
	return &Error{Issues: issues}
}
