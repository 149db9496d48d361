package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"workspace-editor-server/internal/errors"
	"workspace-editor-server/internal/models"
	"workspace-editor-server/internal/validate"
)

// FileSystemArgs are the arguments of file_system_operation. Pointers
// distinguish absent fields from zero values.
type FileSystemArgs struct {
	Type     *string       `json:"type"`
	Path     *string       `json:"path"`
	Content  *string       `json:"content"`
	Metadata *MetadataArgs `json:"metadata"`
}

// MetadataArgs mirrors models.OperationMetadata.
type MetadataArgs struct {
	FileType    string   `json:"fileType"`
	Description string   `json:"description"`
	Requires    []string `json:"requires"`
	Overwrite   bool     `json:"overwrite"`
}

// CodeEditArgs are the arguments of code_edit.
type CodeEditArgs struct {
	Type        *string `json:"type"`
	Path        *string `json:"path"`
	StartLine   *int    `json:"startLine"`
	EndLine     *int    `json:"endLine"`
	Content     *string `json:"content"`
	Description *string `json:"description"`
}

// ApplyChangesArgs are the arguments of apply_changes.
type ApplyChangesArgs struct {
	Message    *string          `json:"message"`
	Operations []FileSystemArgs `json:"operations"`
	Edits      []CodeEditArgs   `json:"edits"`
}

// Call is a parsed invocation. Exactly one of the argument fields is set,
// matching Tool.
type Call struct {
	ID   string
	Tool string

	FileSystem *FileSystemArgs
	CodeEdit   *CodeEditArgs
	Changes    *ApplyChangesArgs
}

// Parse decodes an invocation against its tool's schema. Unknown tools fail
// with UNKNOWN_TOOL; undecodable payloads, unknown fields, trailing data,
// missing required fields and out-of-enum values fail with
// MALFORMED_ARGUMENTS.
func (r *Registry) Parse(inv models.ToolInvocation) (Call, error) {
	name := strings.TrimSpace(inv.Name)
	if _, ok := r.Lookup(name); !ok {
		return Call{}, errors.NewTurnError(errors.KindUnknownTool,
			fmt.Sprintf("Unknown tool: %s", inv.Name),
			map[string]interface{}{"tool": inv.Name, "tool_call_id": inv.ID})
	}

	call := Call{ID: inv.ID, Tool: name}
	raw := inv.ArgumentsJSON()
	var problems []string
	switch name {
	case FileSystemOperation:
		var args FileSystemArgs
		if err := decodeStrict(raw, &args); err != nil {
			return Call{}, malformed(inv, err.Error())
		}
		problems = checkFileSystemArgs("", args)
		call.FileSystem = &args
	case CodeEdit:
		var args CodeEditArgs
		if err := decodeStrict(raw, &args); err != nil {
			return Call{}, malformed(inv, err.Error())
		}
		problems = checkCodeEditArgs("", args)
		call.CodeEdit = &args
	case ApplyChanges:
		var args ApplyChangesArgs
		if err := decodeStrict(raw, &args); err != nil {
			return Call{}, malformed(inv, err.Error())
		}
		if args.Message == nil {
			problems = append(problems, "message is required")
		}
		for i, op := range args.Operations {
			problems = append(problems, checkFileSystemArgs(fmt.Sprintf("operations[%d].", i), op)...)
		}
		for i, edit := range args.Edits {
			problems = append(problems, checkCodeEditArgs(fmt.Sprintf("edits[%d].", i), edit)...)
		}
		call.Changes = &args
	}
	if len(problems) > 0 {
		return Call{}, malformed(inv, strings.Join(problems, "; "))
	}
	return call, nil
}

// decodeStrict decodes exactly one JSON object, rejecting unknown fields and
// anything after it.
func decodeStrict(raw []byte, v interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("arguments are empty")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid arguments: unexpected data after the arguments object")
	}
	return nil
}

func checkFileSystemArgs(prefix string, args FileSystemArgs) []string {
	var problems []string
	if args.Type == nil {
		problems = append(problems, prefix+"type is required")
	} else {
		switch models.OperationType(*args.Type) {
		case models.OperationCreate, models.OperationEdit, models.OperationDelete, models.OperationMkdir:
		default:
			problems = append(problems, fmt.Sprintf("%stype must be one of create, edit, delete, mkdir (got %q)", prefix, *args.Type))
		}
	}
	if args.Path == nil {
		problems = append(problems, prefix+"path is required")
	}
	return problems
}

func checkCodeEditArgs(prefix string, args CodeEditArgs) []string {
	var problems []string
	if args.Type == nil {
		problems = append(problems, prefix+"type is required")
	} else {
		switch models.EditType(*args.Type) {
		case models.EditInsert, models.EditReplace, models.EditDelete:
		default:
			problems = append(problems, fmt.Sprintf("%stype must be one of insert, replace, delete (got %q)", prefix, *args.Type))
		}
	}
	if args.Path == nil {
		problems = append(problems, prefix+"path is required")
	}
	if args.StartLine == nil {
		problems = append(problems, prefix+"startLine is required")
	}
	if args.Description == nil {
		problems = append(problems, prefix+"description is required")
	}
	return problems
}

func malformed(inv models.ToolInvocation, reason string) *errors.TurnError {
	return errors.NewTurnError(errors.KindMalformedArguments,
		fmt.Sprintf("Malformed arguments for %s: %s", inv.Name, reason),
		map[string]interface{}{"tool": inv.Name, "tool_call_id": inv.ID, "reason": reason})
}

// Batch converts the call into edit engine items.
func (c Call) Batch() []models.BatchItem {
	switch {
	case c.FileSystem != nil:
		return []models.BatchItem{models.OperationItem(c.FileSystem.operation())}
	case c.CodeEdit != nil:
		return []models.BatchItem{models.EditItem(c.CodeEdit.edit())}
	case c.Changes != nil:
		return c.Changes.Response().Items()
	}
	return nil
}

// Validate runs the response validator over the call. apply_changes is
// checked as a complete response, so its message must be non-empty.
func (c Call) Validate() error {
	if c.Changes != nil {
		return validate.Response(c.Changes.Response())
	}
	return validate.Items(c.Batch())
}

func (a FileSystemArgs) operation() models.MutationOperation {
	op := models.MutationOperation{
		Type:    models.OperationType(deref(a.Type)),
		Path:    deref(a.Path),
		Content: deref(a.Content),
	}
	if a.Metadata != nil {
		op.Metadata = &models.OperationMetadata{
			FileType:    a.Metadata.FileType,
			Description: a.Metadata.Description,
			Requires:    a.Metadata.Requires,
			Overwrite:   a.Metadata.Overwrite,
		}
	}
	return op
}

func (a CodeEditArgs) edit() models.LineEdit {
	edit := models.LineEdit{
		Type:        models.EditType(deref(a.Type)),
		Path:        deref(a.Path),
		Content:     deref(a.Content),
		Description: deref(a.Description),
	}
	if a.StartLine != nil {
		edit.StartLine = *a.StartLine
	}
	if a.EndLine != nil {
		edit.EndLine = models.LineNumber(*a.EndLine)
	}
	return edit
}

// Response converts the arguments into a proposed response.
func (a ApplyChangesArgs) Response() models.ProposedResponse {
	resp := models.ProposedResponse{Message: deref(a.Message)}
	for _, op := range a.Operations {
		resp.Operations = append(resp.Operations, op.operation())
	}
	for _, edit := range a.Edits {
		resp.Edits = append(resp.Edits, edit.edit())
	}
	return resp
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
