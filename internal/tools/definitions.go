// Package tools declares the tools offered to the reasoning engine and
// turns their invocations into batches for the edit engine.
package tools

import (
	"strings"

	"workspace-editor-server/internal/models"
)

// Tool names.
const (
	FileSystemOperation = "file_system_operation"
	CodeEdit            = "code_edit"
	ApplyChanges        = "apply_changes"
)

func fileSystemOperationSchema() models.Schema {
	return models.Schema{
		"type": "object",
		"properties": map[string]interface{}{
			"type": map[string]interface{}{
				"type":        "string",
				"description": "The type of operation to perform",
				"enum":        []string{"create", "edit", "delete", "mkdir"},
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "The path to the file or directory, relative to the workspace root",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "The content to write to the file (required for create and edit)",
			},
			"metadata": map[string]interface{}{
				"type":        "object",
				"description": "Additional metadata about the operation",
				"properties": map[string]interface{}{
					"fileType":    map[string]interface{}{"type": "string"},
					"description": map[string]interface{}{"type": "string"},
					"requires":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"overwrite":   map[string]interface{}{"type": "boolean", "description": "Allow create to replace an existing file"},
				},
				"additionalProperties": false,
			},
		},
		"required":             []string{"type", "path"},
		"additionalProperties": false,
	}
}

func codeEditSchema() models.Schema {
	return models.Schema{
		"type": "object",
		"properties": map[string]interface{}{
			"type": map[string]interface{}{
				"type":        "string",
				"description": "The type of edit to perform",
				"enum":        []string{"insert", "replace", "delete"},
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "The path to the file to edit",
			},
			"startLine": map[string]interface{}{
				"type":        "integer",
				"description": "The line number to start editing at (1-based)",
			},
			"endLine": map[string]interface{}{
				"type":        "integer",
				"description": "The line number to end editing at (1-based, inclusive)",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "The content to insert or replace with",
			},
			"description": map[string]interface{}{
				"type":        "string",
				"description": "A description of what this edit does",
			},
		},
		"required":             []string{"type", "path", "startLine", "description"},
		"additionalProperties": false,
	}
}

func applyChangesSchema() models.Schema {
	op := fileSystemOperationSchema()
	edit := codeEditSchema()
	return models.Schema{
		"type": "object",
		"properties": map[string]interface{}{
			"message": map[string]interface{}{
				"type":        "string",
				"description": "A short explanation of the change set",
			},
			"operations": map[string]interface{}{
				"type":        "array",
				"description": "Whole-file operations, applied first and in order",
				"items":       map[string]interface{}(op),
			},
			"edits": map[string]interface{}{
				"type":        "array",
				"description": "Line edits, applied after the operations and in order",
				"items":       map[string]interface{}(edit),
			},
		},
		"required":             []string{"message"},
		"additionalProperties": false,
	}
}

// Registry holds the tools enabled for this server.
type Registry struct {
	defs   []models.ToolDefinition
	byName map[string]models.ToolDefinition
}

// NewRegistry returns the file_system_operation and code_edit tools, plus
// apply_changes when batchEnabled is set.
func NewRegistry(batchEnabled bool) *Registry {
	defs := []models.ToolDefinition{
		{
			Name:        FileSystemOperation,
			Description: "Perform file system operations like creating, editing, or deleting files and directories",
			InputSchema: fileSystemOperationSchema(),
			Annotations: models.ToolAnnotations{DestructiveHint: true},
		},
		{
			Name:        CodeEdit,
			Description: "Perform precise line-level edits to code files",
			InputSchema: codeEditSchema(),
			Annotations: models.ToolAnnotations{DestructiveHint: true},
		},
	}
	if batchEnabled {
		defs = append(defs, models.ToolDefinition{
			Name:        ApplyChanges,
			Description: "Apply a set of file operations and line edits as one all-or-nothing change",
			InputSchema: applyChangesSchema(),
			Annotations: models.ToolAnnotations{DestructiveHint: true},
		})
	}
	byName := make(map[string]models.ToolDefinition, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
	}
	return &Registry{defs: defs, byName: byName}
}

// Definitions returns the enabled tools in declaration order.
func (r *Registry) Definitions() []models.ToolDefinition {
	out := make([]models.ToolDefinition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Lookup finds an enabled tool by name.
func (r *Registry) Lookup(name string) (models.ToolDefinition, bool) {
	def, ok := r.byName[strings.TrimSpace(name)]
	return def, ok
}
