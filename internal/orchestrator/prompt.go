package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"workspace-editor-server/internal/models"
)

// SystemPrompt renders the system message for a turn: the workspace
// context followed by the tool schemas.
func SystemPrompt(wctx *models.WorkspaceContext, defs []models.ToolDefinition) string {
	var b strings.Builder
	b.WriteString("You are an expert coding assistant with access to modify the workspace below.\n")
	b.WriteString("All file changes MUST be made through tool calls. Each tool call is applied as its own transaction: ")
	b.WriteString("if any part fails, every change of that call is reverted.\n\n")

	b.WriteString("WORKSPACE:\n")
	b.WriteString(wctx.WorkspacePath)
	b.WriteString("\n\nWORKSPACE STRUCTURE:\n")
	for _, dir := range wctx.Directories {
		fmt.Fprintf(&b, "  %s/\n", dir)
	}
	for _, file := range wctx.Files {
		fmt.Fprintf(&b, "  %s\n", file)
	}
	if len(wctx.Directories)+len(wctx.Files) == 0 {
		b.WriteString("  (empty)\n")
	}

	b.WriteString("\nCURRENT CONTEXT:\n")
	if wctx.CurrentFile != "" {
		fmt.Fprintf(&b, "- Currently viewing: %s\n", wctx.CurrentFile)
	} else {
		b.WriteString("- No file currently open\n")
	}
	if sel := wctx.Selection; sel != nil {
		fmt.Fprintf(&b, "- Selected lines %d-%d in %s\n", sel.StartLine, sel.EndLine, sel.File)
	}
	if len(wctx.OpenFiles) > 0 {
		b.WriteString("- Open files:\n")
		for _, f := range wctx.OpenFiles {
			fmt.Fprintf(&b, "  - %s\n", f)
		}
	}

	if len(defs) > 0 {
		b.WriteString("\nAVAILABLE TOOLS:\n")
		for i, def := range defs {
			schema, err := json.MarshalIndent(def.InputSchema, "", "  ")
			if err != nil {
				schema = []byte("{}")
			}
			fmt.Fprintf(&b, "\n%d. %s: %s\n%s\n", i+1, def.Name, def.Description, schema)
		}
	}

	b.WriteString("\nRULES:\n")
	b.WriteString("1. Paths are relative to the workspace root and must stay inside it.\n")
	b.WriteString("2. Line numbers are 1-based and refer to the file as it is before the edit.\n")
	b.WriteString("3. Provide every required argument and no others.\n")
	b.WriteString("4. After the tools run you will receive their results; summarize what changed for the user.\n")
	return b.String()
}
