package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"workspace-editor-server/internal/errors"
	"workspace-editor-server/internal/models"
	"workspace-editor-server/internal/service"
)

const protocolVersion = "2024-11-05"

// Read-only tools offered to MCP clients in addition to the mutation tools.
const (
	ToolReadFile      = "read_file"
	ToolListWorkspace = "list_workspace"
)

// Handles reports whether method is served by the MCP processor.
func Handles(method string) bool {
	switch method {
	case "initialize", "notifications/initialized", "ping", "tools/list", "tools/call":
		return true
	}
	return false
}

// MCPProcessor handles MCP (Model Context Protocol) requests.
type MCPProcessor struct {
	service service.AgentService
	info    models.ServerInfo
}

// NewMCPProcessor creates a new MCPProcessor.
func NewMCPProcessor(svc service.AgentService, version string) *MCPProcessor {
	return &MCPProcessor{
		service: svc,
		info: models.ServerInfo{
			Name:        "workspace-editor-server",
			Version:     version,
			Description: "Transactional workspace editing for tool-calling agents",
		},
	}
}

// ProcessRequest handles an MCP JSON-RPC request and returns the result
// payload or an error detail for the JSON-RPC error member.
func (p *MCPProcessor) ProcessRequest(ctx context.Context, req models.JSONRPCRequest) (interface{}, *models.ErrorDetail) {
	switch req.Method {
	case "initialize":
		return &models.InitializeResponse{
			ProtocolVersion: protocolVersion,
			Capabilities:    models.Capabilities{Tools: models.ToolsCapabilities{}},
			ServerInfo:      p.info,
		}, nil
	case "notifications/initialized", "ping":
		return map[string]interface{}{}, nil
	case "tools/list":
		return &models.ToolsListResponse{Tools: p.toolDefinitions()}, nil
	case "tools/call":
		var params models.MCPToolCallParams
		decoder := json.NewDecoder(bytes.NewReader(req.Params))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&params); err != nil {
			return nil, errors.NewInvalidParamsError(fmt.Sprintf("Invalid parameters for tools/call: %v", err), nil)
		}
		if strings.TrimSpace(params.Name) == "" {
			return nil, errors.NewInvalidParamsError("tools/call requires a tool name", map[string]interface{}{"name": "missing"})
		}
		return p.handleToolCall(ctx, params), nil
	default:
		return nil, errors.NewMethodNotFoundError(req.Method)
	}
}

func (p *MCPProcessor) toolDefinitions() []models.ToolDefinition {
	defs := p.service.Tools()
	return append(defs, readOnlyTools()...)
}

func readOnlyTools() []models.ToolDefinition {
	return []models.ToolDefinition{
		{
			Name:        ToolReadFile,
			Description: "Reads a workspace file, or an inclusive 1-based line range of it.",
			InputSchema: models.Schema{
				"type": "object",
				"properties": map[string]interface{}{
					"path":       map[string]interface{}{"type": "string", "description": "Workspace-relative file path"},
					"start_line": map[string]interface{}{"type": "integer", "minimum": 1},
					"end_line":   map[string]interface{}{"type": "integer", "minimum": 1},
				},
				"required":             []string{"path"},
				"additionalProperties": false,
			},
			Annotations: models.ToolAnnotations{ReadOnlyHint: true},
		},
		{
			Name:        ToolListWorkspace,
			Description: "Lists every non-hidden file and directory in the workspace.",
			InputSchema: models.Schema{
				"type":                 "object",
				"properties":           map[string]interface{}{},
				"additionalProperties": false,
			},
			Annotations: models.ToolAnnotations{ReadOnlyHint: true},
		},
	}
}

// handleToolCall dispatches a tool call. Tool failures are reported in the
// result with IsError set, never as JSON-RPC errors.
func (p *MCPProcessor) handleToolCall(ctx context.Context, params models.MCPToolCallParams) *models.MCPToolResult {
	switch params.Name {
	case ToolReadFile:
		var readParams models.ReadFileRequest
		if err := decodeArguments(params.Arguments, &readParams); err != nil {
			return textResult(fmt.Sprintf("Error: invalid arguments for %s: %v", ToolReadFile, err), true)
		}
		resp, serviceErr := p.service.ReadFile(readParams)
		if serviceErr != nil {
			return textResult(formatToolError(serviceErr), true)
		}
		return textResult(formatReadFileResult(resp), false)
	case ToolListWorkspace:
		snap, serviceErr := p.service.Workspace()
		if serviceErr != nil {
			return textResult(formatToolError(serviceErr), true)
		}
		return textResult(formatWorkspaceResult(snap), false)
	}

	inv := models.ToolInvocation{
		ID:        "mcp_" + uuid.NewString(),
		Name:      params.Name,
		Arguments: params.Arguments,
	}
	result, serviceErr := p.service.ApplyToolCall(ctx, inv)
	if serviceErr != nil {
		return textResult(formatToolError(serviceErr), true)
	}
	return textResult(formatBatchResult(result), !result.Success)
}

func decodeArguments(raw json.RawMessage, v interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func textResult(text string, isError bool) *models.MCPToolResult {
	return &models.MCPToolResult{
		Content: []models.MCPToolContent{{Type: "text", Text: text}},
		IsError: isError,
	}
}

// formatBatchResult formats a batch outcome, one line per item.
func formatBatchResult(result *models.BatchResult) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Batch: %s\nState: %s\n%s\n", result.ID, result.State, result.Message))
	for i, op := range result.Operations {
		status := "ok"
		if !op.Success {
			status = "failed"
			if op.Error != "" {
				status = "failed (" + string(op.Error) + ")"
			}
		}
		builder.WriteString(fmt.Sprintf("%d. %s: %s", i+1, status, op.Message))
		if op.Changes != nil {
			builder.WriteString(fmt.Sprintf(" [+%d -%d]", op.Changes.LinesAdded, op.Changes.LinesRemoved))
		}
		builder.WriteString("\n")
		if op.Success && op.Changes != nil && op.Changes.Preview != "" {
			for _, line := range strings.Split(strings.TrimSuffix(op.Changes.Preview, "\n"), "\n") {
				builder.WriteString("   " + line + "\n")
			}
		}
	}
	for _, comp := range result.Compensations {
		if !comp.Success {
			builder.WriteString(fmt.Sprintf("Compensation failed for %s: %s\n", comp.Path, comp.Message))
		}
	}
	return builder.String()
}

// formatReadFileResult formats the result of a read_file call.
func formatReadFileResult(resp *models.ReadFileResponse) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("File: %s\n", resp.Path))
	builder.WriteString(fmt.Sprintf("Total Lines: %d\n", resp.TotalLines))
	if r := resp.RangeRequested; r != nil {
		builder.WriteString(fmt.Sprintf("Range Returned: start_line=%d, end_line=%d\n", r.StartLine, r.EndLine))
	}
	builder.WriteString(fmt.Sprintf("\nContent:\n%s", resp.Content))
	return builder.String()
}

// formatWorkspaceResult formats the result of a list_workspace call.
func formatWorkspaceResult(snap *models.WorkspaceSnapshot) string {
	if len(snap.Files) == 0 && len(snap.Directories) == 0 {
		return fmt.Sprintf("Workspace %s is empty", snap.Root)
	}
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Workspace: %s\nDirectories: %d\nFiles: %d\n\n", snap.Root, len(snap.Directories), len(snap.Files)))
	for _, dir := range snap.Directories {
		builder.WriteString(fmt.Sprintf("%s/\n", dir))
	}
	for _, file := range snap.Files {
		builder.WriteString(fmt.Sprintf("%s\n", file))
	}
	return builder.String()
}

// formatToolError formats a service error as "Error: <kind>: <message> (Code: <code>)".
func formatToolError(serviceErr *models.ErrorDetail) string {
	if serviceErr == nil {
		return "Error: An unexpected error occurred, but no details were provided."
	}
	if serviceErr.Kind != "" {
		return fmt.Sprintf("Error: %s: %s (Code: %d)", serviceErr.Kind, serviceErr.Message, serviceErr.Code)
	}
	return fmt.Sprintf("Error: %s (Code: %d)", serviceErr.Message, serviceErr.Code)
}
