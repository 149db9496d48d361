package service

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"workspace-editor-server/internal/batch"
	"workspace-editor-server/internal/errors"
	"workspace-editor-server/internal/models"
	"workspace-editor-server/internal/orchestrator"
	"workspace-editor-server/internal/tools"
	"workspace-editor-server/internal/validate"
	"workspace-editor-server/internal/workspace"
)

const maxChatMessages = 500

// AgentService defines the operations the transports expose.
type AgentService interface {
	// Chat runs one conversational turn.
	Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, *models.ErrorDetail)
	// Apply validates a complete proposed response and applies it as one batch.
	Apply(ctx context.Context, resp models.ProposedResponse) (*models.BatchResult, *models.ErrorDetail)
	// ApplyToolCall parses, validates and applies a single tool invocation.
	// A dispatched batch is always returned, failed or not; the error detail
	// is reserved for invocations that never reached the edit engine.
	ApplyToolCall(ctx context.Context, inv models.ToolInvocation) (*models.BatchResult, *models.ErrorDetail)
	Workspace() (*models.WorkspaceSnapshot, *models.ErrorDetail)
	ReadFile(req models.ReadFileRequest) (*models.ReadFileResponse, *models.ErrorDetail)
	Tools() []models.ToolDefinition
}

// TurnRunner runs conversational turns. *orchestrator.Orchestrator
// implements it.
type TurnRunner interface {
	Run(ctx context.Context, req models.ChatRequest) (*orchestrator.Turn, error)
}

// DefaultAgentService implements the AgentService interface.
type DefaultAgentService struct {
	ws      *workspace.Workspace
	runner  TurnRunner
	applier batch.Applier
	tools   *tools.Registry
	logger  *slog.Logger
}

// NewDefaultAgentService creates a new DefaultAgentService. runner may be nil
// when no reasoning engine is configured; Chat then reports a transport
// error and every other operation keeps working.
func NewDefaultAgentService(
	ws *workspace.Workspace,
	runner TurnRunner,
	applier batch.Applier,
	registry *tools.Registry,
	logger *slog.Logger,
) (*DefaultAgentService, error) {
	if ws == nil {
		return nil, fmt.Errorf("workspace is required")
	}
	if applier == nil {
		return nil, fmt.Errorf("batch applier is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultAgentService{
		ws:      ws,
		runner:  runner,
		applier: applier,
		tools:   registry,
		logger:  logger,
	}, nil
}

// Chat implements the AgentService interface.
func (s *DefaultAgentService) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, *models.ErrorDetail) {
	if errDetail := checkChatRequest(req); errDetail != nil {
		return nil, errDetail
	}
	if s.runner == nil {
		detail := errors.NewErrorDetail(errors.CodeTransportError, "No reasoning engine is configured", nil)
		detail.Kind = errors.KindTransport
		return nil, detail
	}

	turn, err := s.runner.Run(ctx, req)
	if err != nil {
		detail := errors.FromError(err)
		if turn != nil && len(turn.Invocations) > 0 {
			detail.Data = map[string]interface{}{
				"details":     detail.Data,
				"turn_id":     turn.ID,
				"invocations": turn.Invocations,
			}
		}
		s.logger.Warn("Chat turn failed", "kind", detail.Kind, "error", err)
		return nil, detail
	}
	return turn.Response(), nil
}

func checkChatRequest(req models.ChatRequest) *models.ErrorDetail {
	if len(req.Messages) == 0 {
		return errors.NewInvalidParamsError("messages must contain at least one message", nil)
	}
	if len(req.Messages) > maxChatMessages {
		return errors.NewInvalidParamsError(
			fmt.Sprintf("messages exceeds maximum of %d", maxChatMessages),
			map[string]interface{}{"count": len(req.Messages)})
	}
	issues := map[string]interface{}{}
	for i, msg := range req.Messages {
		field := fmt.Sprintf("messages[%d]", i)
		switch msg.Role {
		case models.RoleUser, models.RoleAssistant, models.RoleSystem:
		case models.RoleTool:
			if strings.TrimSpace(msg.ToolCallID) == "" {
				issues[field+".tool_call_id"] = "tool messages require tool_call_id"
			}
		default:
			issues[field+".role"] = fmt.Sprintf("unsupported role %q", msg.Role)
		}
	}
	if sel := req.Selection; sel != nil {
		if sel.StartLine < 1 || sel.EndLine < sel.StartLine {
			issues["selection"] = fmt.Sprintf("invalid line range %d-%d", sel.StartLine, sel.EndLine)
		}
	}
	if len(issues) > 0 {
		return errors.NewInvalidParamsError("Invalid chat request", issues)
	}
	return nil
}

// Apply implements the AgentService interface.
func (s *DefaultAgentService) Apply(ctx context.Context, resp models.ProposedResponse) (*models.BatchResult, *models.ErrorDetail) {
	if err := validate.Response(resp); err != nil {
		return nil, validationDetail(err)
	}
	result := s.applier.Apply(ctx, resp.Items())
	if !result.Success {
		return &result, errors.NewBatchFailedError(result)
	}
	return &result, nil
}

// ApplyToolCall implements the AgentService interface.
func (s *DefaultAgentService) ApplyToolCall(ctx context.Context, inv models.ToolInvocation) (*models.BatchResult, *models.ErrorDetail) {
	call, err := s.tools.Parse(inv)
	if err != nil {
		return nil, errors.FromError(err)
	}
	if err := call.Validate(); err != nil {
		return nil, validationDetail(err)
	}
	result := s.applier.Apply(ctx, call.Batch())
	s.logger.Info("Applied tool call", "tool", call.Tool, "batch_id", result.ID, "success", result.Success)
	return &result, nil
}

// Workspace implements the AgentService interface.
func (s *DefaultAgentService) Workspace() (*models.WorkspaceSnapshot, *models.ErrorDetail) {
	snap, err := s.ws.Snapshot()
	if err != nil {
		return nil, errors.NewFileSystemError(s.ws.Root(), "snapshot", err.Error())
	}
	return snap, nil
}

// ReadFile implements the AgentService interface.
func (s *DefaultAgentService) ReadFile(req models.ReadFileRequest) (*models.ReadFileResponse, *models.ErrorDetail) {
	return s.ws.ReadFile(req)
}

// Tools implements the AgentService interface.
func (s *DefaultAgentService) Tools() []models.ToolDefinition {
	return s.tools.Definitions()
}

func validationDetail(err error) *models.ErrorDetail {
	var vErr *validate.Error
	if stdErrors.As(err, &vErr) {
		return vErr.Detail()
	}
	return errors.FromError(err)
}
