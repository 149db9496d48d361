// Package orchestrator runs a conversational turn against the reasoning
// engine in two phases. Phase one sends the history with the workspace
// context and tool schemas. When the reply invokes tools, each invocation is
// parsed, validated and applied as its own batch, and the results are sent
// back for a final reply.
package orchestrator

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"workspace-editor-server/internal/batch"
	"workspace-editor-server/internal/errors"
	"workspace-editor-server/internal/llm"
	"workspace-editor-server/internal/models"
	"workspace-editor-server/internal/tools"
	"workspace-editor-server/internal/validate"
	"workspace-editor-server/internal/workspace"
)

// State is a position in the turn lifecycle.
type State string

const (
	StateAwaitingInitial  State = "awaiting_initial"
	StateDispatchingTools State = "dispatching_tools"
	StateAwaitingFinal    State = "awaiting_final"
	StateDone             State = "done"
)

const defaultPhaseTimeout = 2 * time.Minute

// Options tune the engine requests of a turn.
type Options struct {
	Model           string
	MaxOutputTokens int64
	Temperature     *float64
	// PhaseTimeout bounds each engine call. Zero means two minutes.
	PhaseTimeout time.Duration
}

// Turn is the record of one conversational turn.
type Turn struct {
	ID     string
	State  State
	States []State

	Message models.ConversationMessage
	Usage   models.Usage
	// Success is false when any dispatched batch failed.
	Success     bool
	Invocations []models.InvocationOutcome
}

func (t *Turn) transition(s State) {
	t.State = s
	t.States = append(t.States, s)
}

// Response converts the turn into the collaborator-facing reply.
func (t *Turn) Response() *models.ChatResponse {
	return &models.ChatResponse{
		TurnID:      t.ID,
		Message:     t.Message,
		Success:     t.Success,
		Usage:       t.Usage,
		Invocations: t.Invocations,
	}
}

// Orchestrator drives turns. It is safe for concurrent use; batches are
// serialized by the applier's workspace lock.
type Orchestrator struct {
	ws      *workspace.Workspace
	engine  llm.Engine
	applier batch.Applier
	tools   *tools.Registry
	logger  *slog.Logger
	opts    Options
	newID   func() string
}

// New creates an Orchestrator.
func New(ws *workspace.Workspace, engine llm.Engine, applier batch.Applier, registry *tools.Registry, logger *slog.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PhaseTimeout <= 0 {
		opts.PhaseTimeout = defaultPhaseTimeout
	}
	return &Orchestrator{
		ws:      ws,
		engine:  engine,
		applier: applier,
		tools:   registry,
		logger:  logger,
		opts:    opts,
		newID:   uuid.NewString,
	}
}

// Run executes one turn. The returned Turn is non-nil even on error and
// carries whatever was dispatched before the failure. Errors are
// *errors.TurnError except for workspace listing failures.
func (o *Orchestrator) Run(ctx context.Context, req models.ChatRequest) (*Turn, error) {
	turn := &Turn{ID: o.newID()}
	logger := o.logger.With("turn_id", turn.ID)
	turn.transition(StateAwaitingInitial)

	wctx, err := o.ws.Context(req.Files, req.CurrentFile, req.Selection)
	if err != nil {
		return turn, fmt.Errorf("build workspace context: %w", err)
	}
	defs := o.tools.Definitions()
	system := SystemPrompt(wctx, defs)
	history := append([]models.ConversationMessage(nil), req.Messages...)

	first, err := o.complete(ctx, "initial", system, history, defs)
	if err != nil {
		logger.Warn("Initial engine call failed", "error", err)
		return turn, err
	}
	turn.Usage = first.Usage

	if len(first.Message.ToolCalls) == 0 {
		turn.Message = first.Message
		turn.Success = true
		turn.transition(StateDone)
		logger.Info("Turn completed without tool calls")
		return turn, nil
	}

	turn.transition(StateDispatchingTools)
	assistant := first.Message
	for i := range assistant.ToolCalls {
		if strings.TrimSpace(assistant.ToolCalls[i].ID) == "" {
			assistant.ToolCalls[i].ID = "call_" + o.newID()
		}
	}
	calls, err := o.prepare(assistant.ToolCalls)
	if err != nil {
		logger.Warn("Rejected tool calls", "error", err, "count", len(assistant.ToolCalls))
		return turn, err
	}

	turn.Success = true
	results := make([]models.ConversationMessage, 0, len(calls))
	for _, call := range calls {
		result := o.applier.Apply(ctx, call.Batch())
		if !result.Success {
			turn.Success = false
		}
		logger.Info("Dispatched tool call",
			"tool_call_id", call.ID, "tool", call.Tool, "batch_id", result.ID,
			"success", result.Success, "state", result.State)
		turn.Invocations = append(turn.Invocations, models.InvocationOutcome{
			ToolCallID: call.ID,
			Tool:       call.Tool,
			Result:     result,
		})
		results = append(results, models.ConversationMessage{
			Role:       models.RoleTool,
			ToolCallID: call.ID,
			Content:    toolResultContent(result),
		})
	}

	turn.transition(StateAwaitingFinal)
	history = append(history, assistant)
	history = append(history, results...)
	final, err := o.complete(ctx, "final", system, history, defs)
	if err != nil {
		turn.Success = false
		logger.Warn("Final engine call failed", "error", err)
		return turn, err
	}
	turn.Usage = turn.Usage.Add(final.Usage)

	if n := len(final.Message.ToolCalls); n > 0 {
		logger.Warn("Ignoring tool calls in final reply", "count", n)
	}
	turn.Message = models.ConversationMessage{
		Role:    models.RoleAssistant,
		Content: final.Message.Content,
	}
	if strings.TrimSpace(turn.Message.Content) == "" {
		turn.Message.Content = summarize(turn.Invocations)
	}
	turn.transition(StateDone)
	logger.Info("Turn completed", "success", turn.Success, "invocations", len(turn.Invocations))
	return turn, nil
}

// prepare parses and validates every invocation. Any failure rejects the
// whole set so nothing is dispatched.
func (o *Orchestrator) prepare(invocations []models.ToolInvocation) ([]tools.Call, error) {
	calls := make([]tools.Call, 0, len(invocations))
	for _, inv := range invocations {
		call, err := o.tools.Parse(inv)
		if err != nil {
			return nil, err
		}
		if err := call.Validate(); err != nil {
			var vErr *validate.Error
			if stdErrors.As(err, &vErr) {
				turnErr := vErr.TurnError()
				turnErr.Details = map[string]interface{}{
					"tool":         inv.Name,
					"tool_call_id": inv.ID,
					"issues":       vErr.Issues,
				}
				return nil, turnErr
			}
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, nil
}

func (o *Orchestrator) complete(ctx context.Context, phase, system string, history []models.ConversationMessage, defs []models.ToolDefinition) (llm.Response, error) {
	phaseCtx, cancel := context.WithTimeout(ctx, o.opts.PhaseTimeout)
	defer cancel()

	resp, err := o.engine.Complete(phaseCtx, llm.Request{
		Model:           o.opts.Model,
		System:          system,
		Messages:        history,
		Tools:           defs,
		MaxOutputTokens: o.opts.MaxOutputTokens,
		Temperature:     o.opts.Temperature,
	})
	if err == nil {
		return resp, nil
	}
	if stdErrors.Is(phaseCtx.Err(), context.DeadlineExceeded) {
		return llm.Response{}, errors.WrapTurnError(errors.KindTransport,
			fmt.Sprintf("%s engine call timed out after %s", phase, o.opts.PhaseTimeout), err)
	}
	if errors.KindOf(err) == errors.KindTransport {
		return llm.Response{}, err
	}
	return llm.Response{}, errors.WrapTurnError(errors.KindTransport, fmt.Sprintf("%s engine call failed", phase), err)
}

func toolResultContent(result models.BatchResult) string {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"success":%t,"message":%q}`, result.Success, result.Message)
	}
	return string(data)
}

// summarize describes the dispatched batches when the final reply carries
// no text.
func summarize(outcomes []models.InvocationOutcome) string {
	lines := make([]string, 0, len(outcomes))
	for _, out := range outcomes {
		status := "applied"
		if !out.Result.Success {
			status = "failed"
		}
		lines = append(lines, fmt.Sprintf("- %s %s: %s", out.Tool, status, out.Result.Message))
	}
	return "Tool results:\n" + strings.Join(lines, "\n")
}
