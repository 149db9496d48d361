package orchestrator

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"workspace-editor-server/internal/batch"
	"workspace-editor-server/internal/errors"
	"workspace-editor-server/internal/filesystem"
	"workspace-editor-server/internal/llm"
	"workspace-editor-server/internal/models"
	"workspace-editor-server/internal/mutation"
	"workspace-editor-server/internal/tools"
	"workspace-editor-server/internal/workspace"
)

type scriptedReply struct {
	resp  llm.Response
	err   error
	block bool
}

// scriptedEngine replays canned replies in order and records every request.
type scriptedEngine struct {
	mu       sync.Mutex
	replies  []scriptedReply
	requests []llm.Request
}

func (e *scriptedEngine) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	e.mu.Lock()
	idx := len(e.requests)
	e.requests = append(e.requests, req)
	e.mu.Unlock()
	if idx >= len(e.replies) {
		return llm.Response{}, fmt.Errorf("unexpected engine call %d", idx)
	}
	r := e.replies[idx]
	if r.block {
		<-ctx.Done()
		return llm.Response{}, ctx.Err()
	}
	return r.resp, r.err
}

func text(content string, usage int64) scriptedReply {
	return scriptedReply{resp: llm.Response{
		Message: models.ConversationMessage{Role: models.RoleAssistant, Content: content},
		Usage:   models.Usage{PromptTokens: usage, CompletionTokens: usage, TotalTokens: 2 * usage},
	}}
}

func calls(invs ...models.ToolInvocation) scriptedReply {
	return scriptedReply{resp: llm.Response{
		Message: models.ConversationMessage{Role: models.RoleAssistant, ToolCalls: invs},
		Usage:   models.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}}
}

func invoke(id, name, args string) models.ToolInvocation {
	return models.ToolInvocation{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func newTestOrchestrator(t *testing.T, engine llm.Engine) (*Orchestrator, string) {
	t.Helper()
	ws, err := workspace.New(t.TempDir(), filesystem.NewDefaultFileSystemAdapter(), workspace.Options{})
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec := batch.NewExecutor(mutation.New(ws), nil, logger)
	return New(ws, engine, exec, tools.NewRegistry(true), logger, Options{Model: "test-model"}), ws.Root()
}

func userAsk(content string) models.ChatRequest {
	return models.ChatRequest{Messages: []models.ConversationMessage{{Role: models.RoleUser, Content: content}}}
}

func TestRun_NoToolCalls(t *testing.T) {
	engine := &scriptedEngine{replies: []scriptedReply{text("Nothing to change.", 3)}}
	o, _ := newTestOrchestrator(t, engine)

	turn, err := o.Run(context.Background(), userAsk("hello"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := []State{StateAwaitingInitial, StateDone}; !reflect.DeepEqual(turn.States, want) {
		t.Errorf("States = %v, want %v", turn.States, want)
	}
	if turn.Message.Content != "Nothing to change." || !turn.Success || turn.Usage.TotalTokens != 6 {
		t.Errorf("turn = %+v", turn)
	}
	if len(engine.requests) != 1 {
		t.Fatalf("engine calls = %d, want 1", len(engine.requests))
	}
	req := engine.requests[0]
	if req.Model != "test-model" || len(req.Tools) != 3 || !strings.Contains(req.System, "WORKSPACE STRUCTURE") {
		t.Errorf("request = %+v", req)
	}
}

func TestRun_SingleCallAppliesAndReports(t *testing.T) {
	engine := &scriptedEngine{replies: []scriptedReply{
		calls(invoke("call_1", tools.FileSystemOperation, `{"type":"create","path":"src/app.go","content":"package app\n"}`)),
		text("Created src/app.go.", 4),
	}}
	o, root := newTestOrchestrator(t, engine)

	turn, err := o.Run(context.Background(), userAsk("add an app package"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	wantStates := []State{StateAwaitingInitial, StateDispatchingTools, StateAwaitingFinal, StateDone}
	if !reflect.DeepEqual(turn.States, wantStates) {
		t.Errorf("States = %v, want %v", turn.States, wantStates)
	}
	if !turn.Success || turn.Message.Content != "Created src/app.go." {
		t.Errorf("turn = %+v", turn)
	}
	if turn.Usage != (models.Usage{PromptTokens: 14, CompletionTokens: 9, TotalTokens: 23}) {
		t.Errorf("Usage = %+v", turn.Usage)
	}
	data, err := os.ReadFile(filepath.Join(root, "src", "app.go"))
	if err != nil || string(data) != "package app\n" {
		t.Errorf("src/app.go = %q, %v", data, err)
	}

	final := engine.requests[1].Messages
	if len(final) != 3 {
		t.Fatalf("final history = %d messages, want user, assistant, tool", len(final))
	}
	if final[1].Role != models.RoleAssistant || len(final[1].ToolCalls) != 1 {
		t.Errorf("assistant message = %+v", final[1])
	}
	var result models.BatchResult
	if err := json.Unmarshal([]byte(final[2].Content), &result); err != nil {
		t.Fatalf("tool result is not a batch result: %v", err)
	}
	if final[2].Role != models.RoleTool || final[2].ToolCallID != "call_1" || !result.Success {
		t.Errorf("tool message = %+v", final[2])
	}
}

func TestRun_FailedBatchStillRunsFinalPhase(t *testing.T) {
	engine := &scriptedEngine{replies: []scriptedReply{
		calls(
			invoke("call_1", tools.CodeEdit, `{"type":"insert","path":"missing.go","startLine":1,"content":"x","description":"d"}`),
			invoke("call_2", tools.FileSystemOperation, `{"type":"create","path":"ok.txt","content":"ok"}`),
		),
		text("The first edit failed.", 1),
	}}
	o, root := newTestOrchestrator(t, engine)

	turn, err := o.Run(context.Background(), userAsk("two changes"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if turn.Success {
		t.Error("Success = true, want false after a failed batch")
	}
	if turn.State != StateDone || len(turn.Invocations) != 2 {
		t.Fatalf("turn = %+v", turn)
	}
	if turn.Invocations[0].Result.Success || !turn.Invocations[1].Result.Success {
		t.Errorf("outcomes = %+v", turn.Invocations)
	}
	if turn.Invocations[0].Result.Error != errors.KindFileNotFound {
		t.Errorf("first outcome kind = %s, want FILE_NOT_FOUND", turn.Invocations[0].Result.Error)
	}
	if _, err := os.Stat(filepath.Join(root, "ok.txt")); err != nil {
		t.Errorf("second invocation was not applied: %v", err)
	}
	if got := len(engine.requests[1].Messages); got != 4 {
		t.Errorf("final history = %d messages, want 4", got)
	}
}

func TestRun_RejectedInvocationsDispatchNothing(t *testing.T) {
	tests := []struct {
		name     string
		invs     []models.ToolInvocation
		wantKind models.ErrorKind
	}{
		{
			name: "missing content",
			invs: []models.ToolInvocation{
				invoke("call_1", tools.FileSystemOperation, `{"type":"create","path":"a.txt","content":"a"}`),
				invoke("call_2", tools.FileSystemOperation, `{"type":"create","path":"b.txt"}`),
			},
			wantKind: errors.KindInvalidResponse,
		},
		{
			name: "unknown tool",
			invs: []models.ToolInvocation{
				invoke("call_1", tools.FileSystemOperation, `{"type":"create","path":"a.txt","content":"a"}`),
				invoke("call_2", "run_shell", `{"cmd":"rm -rf /"}`),
			},
			wantKind: errors.KindUnknownTool,
		},
		{
			name: "malformed arguments",
			invs: []models.ToolInvocation{
				invoke("call_1", tools.FileSystemOperation, `{"type":"create","path":"a.txt","content":"a"}`),
				invoke("call_2", tools.CodeEdit, `{"type":"insert","path":"a.txt"`),
			},
			wantKind: errors.KindMalformedArguments,
		},
		{
			name: "apply_changes without message",
			invs: []models.ToolInvocation{
				invoke("call_1", tools.ApplyChanges, `{"message":"","operations":[{"type":"mkdir","path":"a.txt"}]}`),
			},
			wantKind: errors.KindInvalidResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &scriptedEngine{replies: []scriptedReply{calls(tt.invs...)}}
			o, root := newTestOrchestrator(t, engine)

			turn, err := o.Run(context.Background(), userAsk("go"))
			if got := errors.KindOf(err); got != tt.wantKind {
				t.Fatalf("Run() error = %v, want kind %s", err, tt.wantKind)
			}
			if len(turn.Invocations) != 0 || turn.State != StateDispatchingTools {
				t.Errorf("turn = %+v", turn)
			}
			if len(engine.requests) != 1 {
				t.Errorf("engine calls = %d, want 1", len(engine.requests))
			}
			if _, err := os.Stat(filepath.Join(root, "a.txt")); !os.IsNotExist(err) {
				t.Errorf("a.txt exists after rejected turn: %v", err)
			}
		})
	}
}

func TestRun_TransportErrors(t *testing.T) {
	boom := errors.WrapTurnError(errors.KindTransport, "openai request failed", stdErrors.New("connection refused"))

	t.Run("initial phase", func(t *testing.T) {
		engine := &scriptedEngine{replies: []scriptedReply{{err: boom}}}
		o, _ := newTestOrchestrator(t, engine)
		turn, err := o.Run(context.Background(), userAsk("hi"))
		if errors.KindOf(err) != errors.KindTransport {
			t.Fatalf("Run() error = %v, want TRANSPORT_ERROR", err)
		}
		if !reflect.DeepEqual(turn.States, []State{StateAwaitingInitial}) {
			t.Errorf("States = %v", turn.States)
		}
	})

	t.Run("final phase keeps applied batches", func(t *testing.T) {
		engine := &scriptedEngine{replies: []scriptedReply{
			calls(invoke("call_1", tools.FileSystemOperation, `{"type":"mkdir","path":"pkg"}`)),
			{err: stdErrors.New("reset by peer")},
		}}
		o, root := newTestOrchestrator(t, engine)
		turn, err := o.Run(context.Background(), userAsk("hi"))
		if errors.KindOf(err) != errors.KindTransport {
			t.Fatalf("Run() error = %v, want TRANSPORT_ERROR", err)
		}
		if turn.State != StateAwaitingFinal || turn.Success || len(turn.Invocations) != 1 {
			t.Errorf("turn = %+v", turn)
		}
		if info, err := os.Stat(filepath.Join(root, "pkg")); err != nil || !info.IsDir() {
			t.Errorf("pkg directory missing: %v", err)
		}
	})

	t.Run("phase timeout", func(t *testing.T) {
		engine := &scriptedEngine{replies: []scriptedReply{{block: true}}}
		o, _ := newTestOrchestrator(t, engine)
		o.opts.PhaseTimeout = 20 * time.Millisecond
		start := time.Now()
		_, err := o.Run(context.Background(), userAsk("hi"))
		if errors.KindOf(err) != errors.KindTransport {
			t.Fatalf("Run() error = %v, want TRANSPORT_ERROR", err)
		}
		if !strings.Contains(err.Error(), "timed out") {
			t.Errorf("error = %v, want timeout message", err)
		}
		if time.Since(start) > 5*time.Second {
			t.Errorf("Run() took %s", time.Since(start))
		}
	})
}

func TestRun_FinalReplyFallbacks(t *testing.T) {
	followUp := calls(invoke("call_9", tools.FileSystemOperation, `{"type":"delete","path":"notes.txt"}`))
	followUp.resp.Message.Content = ""
	engine := &scriptedEngine{replies: []scriptedReply{
		calls(invoke("", tools.FileSystemOperation, `{"type":"create","path":"notes.txt","content":"n"}`)),
		followUp,
	}}
	o, root := newTestOrchestrator(t, engine)

	turn, err := o.Run(context.Background(), userAsk("take notes"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(turn.Message.Content, "file_system_operation applied") {
		t.Errorf("Message = %q, want summary of results", turn.Message.Content)
	}
	if len(turn.Message.ToolCalls) != 0 {
		t.Errorf("final message kept tool calls: %+v", turn.Message.ToolCalls)
	}
	if _, err := os.Stat(filepath.Join(root, "notes.txt")); err != nil {
		t.Errorf("follow-up tool call was dispatched: %v", err)
	}
	id := turn.Invocations[0].ToolCallID
	if !strings.HasPrefix(id, "call_") || engine.requests[1].Messages[2].ToolCallID != id {
		t.Errorf("generated tool call id = %q not threaded into history", id)
	}
}

func TestSystemPrompt(t *testing.T) {
	wctx := &models.WorkspaceContext{
		WorkspacePath: "/work",
		Directories:   []string{"src"},
		Files:         []string{"src/a.go", "README.md"},
		OpenFiles:     []string{"src/a.go", "README.md"},
		CurrentFile:   "src/a.go",
		Selection:     &models.Selection{File: "src/a.go", StartLine: 2, EndLine: 4},
	}
	prompt := SystemPrompt(wctx, tools.NewRegistry(false).Definitions())
	for _, want := range []string{
		"/work",
		"  src/\n  src/a.go\n  README.md\n",
		"- Currently viewing: src/a.go",
		"- Selected lines 2-4 in src/a.go",
		"- Open files:\n  - src/a.go\n  - README.md",
		"1. file_system_operation:",
		"2. code_edit:",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "apply_changes") {
		t.Error("prompt lists a disabled tool")
	}

	empty := SystemPrompt(&models.WorkspaceContext{WorkspacePath: "/w"}, nil)
	if !strings.Contains(empty, "(empty)") || !strings.Contains(empty, "No file currently open") {
		t.Errorf("empty prompt = %q", empty)
	}
}
