package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"workspace-editor-server/internal/errors"
	"workspace-editor-server/internal/models"
)

// mockProcessor is a mock implementation of RequestProcessor.
type mockProcessor struct {
	ProcessRequestFunc func(ctx context.Context, req models.JSONRPCRequest) (interface{}, *models.ErrorDetail)
}

func (m *mockProcessor) ProcessRequest(ctx context.Context, req models.JSONRPCRequest) (interface{}, *models.ErrorDetail) {
	if m.ProcessRequestFunc != nil {
		return m.ProcessRequestFunc(ctx, req)
	}
	return nil, errors.NewMethodNotFoundError(req.Method)
}

func handlesMCP(method string) bool {
	return method == "initialize" || method == "tools/list" || method == "notifications/initialized"
}

func runStdioTest(t *testing.T, handler *StdioHandler, input string) []models.JSONRPCResponse {
	t.Helper()
	var outputBuffer bytes.Buffer
	if err := handler.Start(context.Background(), strings.NewReader(input), &outputBuffer); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	var responses []models.JSONRPCResponse
	scanner := bufio.NewScanner(&outputBuffer)
	for scanner.Scan() {
		var resp models.JSONRPCResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to unmarshal output line %q: %v", scanner.Text(), err)
		}
		responses = append(responses, resp)
	}
	return responses
}

func TestStdioHandler_AgentMethods(t *testing.T) {
	mockService := &mockAgentService{
		ChatFunc: func(_ context.Context, req models.ChatRequest) (*models.ChatResponse, *models.ErrorDetail) {
			return &models.ChatResponse{TurnID: "t1", Message: models.ConversationMessage{Role: models.RoleAssistant, Content: req.Messages[0].Content}, Success: true}, nil
		},
		ApplyToolCallFunc: func(_ context.Context, inv models.ToolInvocation) (*models.BatchResult, *models.ErrorDetail) {
			if inv.ID != "call_1" || inv.Name != "code_edit" {
				t.Errorf("invocation = %+v", inv)
			}
			return &models.BatchResult{ID: "b1", State: models.BatchCommitted, Success: true}, nil
		},
		ReadFileFunc: func(req models.ReadFileRequest) (*models.ReadFileResponse, *models.ErrorDetail) {
			return &models.ReadFileResponse{Path: req.Path, Content: "x", TotalLines: 1}, nil
		},
	}
	handler := NewStdioHandler(mockService, nil, nil, 1, nil)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"chat","params":{"messages":[{"role":"user","content":"echo"}]}}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"apply_tool_call","params":{"id":"call_1","name":"code_edit","arguments":{"type":"insert"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"read_file","params":{"path":"a.txt"}}`,
		`{"jsonrpc":"2.0","id":4,"method":"workspace"}`,
	}, "\n") + "\n"
	responses := runStdioTest(t, handler, input)
	if len(responses) != 4 {
		t.Fatalf("got %d responses, want 4", len(responses))
	}
	for i, resp := range responses {
		if resp.Error != nil {
			t.Errorf("response %d error: %+v", i, resp.Error)
		}
		if resp.ID != float64(i+1) {
			t.Errorf("response %d id = %v", i, resp.ID)
		}
	}
	chat, _ := json.Marshal(responses[0].Result)
	if !strings.Contains(string(chat), `"content":"echo"`) {
		t.Errorf("chat result = %s", chat)
	}
	batch, _ := json.Marshal(responses[1].Result)
	if !strings.Contains(string(batch), `"id":"b1"`) {
		t.Errorf("apply_tool_call result = %s", batch)
	}
}

func TestStdioHandler_Errors(t *testing.T) {
	failed := models.BatchResult{
		ID: "b9", State: models.BatchRolledBack, Message: "Item 1 failed", Error: errors.KindFileNotFound,
		Operations: []models.OperationResult{{Path: "gone.txt", Message: "File not found: gone.txt", Error: errors.KindFileNotFound}},
	}
	mockService := &mockAgentService{
		ApplyFunc: func(context.Context, models.ProposedResponse) (*models.BatchResult, *models.ErrorDetail) {
			return &failed, errors.NewBatchFailedError(failed)
		},
	}
	handler := NewStdioHandler(mockService, nil, nil, 1, nil)

	tests := []struct {
		name     string
		input    string
		wantCode int
		check    func(t *testing.T, resp models.JSONRPCResponse)
	}{
		{name: "parse error", input: `{"jsonrpc":"2.0",`, wantCode: errors.CodeParseError},
		{name: "bad version", input: `{"jsonrpc":"1.0","id":1,"method":"chat"}`, wantCode: errors.CodeInvalidRequest},
		{name: "missing method", input: `{"jsonrpc":"2.0","id":1}`, wantCode: errors.CodeInvalidRequest},
		{name: "unknown method", input: `{"jsonrpc":"2.0","id":1,"method":"edit_file"}`, wantCode: errors.CodeMethodNotFound},
		{name: "missing params", input: `{"jsonrpc":"2.0","id":1,"method":"chat"}`, wantCode: errors.CodeInvalidParams},
		{name: "unknown param field", input: `{"jsonrpc":"2.0","id":1,"method":"read_file","params":{"name":"a"}}`, wantCode: errors.CodeInvalidParams},
		{name: "workspace params", input: `{"jsonrpc":"2.0","id":1,"method":"workspace","params":{"deep":true}}`, wantCode: errors.CodeInvalidParams},
		{
			name:     "rolled back batch",
			input:    `{"jsonrpc":"2.0","id":7,"method":"apply","params":{"message":"m"}}`,
			wantCode: errors.CodeBatchFailed,
			check: func(t *testing.T, resp models.JSONRPCResponse) {
				data := resp.Error.Data
				if data == nil || data.Kind != errors.KindFileNotFound || data.Path != "gone.txt" || data.Operation != "apply" {
					t.Errorf("error data = %+v", data)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			responses := runStdioTest(t, handler, tt.input+"\n")
			if len(responses) != 1 {
				t.Fatalf("got %d responses, want 1", len(responses))
			}
			resp := responses[0]
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Fatalf("error = %+v, want code %d", resp.Error, tt.wantCode)
			}
			if tt.check != nil {
				tt.check(t, resp)
			}
		})
	}
}

func TestStdioHandler_ProcessorMethods(t *testing.T) {
	var seen []string
	processor := &mockProcessor{
		ProcessRequestFunc: func(_ context.Context, req models.JSONRPCRequest) (interface{}, *models.ErrorDetail) {
			seen = append(seen, req.Method)
			if req.Method == "initialize" {
				return &models.InitializeResponse{ProtocolVersion: "2024-11-05"}, nil
			}
			return map[string]interface{}{}, nil
		},
	}
	handler := NewStdioHandler(&mockAgentService{}, processor, handlesMCP, 1, nil)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":"a","method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":"b","method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":"c","method":"resources/list"}`,
	}, "\n") + "\n"
	responses := runStdioTest(t, handler, input)

	if got := strings.Join(seen, ","); got != "initialize,notifications/initialized,tools/list" {
		t.Errorf("processor saw %s", got)
	}
	if len(responses) != 3 {
		t.Fatalf("got %d responses, want 3 (notification must not be answered)", len(responses))
	}
	if responses[0].ID != "a" || responses[0].Error != nil {
		t.Errorf("initialize response = %+v", responses[0])
	}
	if responses[2].Error == nil || responses[2].Error.Code != errors.CodeMethodNotFound {
		t.Errorf("resources/list response = %+v", responses[2])
	}
}

func TestStdioHandler_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	handler := NewStdioHandler(&mockAgentService{}, nil, nil, 1, nil)
	if err := handler.Start(ctx, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"workspace"}`+"\n"), &out); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("cancelled handler wrote %q", out.String())
	}
}
