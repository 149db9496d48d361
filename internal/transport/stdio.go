package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"workspace-editor-server/internal/errors"
	"workspace-editor-server/internal/models"
	"workspace-editor-server/internal/service"
)

// RequestProcessor serves protocol methods that are not agent operations.
// *mcp.MCPProcessor implements it.
type RequestProcessor interface {
	ProcessRequest(ctx context.Context, req models.JSONRPCRequest) (interface{}, *models.ErrorDetail)
}

// StdioHandler handles newline-delimited JSON-RPC over standard
// input/output. Agent methods go to the service; everything the processor
// Handles goes to the processor.
type StdioHandler struct {
	service    service.AgentService
	processor  RequestProcessor
	handles    func(method string) bool
	logger     *slog.Logger
	maxLineLen int
}

// NewStdioHandler creates a new StdioHandler. processor and handles may be
// nil to disable protocol methods.
func NewStdioHandler(svc service.AgentService, processor RequestProcessor, handles func(string) bool, maxReqSizeMB int, logger *slog.Logger) *StdioHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxReqSizeMB <= 0 {
		maxReqSizeMB = DefaultMaxRequestSizeMB
	}
	if handles == nil {
		handles = func(string) bool { return false }
	}
	return &StdioHandler{
		service:    svc,
		processor:  processor,
		handles:    handles,
		logger:     logger,
		maxLineLen: maxReqSizeMB * 1024 * 1024,
	}
}

func (h *StdioHandler) writeJSONRPCResponse(writer io.Writer, response models.JSONRPCResponse) {
	responseBytes, err := json.Marshal(response)
	if err != nil {
		h.logger.Error("Error marshaling JSON-RPC response", "error", err, "id", response.ID)
		fallbackError := errors.NewInternalError("Server error: failed to marshal response.")
		errorResp := models.JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      response.ID,
			Error:   errors.ToJSONRPCError(fallbackError),
		}
		responseBytes, _ = json.Marshal(errorResp)
	}

	if _, err := fmt.Fprintln(writer, string(responseBytes)); err != nil {
		h.logger.Error("Error writing JSON-RPC response", "error", err)
	}
}

// Start processes requests from input until it is exhausted or ctx is
// done. Requests are handled one at a time, in order.
func (h *StdioHandler) Start(ctx context.Context, input io.Reader, output io.Writer) error {
	h.logger.Info("Starting stdio JSON-RPC handler")
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), h.maxLineLen)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			h.logger.Info("Stdio JSON-RPC handler cancelled")
			return nil
		}
		lineBytes := scanner.Bytes()
		if len(bytes.TrimSpace(lineBytes)) == 0 {
			continue
		}
		if resp, ok := h.handleLine(ctx, lineBytes); ok {
			h.writeJSONRPCResponse(output, resp)
		}
	}

	if err := scanner.Err(); err != nil {
		h.logger.Error("Error reading from stdio", "error", err)
		return err
	}

	h.logger.Info("Stdio JSON-RPC handler finished")
	return nil
}

// handleLine processes one request line. It returns false for
// notifications, which get no response.
func (h *StdioHandler) handleLine(ctx context.Context, line []byte) (models.JSONRPCResponse, bool) {
	jsonResp := models.JSONRPCResponse{JSONRPC: "2.0"}

	var jsonReq models.JSONRPCRequest
	if err := json.Unmarshal(line, &jsonReq); err != nil {
		jsonResp.Error = errors.ToJSONRPCError(errors.NewParseError(fmt.Sprintf("Invalid JSON received: %v", err)))
		return jsonResp, true
	}
	jsonResp.ID = jsonReq.ID

	if jsonReq.JSONRPC != "2.0" {
		jsonResp.Error = errors.ToJSONRPCError(errors.NewInvalidRequestError("Invalid JSON-RPC version. Must be '2.0'."))
		return jsonResp, true
	}
	if jsonReq.Method == "" {
		jsonResp.Error = errors.ToJSONRPCError(errors.NewInvalidRequestError("Method not specified."))
		return jsonResp, true
	}

	start := time.Now()
	result, serviceErr := h.dispatch(ctx, jsonReq)
	h.logger.Debug("Handled JSON-RPC request", "method", jsonReq.Method, "duration", time.Since(start), "error", serviceErr != nil)

	if jsonReq.ID == nil && strings.HasPrefix(jsonReq.Method, "notifications/") {
		return jsonResp, false
	}
	if serviceErr != nil {
		rpcError := errors.ToJSONRPCError(serviceErr)
		if rpcError.Data.Operation == "" {
			rpcError.Data.Operation = jsonReq.Method
		}
		jsonResp.Error = rpcError
		return jsonResp, true
	}
	jsonResp.Result = result
	return jsonResp, true
}

func (h *StdioHandler) dispatch(ctx context.Context, req models.JSONRPCRequest) (interface{}, *models.ErrorDetail) {
	switch req.Method {
	case "chat":
		var params models.ChatRequest
		if errDetail := decodeParams(req, &params); errDetail != nil {
			return nil, errDetail
		}
		return h.service.Chat(ctx, params)
	case "apply":
		var params models.ProposedResponse
		if errDetail := decodeParams(req, &params); errDetail != nil {
			return nil, errDetail
		}
		return h.service.Apply(ctx, params)
	case "apply_tool_call":
		var params models.ToolInvocation
		if errDetail := decodeParams(req, &params); errDetail != nil {
			return nil, errDetail
		}
		return h.service.ApplyToolCall(ctx, params)
	case "read_file":
		var params models.ReadFileRequest
		if errDetail := decodeParams(req, &params); errDetail != nil {
			return nil, errDetail
		}
		return h.service.ReadFile(params)
	case "workspace":
		if !emptyParams(req.Params) {
			return nil, errors.NewInvalidParamsError("Parameters for workspace must be an empty JSON object or null.", nil)
		}
		return h.service.Workspace()
	}
	if h.processor != nil && h.handles(req.Method) {
		return h.processor.ProcessRequest(ctx, req)
	}
	return nil, errors.NewMethodNotFoundError(req.Method)
}

// decodeParams strictly decodes the request params into v.
func decodeParams(req models.JSONRPCRequest, v interface{}) *models.ErrorDetail {
	if emptyParams(req.Params) {
		return errors.NewInvalidParamsError(fmt.Sprintf("Missing params for %s", req.Method), nil)
	}
	decoder := json.NewDecoder(bytes.NewReader(req.Params))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return errors.NewInvalidParamsError(fmt.Sprintf("Invalid params for %s: %v", req.Method, err), nil)
	}
	return nil
}

func emptyParams(raw json.RawMessage) bool {
	trimmed := string(bytes.TrimSpace(raw))
	return trimmed == "" || trimmed == "null" || trimmed == "{}"
}
