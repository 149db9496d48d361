package transport

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"workspace-editor-server/internal/errors"
	"workspace-editor-server/internal/models"
	"workspace-editor-server/internal/service"
)

const (
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = 5 * time.Minute
	// DefaultMaxRequestSizeMB bounds request bodies when none is configured.
	DefaultMaxRequestSizeMB = 50
)

// HTTPHandler serves the agent operations over HTTP.
type HTTPHandler struct {
	service      service.AgentService
	logger       *slog.Logger
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxReqSize   int64
	Server       *http.Server
}

// NewHTTPHandler creates a new HTTPHandler. maxReqSizeMB <= 0 selects the
// 50MB default.
func NewHTTPHandler(svc service.AgentService, maxReqSizeMB int, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxReqSizeMB <= 0 {
		maxReqSizeMB = DefaultMaxRequestSizeMB
	}
	return &HTTPHandler{
		service:      svc,
		logger:       logger,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		maxReqSize:   int64(maxReqSizeMB) * 1024 * 1024,
		Server:       &http.Server{},
	}
}

// RegisterRoutes sets up the HTTP routes for the handler.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/chat", h.handleChat)
	mux.HandleFunc("/api/apply", h.handleApply)
	mux.HandleFunc("/api/workspace", h.handleWorkspace)
	mux.HandleFunc("/api/read_file", h.handleReadFile)
	mux.HandleFunc("/api/tools", h.handleTools)
	mux.HandleFunc("/health", h.handleHealthCheck)
}

// Handler returns the routed handler, wrapped with request logging.
func (h *HTTPHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h.logRequests(mux)
}

func (h *HTTPHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Info("HTTP request",
			"method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// writeJSONResponse is a helper to write JSON data to the response.
func (h *HTTPHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			h.logger.Error("Error encoding JSON response", "error", err)
		}
	}
}

// writeJSONErrorResponse writes the failure body with the status mapped
// from the error code, unless httpStatusCode overrides it.
func (h *HTTPHandler) writeJSONErrorResponse(w http.ResponseWriter, httpStatusCode int, errorDetail *models.ErrorDetail) {
	if errorDetail == nil {
		errorDetail = errors.NewInternalError("An unexpected error occurred and error details were lost.")
		httpStatusCode = http.StatusInternalServerError
	}
	if httpStatusCode == 0 {
		httpStatusCode = errors.MapErrorToHTTPStatus(errorDetail.Code, errorDetail)
	}
	h.writeJSONResponse(w, httpStatusCode, errors.ToErrorResponse(errorDetail))
}

func (h *HTTPHandler) allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	errDetail := errors.NewInvalidRequestError(fmt.Sprintf("Method %s not allowed for %s. Use %s.", r.Method, r.URL.Path, method))
	h.writeJSONErrorResponse(w, http.StatusMethodNotAllowed, errDetail)
	return false
}

// decodeJSONBody strictly decodes a JSON request body into v. It writes the
// error response and returns false on failure.
func (h *HTTPHandler) decodeJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		errDetail := errors.NewInvalidRequestError("Invalid Content-Type header. Must be 'application/json' or 'application/json; charset=utf-8'.")
		h.writeJSONErrorResponse(w, http.StatusUnsupportedMediaType, errDetail)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxReqSize)
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(v)
	if err == nil {
		return true
	}

	var maxBytesError *http.MaxBytesError
	var jsonSyntaxError *json.SyntaxError
	var jsonUnmarshalTypeError *json.UnmarshalTypeError
	switch {
	case stdErrors.As(err, &maxBytesError):
		errDetail := errors.NewInvalidRequestError(fmt.Sprintf("Request body exceeds maximum size of %d bytes.", maxBytesError.Limit))
		h.writeJSONErrorResponse(w, http.StatusRequestEntityTooLarge, errDetail)
	case stdErrors.As(err, &jsonSyntaxError):
		msg := fmt.Sprintf("Invalid JSON syntax at offset %d: %s", jsonSyntaxError.Offset, jsonSyntaxError.Error())
		h.writeJSONErrorResponse(w, http.StatusBadRequest, errors.NewParseError(msg))
	case stdErrors.As(err, &jsonUnmarshalTypeError):
		msg := fmt.Sprintf("Invalid JSON type for field '%s'. Expected '%s' but got '%s' at offset %d.",
			jsonUnmarshalTypeError.Field, jsonUnmarshalTypeError.Type, jsonUnmarshalTypeError.Value, jsonUnmarshalTypeError.Offset)
		h.writeJSONErrorResponse(w, http.StatusBadRequest, errors.NewParseError(msg))
	default:
		h.writeJSONErrorResponse(w, http.StatusBadRequest, errors.NewParseError(fmt.Sprintf("Failed to decode request body: %v", err)))
	}
	return false
}

func (h *HTTPHandler) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodGet) {
		return
	}
	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodPost) {
		return
	}
	var req models.ChatRequest
	if !h.decodeJSONBody(w, r, &req) {
		return
	}
	resp, serviceErr := h.service.Chat(r.Context(), req)
	if serviceErr != nil {
		h.writeJSONErrorResponse(w, 0, serviceErr)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// handleApply applies a proposed response. A rolled back batch is reported
// as an error whose details carry the full batch result.
func (h *HTTPHandler) handleApply(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodPost) {
		return
	}
	var req models.ProposedResponse
	if !h.decodeJSONBody(w, r, &req) {
		return
	}
	result, serviceErr := h.service.Apply(r.Context(), req)
	if serviceErr != nil {
		h.writeJSONErrorResponse(w, 0, serviceErr)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, result)
}

func (h *HTTPHandler) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodGet) {
		return
	}
	snap, serviceErr := h.service.Workspace()
	if serviceErr != nil {
		h.writeJSONErrorResponse(w, 0, serviceErr)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, snap)
}

func (h *HTTPHandler) handleReadFile(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodPost) {
		return
	}
	var req models.ReadFileRequest
	if !h.decodeJSONBody(w, r, &req) {
		return
	}
	resp, serviceErr := h.service.ReadFile(req)
	if serviceErr != nil {
		h.writeJSONErrorResponse(w, 0, serviceErr)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

func (h *HTTPHandler) handleTools(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodGet) {
		return
	}
	h.writeJSONResponse(w, http.StatusOK, models.ToolsListResponse{Tools: h.service.Tools()})
}

// StartServer serves on addr until Shutdown is called. Positive timeouts
// override the defaults.
func (h *HTTPHandler) StartServer(addr string, readTimeout, writeTimeout time.Duration) error {
	if readTimeout <= 0 {
		readTimeout = h.readTimeout
	}
	if writeTimeout <= 0 {
		writeTimeout = h.writeTimeout
	}
	h.Server.Addr = addr
	h.Server.Handler = h.Handler()
	h.Server.ReadTimeout = readTimeout
	h.Server.WriteTimeout = writeTimeout
	h.Server.IdleTimeout = 2 * time.Minute

	h.logger.Info("HTTP server starting", "addr", addr, "read_timeout", readTimeout, "write_timeout", writeTimeout)
	err := h.Server.ListenAndServe()
	if err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
		h.logger.Error("HTTP server ListenAndServe error", "error", err)
		return err
	}
	h.logger.Info("HTTP server shut down", "addr", addr)
	return nil
}

// Shutdown gracefully stops the server.
func (h *HTTPHandler) Shutdown(ctx context.Context) error {
	return h.Server.Shutdown(ctx)
}
