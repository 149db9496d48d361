package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"time"

	"workspace-editor-server/internal/models"
)

// JSON-RPC Error Codes (as per JSON-RPC 2.0 Specification)
const (
	CodeParseError     = -32700 // Invalid JSON was received by the server.
	CodeInvalidRequest = -32600 // The JSON sent is not a valid Request object.
	CodeMethodNotFound = -32601 // The method does not exist / is not available.
	CodeInvalidParams  = -32602 // Invalid method parameter(s).
	CodeInternalError  = -32603 // Internal JSON-RPC error.
)

// Application Specific Error Codes
const (
	// CodeFileSystemError is a generic code for file system related issues.
	// The kind carried alongside it tells FILE_NOT_FOUND from FILE_EXISTS etc.
	CodeFileSystemError = -32001

	// CodeOperationLockFailed indicates the workspace lock could not be acquired.
	CodeOperationLockFailed = -32002

	// CodeFileTooLarge indicates the file exceeds the configured size limit.
	CodeFileTooLarge = -32003

	// CodeBatchFailed indicates a batch was rolled back.
	CodeBatchFailed = -32004

	// CodeTransportError indicates the reasoning engine could not be reached
	// or answered with a failure.
	CodeTransportError = -32005

	CodeMalformedArguments = -32006
	CodeUnknownTool        = -32007
	CodeInvalidResponse    = -32008
)

// Error kinds reported in operation results and turn failures.
const (
	KindFileExists         models.ErrorKind = "FILE_EXISTS"
	KindFileNotFound       models.ErrorKind = "FILE_NOT_FOUND"
	KindInvalidLineNumbers models.ErrorKind = "INVALID_LINE_NUMBERS"
	KindInvalidEditType    models.ErrorKind = "INVALID_EDIT_TYPE"
	KindInvalidOperation   models.ErrorKind = "INVALID_OPERATION"
	KindOperationFailed    models.ErrorKind = "OPERATION_FAILED"
	KindInvalidPath        models.ErrorKind = "INVALID_PATH"
	KindLockFailed         models.ErrorKind = "LOCK_FAILED"
	KindTransport          models.ErrorKind = "TRANSPORT_ERROR"
	KindMalformedArguments models.ErrorKind = "MALFORMED_ARGUMENTS"
	KindUnknownTool        models.ErrorKind = "UNKNOWN_TOOL"
	KindInvalidResponse    models.ErrorKind = "INVALID_RESPONSE"
)

// TurnError aborts a conversational turn. Kind is one of KindTransport,
// KindMalformedArguments, KindUnknownTool or KindInvalidResponse.
type TurnError struct {
	Kind    models.ErrorKind
	Message string
	Details interface{}
	Err     error
}

func (e *TurnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TurnError) Unwrap() error { return e.Err }

// NewTurnError creates a TurnError without an underlying cause.
func NewTurnError(kind models.ErrorKind, message string, details interface{}) *TurnError {
	return &TurnError{Kind: kind, Message: message, Details: details}
}

// WrapTurnError creates a TurnError around err.
func WrapTurnError(kind models.ErrorKind, message string, err error) *TurnError {
	return &TurnError{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first TurnError in err's chain, or "".
func KindOf(err error) models.ErrorKind {
	var turnErr *TurnError
	if stdErrors.As(err, &turnErr) {
		return turnErr.Kind
	}
	return ""
}

// --- Helper functions to create models.ErrorDetail ---

// NewErrorDetail creates a new ErrorDetail.
func NewErrorDetail(code int, message string, data interface{}) *models.ErrorDetail {
	return &models.ErrorDetail{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// NewParseError creates an ErrorDetail for JSON parsing errors.
// JSON-RPC: -32700
func NewParseError(details string) *models.ErrorDetail {
	return NewErrorDetail(CodeParseError, "Parse error", map[string]interface{}{"details": details})
}

// NewInvalidRequestError creates an ErrorDetail for invalid JSON-RPC Request objects.
// JSON-RPC: -32600
func NewInvalidRequestError(details string) *models.ErrorDetail {
	return NewErrorDetail(CodeInvalidRequest, "Invalid Request", map[string]interface{}{"details": details})
}

// NewMethodNotFoundError creates an ErrorDetail when a JSON-RPC method is not found.
// JSON-RPC: -32601
func NewMethodNotFoundError(methodName string) *models.ErrorDetail {
	return NewErrorDetail(CodeMethodNotFound, "Method not found", map[string]interface{}{"method": methodName})
}

// NewInvalidParamsError creates an ErrorDetail for invalid method parameters.
// paramIssues, when non-nil, is reported under "param_issues".
// JSON-RPC: -32602
func NewInvalidParamsError(summaryMessage string, paramIssues map[string]interface{}) *models.ErrorDetail {
	finalMessage := "Invalid params"
	if summaryMessage != "" {
		finalMessage = summaryMessage
	}
	data := map[string]interface{}{"details": finalMessage}
	if paramIssues != nil {
		data["param_issues"] = paramIssues
	}
	return NewErrorDetail(CodeInvalidParams, finalMessage, data)
}

// NewInternalError creates an ErrorDetail for unexpected server errors.
// JSON-RPC: -32603
func NewInternalError(details string) *models.ErrorDetail {
	return NewErrorDetail(CodeInternalError, "Internal error", map[string]interface{}{"details": details})
}

// NewFileSystemError creates a generic file system ErrorDetail.
// App specific: -32001
func NewFileSystemError(path, operation, details string) *models.ErrorDetail {
	detail := NewErrorDetail(CodeFileSystemError, "File system error", map[string]interface{}{
		"path":      path,
		"operation": operation,
		"details":   details,
	})
	detail.Kind = KindOperationFailed
	return detail
}

// NewFileNotFoundError creates an ErrorDetail for missing files.
// App specific: -32001. HTTP status: 404.
func NewFileNotFoundError(path, operation string) *models.ErrorDetail {
	detail := NewErrorDetail(CodeFileSystemError, fmt.Sprintf("File '%s' not found", path), map[string]interface{}{
		"path":      path,
		"operation": operation,
		"type":      "file_not_found",
	})
	detail.Kind = KindFileNotFound
	return detail
}

// NewPermissionDeniedError creates an ErrorDetail for permission denied errors.
// App specific: -32001. HTTP status: 403.
func NewPermissionDeniedError(path, operation string) *models.ErrorDetail {
	detail := NewErrorDetail(CodeFileSystemError, fmt.Sprintf("Permission denied for '%s'", path), map[string]interface{}{
		"path":      path,
		"operation": operation,
		"type":      "permission_denied",
	})
	detail.Kind = KindOperationFailed
	return detail
}

// NewInvalidPathError reports a path that is empty or escapes the workspace.
func NewInvalidPathError(path, details string) *models.ErrorDetail {
	detail := NewInvalidParamsError(details, map[string]interface{}{"path": path})
	detail.Kind = KindInvalidPath
	return detail
}

// NewFileTooLargeError creates an ErrorDetail for files exceeding size limits.
// App specific: -32003. HTTP status: 413.
func NewFileTooLargeError(path string, maxSizeMB int) *models.ErrorDetail {
	detail := NewErrorDetail(CodeFileTooLarge,
		fmt.Sprintf("File '%s' exceeds maximum allowed size of %d MB", path, maxSizeMB),
		map[string]interface{}{
			"path":        path,
			"max_size_mb": maxSizeMB,
			"type":        "file_too_large",
		})
	detail.Kind = KindOperationFailed
	return detail
}

// NewOperationLockFailedError creates an ErrorDetail for failures to acquire a lock.
// App specific: -32002. HTTP status: 409.
func NewOperationLockFailedError(path, operation string, details string) *models.ErrorDetail {
	detail := NewErrorDetail(CodeOperationLockFailed,
		fmt.Sprintf("Could not acquire lock for operation '%s' on '%s'", operation, path),
		map[string]interface{}{
			"path":      path,
			"operation": operation,
			"details":   details,
		})
	detail.Kind = KindLockFailed
	return detail
}

// NewBatchFailedError reports a rolled back batch. The batch result travels
// in Data so callers can see every per-item outcome.
func NewBatchFailedError(result models.BatchResult) *models.ErrorDetail {
	code := CodeBatchFailed
	if result.Error == KindLockFailed {
		code = CodeOperationLockFailed
	}
	detail := NewErrorDetail(code, result.Message, result)
	detail.Kind = result.Error
	return detail
}

// FromError converts a domain error into an ErrorDetail. TurnErrors keep
// their kind; anything else becomes an internal error.
func FromError(err error) *models.ErrorDetail {
	if err == nil {
		return nil
	}
	var turnErr *TurnError
	if !stdErrors.As(err, &turnErr) {
		return NewInternalError(err.Error())
	}
	code := CodeInternalError
	switch turnErr.Kind {
	case KindTransport:
		code = CodeTransportError
	case KindMalformedArguments:
		code = CodeMalformedArguments
	case KindUnknownTool:
		code = CodeUnknownTool
	case KindInvalidResponse:
		code = CodeInvalidResponse
	}
	message := turnErr.Message
	if turnErr.Err != nil {
		message = fmt.Sprintf("%s: %v", turnErr.Message, turnErr.Err)
	}
	return &models.ErrorDetail{Code: code, Message: message, Kind: turnErr.Kind, Data: turnErr.Details}
}

// --- Conversion to HTTP and JSON-RPC Error Structures ---

// ToErrorResponse converts an ErrorDetail to the HTTP failure body.
func ToErrorResponse(errDetail *models.ErrorDetail) *models.ErrorResponse {
	if errDetail == nil {
		return nil
	}
	return &models.ErrorResponse{
		Error:   errDetail.Message,
		Kind:    errDetail.Kind,
		Code:    errDetail.Code,
		Details: errDetail.Data,
	}
}

// ToJSONRPCError converts an ErrorDetail to a models.JSONRPCError.
func ToJSONRPCError(errDetail *models.ErrorDetail) *models.JSONRPCError {
	if errDetail == nil {
		return nil
	}
	rpcErr := &models.JSONRPCError{
		Code:    errDetail.Code,
		Message: errDetail.Message,
	}
	data := &models.JSONRPCErrorData{
		Kind:      errDetail.Kind,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	switch payload := errDetail.Data.(type) {
	case nil:
	case map[string]interface{}:
		if val, ok := payload["path"].(string); ok {
			data.Path = val
		}
		if val, ok := payload["operation"].(string); ok {
			data.Operation = val
		}
		if pi, ok := payload["param_issues"]; ok {
			data.Details = fmt.Sprintf("Parameter issues: %v. Summary: %v", pi, payload["details"])
		} else if val, ok := payload["details"].(string); ok {
			data.Details = val
		}
	case models.BatchResult:
		if failed := payload.FirstFailure(); failed != nil {
			data.Path = failed.Path
			data.Details = failed.Message
		}
	default:
		data.Details = fmt.Sprintf("%v", payload)
	}
	rpcErr.Data = data
	return rpcErr
}

// --- HTTP Status Mapping ---

// MapErrorToHTTPStatus maps an error code, refined by the detail's kind, to
// an HTTP status code.
func MapErrorToHTTPStatus(errorCode int, errDetail *models.ErrorDetail) int {
	switch errorCode {
	case CodeParseError, CodeInvalidRequest, CodeInvalidParams:
		return http.StatusBadRequest
	case CodeMethodNotFound:
		return http.StatusNotFound
	case CodeInternalError:
		return http.StatusInternalServerError
	case CodeFileSystemError:
		if errDetail != nil {
			switch errDetail.Kind {
			case KindFileNotFound:
				return http.StatusNotFound
			case KindFileExists:
				return http.StatusConflict
			}
			if dataMap, ok := errDetail.Data.(map[string]interface{}); ok {
				if errorType, _ := dataMap["type"].(string); errorType == "permission_denied" {
					return http.StatusForbidden
				}
			}
		}
		return http.StatusInternalServerError
	case CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeOperationLockFailed:
		return http.StatusConflict
	case CodeBatchFailed:
		return http.StatusUnprocessableEntity
	case CodeTransportError:
		return http.StatusBadGateway
	case CodeMalformedArguments, CodeUnknownTool, CodeInvalidResponse:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
