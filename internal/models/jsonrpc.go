package models

import "encoding/json"

// JSONRPCRequest represents a JSON-RPC request object.
type JSONRPCRequest struct {
	// JSONRPC specifies the version of the JSON-RPC protocol, must be "2.0".
	JSONRPC string `json:"jsonrpc"`
	// ID is a unique identifier established by the client.
	// It can be a string or a number. The server must reply with the same ID.
	ID interface{} `json:"id"`
	// Method is the name of the method to be invoked.
	Method string `json:"method"`
	// Params is decoded once the method is known.
	Params json.RawMessage `json:"params"`
}

// JSONRPCErrorData is the 'data' member of a JSON-RPC error object.
type JSONRPCErrorData struct {
	// Path is the workspace path involved in the error, if applicable.
	Path string `json:"path,omitempty"`
	// Operation is the method or operation being performed.
	Operation string `json:"operation,omitempty"`
	// Kind is the failure category.
	Kind ErrorKind `json:"kind,omitempty"`
	// Timestamp records when the error occurred.
	Timestamp string `json:"timestamp,omitempty"`
	// Details provides any other specific details about the error.
	Details string `json:"details,omitempty"`
}

// JSONRPCError represents a JSON-RPC error object.
type JSONRPCError struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Data    *JSONRPCErrorData `json:"data,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC response object.
type JSONRPCResponse struct {
	JSONRPC string `json:"jsonrpc"`
	// ID must match the ID of the request.
	ID interface{} `json:"id"`
	// Result must not exist if there was an error invoking the method.
	Result interface{} `json:"result,omitempty"`
	// Error must not exist if the method succeeded.
	Error *JSONRPCError `json:"error,omitempty"`
}
