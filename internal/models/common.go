package models

// ErrorKind names a failure category shared by the mutation primitives, the
// edit engine and the orchestrator (for example FILE_NOT_FOUND).
type ErrorKind string

// ErrorDetail provides a structured way to represent an error.
type ErrorDetail struct {
	// Code is an application-specific error code.
	Code int `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Kind is the failure category, when one applies.
	Kind ErrorKind `json:"kind,omitempty"`
	// Data holds additional context about the error, like path or operation.
	Data interface{} `json:"data,omitempty"`
}

// ErrorResponse is the failure body returned to collaborators over HTTP.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Kind is the failure category, if known.
	Kind ErrorKind `json:"kind,omitempty"`
	// Code mirrors ErrorDetail.Code.
	Code int `json:"code,omitempty"`
	// Details carries structured context (batch results, parse issues).
	Details interface{} `json:"details,omitempty"`
}
