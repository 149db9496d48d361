package models

// Selection is a highlighted line range in the collaborator's editor.
type Selection struct {
	File      string `json:"file"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
}

// ChatRequest is what the collaborator sends for one conversational turn.
type ChatRequest struct {
	Messages []ConversationMessage `json:"messages"`
	// Files lists the paths open in the collaborator's editor.
	Files       []string   `json:"files,omitempty"`
	CurrentFile string     `json:"currentFile,omitempty"`
	Selection   *Selection `json:"selection,omitempty"`
}

// InvocationOutcome reports what happened to one tool invocation of a turn.
type InvocationOutcome struct {
	ToolCallID string      `json:"toolCallId"`
	Tool       string      `json:"tool"`
	Result     BatchResult `json:"result"`
}

// ChatResponse is the successful reply for a turn.
type ChatResponse struct {
	TurnID      string              `json:"turnId,omitempty"`
	Message     ConversationMessage `json:"message"`
	// Success is false when any batch dispatched during the turn failed.
	Success     bool                `json:"success"`
	Usage       Usage               `json:"usage"`
	Invocations []InvocationOutcome `json:"invocations,omitempty"`
}

// WorkspaceContext is the workspace description embedded in the system
// message of a turn.
type WorkspaceContext struct {
	WorkspacePath string     `json:"workspacePath"`
	Files         []string   `json:"files"`
	Directories   []string   `json:"directories"`
	OpenFiles     []string   `json:"openFiles"`
	CurrentFile   string     `json:"currentFile,omitempty"`
	Selection     *Selection `json:"selection,omitempty"`
}
