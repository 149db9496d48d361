package models

// WorkspaceSnapshot lists the non-hidden files and directories under the
// workspace root as slash-separated relative paths.
type WorkspaceSnapshot struct {
	Root        string   `json:"root"`
	Files       []string `json:"files"`
	Directories []string `json:"directories"`
}
