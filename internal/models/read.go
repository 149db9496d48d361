package models

// ReadFileRequest represents a request to read a workspace file.
type ReadFileRequest struct {
	// Path is the workspace-relative file path.
	Path string `json:"path"`
	// StartLine is the optional 1-based starting line number for partial reads.
	StartLine int `json:"start_line,omitempty"`
	// EndLine is the optional 1-based inclusive ending line number.
	EndLine int `json:"end_line,omitempty"`
}

// RangeRequested echoes the line range that was returned.
type RangeRequested struct {
	StartLine int `json:"start_line,omitempty"`
	EndLine   int `json:"end_line,omitempty"`
}

// ReadFileResponse represents the response from a file read operation.
type ReadFileResponse struct {
	Path string `json:"path"`
	// Content is the content of the file, or of the requested range.
	Content string `json:"content"`
	// TotalLines is the total number of lines in the file.
	TotalLines     int             `json:"total_lines"`
	RangeRequested *RangeRequested `json:"range_requested,omitempty"`
}
