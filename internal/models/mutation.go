package models

// OperationType enumerates the whole-file mutation variants.
type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationEdit   OperationType = "edit"
	OperationDelete OperationType = "delete"
	OperationMkdir  OperationType = "mkdir"
)

// EditType enumerates the line-level edit variants.
type EditType string

const (
	EditInsert  EditType = "insert"
	EditReplace EditType = "replace"
	// EditDelete removes the range [startLine, endLine].
	EditDelete EditType = "delete"
)

// OperationMetadata is optional descriptive data attached to an operation.
type OperationMetadata struct {
	FileType    string   `json:"fileType,omitempty"`
	Description string   `json:"description,omitempty"`
	Requires    []string `json:"requires,omitempty"`
	// Overwrite allows a create to replace an existing file.
	Overwrite bool `json:"overwrite,omitempty"`
}

// MutationOperation is a whole-file change: create, edit (overwrite), delete
// or make-directory.
type MutationOperation struct {
	Type     OperationType      `json:"type"`
	Path     string             `json:"path"`
	Content  string             `json:"content,omitempty"`
	Metadata *OperationMetadata `json:"metadata,omitempty"`
}

// OverwriteAllowed reports whether a create may replace an existing file.
func (op MutationOperation) OverwriteAllowed() bool {
	return op.Metadata != nil && op.Metadata.Overwrite
}

// LineEdit is a change to a contiguous range of lines in an existing file.
// Line numbers are 1-based and EndLine is inclusive; a nil EndLine means the
// range ends at StartLine. An explicit EndLine is always checked, zero included.
type LineEdit struct {
	Type        EditType `json:"type"`
	Path        string   `json:"path"`
	StartLine   int      `json:"startLine"`
	EndLine     *int     `json:"endLine,omitempty"`
	Content     string   `json:"content,omitempty"`
	Description string   `json:"description,omitempty"`
}

// LastLine returns the inclusive end of the edit's range.
func (e LineEdit) LastLine() int {
	if e.EndLine == nil {
		return e.StartLine
	}
	return *e.EndLine
}

// LineNumber returns a pointer to n, for filling LineEdit.EndLine.
func LineNumber(n int) *int {
	return &n
}

// ChangeSummary counts the lines a successful mutation added and removed.
type ChangeSummary struct {
	LinesAdded   int `json:"linesAdded"`
	LinesRemoved int `json:"linesRemoved"`
	// Preview holds the changed lines with +/- prefixes, truncated.
	Preview string `json:"preview,omitempty"`
}

// OperationResult is the outcome of applying one operation or edit.
type OperationResult struct {
	Success   bool               `json:"success"`
	Message   string             `json:"message"`
	Path      string             `json:"path"`
	Error     ErrorKind          `json:"error,omitempty"`
	Operation *MutationOperation `json:"operation,omitempty"`
	Edit      *LineEdit          `json:"edit,omitempty"`
	Changes   *ChangeSummary     `json:"changes,omitempty"`
}

// BatchItem holds exactly one of Operation or Edit.
type BatchItem struct {
	Operation *MutationOperation `json:"operation,omitempty"`
	Edit      *LineEdit          `json:"edit,omitempty"`
}

// OperationItem wraps a MutationOperation as a batch item.
func OperationItem(op MutationOperation) BatchItem {
	return BatchItem{Operation: &op}
}

// EditItem wraps a LineEdit as a batch item.
func EditItem(edit LineEdit) BatchItem {
	return BatchItem{Edit: &edit}
}

// Path returns the workspace-relative target of the item.
func (i BatchItem) Path() string {
	switch {
	case i.Operation != nil:
		return i.Operation.Path
	case i.Edit != nil:
		return i.Edit.Path
	}
	return ""
}

// Kind returns a short label such as "create" or "edit:insert".
func (i BatchItem) Kind() string {
	switch {
	case i.Operation != nil:
		return string(i.Operation.Type)
	case i.Edit != nil:
		return "edit:" + string(i.Edit.Type)
	}
	return "empty"
}

// BatchState is a position in the batch lifecycle.
type BatchState string

const (
	BatchPending     BatchState = "pending"
	BatchApplying    BatchState = "applying"
	BatchCommitted   BatchState = "committed"
	BatchRollingBack BatchState = "rolling_back"
	BatchRolledBack  BatchState = "rolled_back"
)

// BatchResult reports the outcome of applying a batch as one transaction.
type BatchResult struct {
	ID      string     `json:"id"`
	State   BatchState `json:"state"`
	Success bool       `json:"success"`
	Message string     `json:"message"`
	// Error is the kind of the triggering failure.
	Error ErrorKind `json:"error,omitempty"`
	// Operations holds the forward results in order, ending at the first
	// failure when the batch rolled back.
	Operations []OperationResult `json:"operations"`
	// FailedIndex is the position of the failing item, or -1.
	FailedIndex int `json:"failedIndex"`
	// Compensations holds the results of the inverse steps, in the order
	// they ran.
	Compensations []OperationResult `json:"compensations,omitempty"`
	// Transitions records every state the batch passed through.
	Transitions []BatchState `json:"transitions,omitempty"`
}

// FirstFailure returns the failing forward result, if any.
func (r BatchResult) FirstFailure() *OperationResult {
	if r.FailedIndex < 0 || r.FailedIndex >= len(r.Operations) {
		return nil
	}
	return &r.Operations[r.FailedIndex]
}

// ProposedResponse is a complete agent response: a message plus the
// operations and edits to apply with it.
type ProposedResponse struct {
	Message    string              `json:"message"`
	Operations []MutationOperation `json:"operations,omitempty"`
	Edits      []LineEdit          `json:"edits,omitempty"`
}

// Items flattens the response into a batch: operations first, then edits.
func (p ProposedResponse) Items() []BatchItem {
	items := make([]BatchItem, 0, len(p.Operations)+len(p.Edits))
	for _, op := range p.Operations {
		items = append(items, OperationItem(op))
	}
	for _, edit := range p.Edits {
		items = append(items, EditItem(edit))
	}
	return items
}
