// Package batch applies ordered lists of mutations as one transaction. A
// batch is a saga: each item is paired with an inverse computed from a
// pre-image captured just before the item runs, and the first failure
// compensates every applied item in reverse order.
package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"workspace-editor-server/internal/errors"
	"workspace-editor-server/internal/lock"
	"workspace-editor-server/internal/models"
	"workspace-editor-server/internal/mutation"
)

// Applier is the engine the orchestrator and the service depend on.
type Applier interface {
	Apply(ctx context.Context, items []models.BatchItem) models.BatchResult
}

// Executor runs batches against one workspace.
type Executor struct {
	prims  *mutation.Primitives
	locks  lock.Locker
	logger *slog.Logger
	newID  func() string
}

// NewExecutor returns an executor. A nil locker disables workspace locking
// and a nil logger selects slog.Default().
func NewExecutor(prims *mutation.Primitives, locks lock.Locker, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		prims:  prims,
		locks:  locks,
		logger: logger,
		newID:  func() string { return uuid.New().String() },
	}
}

var _ Applier = (*Executor)(nil)

// step is one applied item with the action that undoes it.
type step struct {
	index   int
	item    models.BatchItem
	inverse mutation.Inverse
}

// Apply runs items in order while holding the workspace lock. ctx is only
// consulted before the forward pass; once items start applying the batch
// runs to commit or to full compensation.
func (e *Executor) Apply(ctx context.Context, items []models.BatchItem) models.BatchResult {
	result := models.BatchResult{
		ID:          e.newID(),
		FailedIndex: -1,
		Operations:  make([]models.OperationResult, 0, len(items)),
	}
	e.transition(&result, models.BatchPending)
	logger := e.logger.With("batch_id", result.ID)

	if err := ctx.Err(); err != nil {
		result.Error = errors.KindOperationFailed
		result.Message = fmt.Sprintf("Batch not started: %v", err)
		return result
	}

	if e.locks != nil {
		root := e.prims.Workspace().Root()
		held, err := e.locks.Acquire(ctx, root)
		if err != nil {
			logger.Warn("workspace lock not acquired", "root", root, "error", err)
			result.Error = errors.KindLockFailed
			result.Message = fmt.Sprintf("Could not acquire workspace lock: %v", err)
			return result
		}
		defer func() {
			if err := e.locks.Release(held); err != nil {
				logger.Error("failed to release workspace lock", "root", root, "error", err)
			}
		}()
	}

	e.transition(&result, models.BatchApplying)
	applied := make([]step, 0, len(items))
	for i, item := range items {
		res, inv, ok := e.forward(item)
		if !ok {
			// The failing item is not compensated, so directories it made
			// before failing are removed here.
			if err := e.prims.RemoveDirectories(inv.RemoveDirs); err != nil {
				logger.Error("failed item left directories behind", "index", i, "path", item.Path(), "error", err)
				res.Message = fmt.Sprintf("%s (%v)", res.Message, err)
			}
			result.Operations = append(result.Operations, res)
			result.FailedIndex = i
			result.Error = res.Error
			logger.Warn("batch item failed",
				"index", i, "kind", item.Kind(), "path", item.Path(),
				"error", res.Error, "message", res.Message)
			break
		}
		result.Operations = append(result.Operations, res)
		logger.Debug("batch item applied", "index", i, "kind", item.Kind(), "path", item.Path())
		applied = append(applied, step{index: i, item: item, inverse: inv})
	}

	if result.FailedIndex < 0 {
		e.transition(&result, models.BatchCommitted)
		result.Success = true
		result.Message = fmt.Sprintf("Applied %d change(s)", len(items))
		logger.Info("batch committed", "items", len(items))
		return result
	}

	e.transition(&result, models.BatchRollingBack)
	e.compensate(logger, &result, applied)
	e.transition(&result, models.BatchRolledBack)

	failed := result.Operations[result.FailedIndex]
	result.Message = fmt.Sprintf("Item %d (%s %s) failed: %s. Rolled back %d applied change(s).",
		result.FailedIndex+1, items[result.FailedIndex].Kind(), failed.Path, failed.Message, len(applied))
	logger.Info("batch rolled back", "failed_index", result.FailedIndex, "compensated", len(applied))
	return result
}

// forward validates the item's variant, captures its pre-image and applies
// it. Unrecognized variants never reach storage. When the item fails, the
// returned inverse still carries the directories missing before it ran.
func (e *Executor) forward(item models.BatchItem) (models.OperationResult, mutation.Inverse, bool) {
	if res, ok := checkVariant(item); !ok {
		return res, mutation.Inverse{}, false
	}
	pre, detail := e.prims.Capture(item)
	if detail != nil {
		res := mutation.FailureFromDetail(item.Path(), detail)
		res.Operation, res.Edit = item.Operation, item.Edit
		return res, mutation.Inverse{}, false
	}
	inv, err := mutation.Invert(item, pre)
	if err != nil {
		// The forward call reports the same problem; if it somehow succeeds
		// the pre-image is still enough to undo it.
		inv = mutation.Inverse{Description: "restore " + item.Path(), Restore: &pre}
	}
	res := e.prims.Apply(item)
	if !res.Success {
		return res, mutation.Inverse{RemoveDirs: pre.MissingDirs}, false
	}
	return res, inv, true
}

// compensate undoes applied steps newest first. Failures are recorded and
// logged but never replace the triggering failure.
func (e *Executor) compensate(logger *slog.Logger, result *models.BatchResult, applied []step) {
	for i := len(applied) - 1; i >= 0; i-- {
		s := applied[i]
		res := e.prims.Undo(s.inverse)
		if res.Path == "" {
			res.Path = s.item.Path()
		}
		result.Compensations = append(result.Compensations, res)
		if !res.Success {
			logger.Error("compensation failed",
				"index", s.index, "kind", s.item.Kind(), "path", s.item.Path(),
				"inverse", s.inverse.Description, "error", res.Message)
			continue
		}
		logger.Debug("compensated", "index", s.index, "inverse", s.inverse.Description)
	}
}

func (e *Executor) transition(result *models.BatchResult, state models.BatchState) {
	result.State = state
	result.Transitions = append(result.Transitions, state)
}

func checkVariant(item models.BatchItem) (models.OperationResult, bool) {
	fail := func(kind models.ErrorKind, message string) (models.OperationResult, bool) {
		return models.OperationResult{
			Message:   message,
			Path:      item.Path(),
			Error:     kind,
			Operation: item.Operation,
			Edit:      item.Edit,
		}, false
	}
	switch {
	case item.Operation != nil && item.Edit != nil:
		return fail(errors.KindInvalidOperation, "Batch item must hold exactly one of operation or edit")
	case item.Operation != nil:
		switch item.Operation.Type {
		case models.OperationCreate, models.OperationEdit, models.OperationDelete, models.OperationMkdir:
			return models.OperationResult{}, true
		}
		return fail(errors.KindInvalidOperation, fmt.Sprintf("Invalid operation type: %q", item.Operation.Type))
	case item.Edit != nil:
		switch item.Edit.Type {
		case models.EditInsert, models.EditReplace, models.EditDelete:
			return models.OperationResult{}, true
		}
		return fail(errors.KindInvalidEditType, fmt.Sprintf("Invalid edit type: %q", item.Edit.Type))
	}
	return fail(errors.KindInvalidOperation, "Batch item is empty")
}
