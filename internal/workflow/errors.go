package workflow

import (
	"errors"
	"fmt"

	"github.com/jonathan/job-agent/internal/types"
)

// ErrNotFound is returned when no workflow exists for an id.
var ErrNotFound = errors.New("workflow not found")

// ErrConflict is returned when a save races with another writer.
var ErrConflict = errors.New("workflow was modified concurrently")

// ErrBusy is returned when another runner is already advancing the workflow.
var ErrBusy = errors.New("workflow is being advanced by another runner")

// ValidationError rejects a resume trigger (bad, mismatched, or expired token).
// The workflow itself is left untouched.
type ValidationError struct {
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// BudgetExceeded means too many consecutive agent invocations failed.
type BudgetExceeded struct {
	Failures int
	Budget   int
}

func (e *BudgetExceeded) Error() string {
	return fmt.Sprintf("error budget exceeded: %d consecutive failures (budget %d)", e.Failures, e.Budget)
}

// StateError reports why a finished workflow failed, or nil.
func StateError(s *types.WorkflowState, budget int) error {
	if s == nil || s.Status != types.StatusFailed {
		return nil
	}
	if s.ConsecutiveFailures >= budget {
		return &BudgetExceeded{Failures: s.ConsecutiveFailures, Budget: budget}
	}
	for i := len(s.Decisions) - 1; i >= 0; i-- {
		if d := s.Decisions[i]; d.Action == "workflow_"+string(types.StatusFailed) {
			return fmt.Errorf("workflow failed: %s", d.Reason)
		}
	}
	return errors.New("workflow failed")
}
