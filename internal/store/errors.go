package store

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/content-pipeline/internal/types"
)

// ErrRunInFlight indicates a run is already RUNNING; it carries the id of the
// in-flight run so trigger callers can report the conflict.
type ErrRunInFlight struct {
	RunID uuid.UUID
}

func (e *ErrRunInFlight) Error() string {
	return fmt.Sprintf("a pipeline run is already in flight: %s", e.RunID)
}

// ErrNotFound indicates a row does not exist.
type ErrNotFound struct {
	Entity string
	ID     string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// ErrIllegalTransition indicates a task status change the state machine does
// not allow, or a concurrent update that moved the task first.
type ErrIllegalTransition struct {
	TaskID uuid.UUID
	From   types.TaskStatus
	To     types.TaskStatus
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("task %s: illegal transition %s -> %s", e.TaskID, e.From, e.To)
}
