// Package checkpoint implements the durable pause/resume contract: an abstract Store of Checkpoint records keyed by run, a save
// policy, and backends over memory, SQLite, Postgres, and Redis.
package checkpoint

import (
	"time"

	"github.com/flowgraph/flowgraph/hitl"
)

// ExecutionState is the lifecycle state of a run at checkpoint time.
type ExecutionState string

const (
	StateRunning         ExecutionState = "RUNNING"
	StateWaitingForHuman ExecutionState = "WAITING_FOR_HUMAN"
	StateCompleted       ExecutionState = "COMPLETED"
	StateFailed          ExecutionState = "FAILED"
	StateCancelled       ExecutionState = "CANCELLED"
)

// Checkpoint is an immutable, durable snapshot of a run. Once
// stored, no field is ever mutated in place; a resumed run writes a new
// Checkpoint.
type Checkpoint struct {
	ID            string
	RunID         string
	GraphID       string
	CurrentNodeID string
	State         map[string]any
	Context       map[string]any
	Timestamp     time.Time
	Execution     ExecutionState

	PendingInteraction *hitl.Interaction
	HumanResponse      *hitl.Response

	Metadata map[string]any
}

// Durable reports whether this checkpoint's execution state requires a
// synchronous, on-the-critical-path save: WAITING_FOR_HUMAN and
// FAILED checkpoints must complete before the runner returns.
func (c Checkpoint) Durable() bool {
	return c.Execution == StateWaitingForHuman || c.Execution == StateFailed
}
