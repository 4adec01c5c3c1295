package hitl

import "fmt"

// Type discriminates the shape of input a Request is asking for.
type Type string

const (
	TypeSelection   Type = "SELECTION"
	TypeInput       Type = "INPUT"
	TypeConfirmation Type = "CONFIRMATION"
)

// Request is what the runner emits as HitlRequested and what the HITL bridge
// (chat UI, approval queue, …) consumes to prompt the human.
type Request struct {
	ToolCallID    string
	Prompt        string
	HitlType      Type
	Options       []Option
	AllowFreeText bool
	TimeoutMs     *int64

	RunID         string
	NodeID        string
	GraphID       string
	AgentID       string
	CorrelationID string
	UserID        string
	TenantID      string
}

// ToolCallID derives the deterministic id for the invocationIndex'th time
// nodeId pauses within runId. Retrying the same logical invocation reuses
// this id; a loop that revisits nodeId bumps invocationIndex.
func ToolCallID(runID, nodeID string, invocationIndex int) string {
	return fmt.Sprintf("hitl_%s_%s_%d", runID, nodeID, invocationIndex)
}
