// Package tool defines the Tool contract consumed by graph.ToolNode, plus a
// couple of reference implementations (HTTPTool, MockTool). Only the
// contract is specified; tool content is an external collaborator.
package tool

import "context"

// ResultKind discriminates a ToolResult's meaning.
type ResultKind string

const (
	// KindValue is a normal completed tool call.
	KindValue ResultKind = "VALUE"
	// KindWaitingHITL signals the tool call cannot complete without human
	// input; the runner pauses the run through the HITL protocol.
	KindWaitingHITL ResultKind = "WAITING_HITL"
)

// GraphRef identifies the graph/run/node a tool call executes within.
type GraphRef struct {
	GraphID string
	RunID   string
	NodeID  string
}

// Auth carries the caller identity propagated to the tool.
type Auth struct {
	UserID   string
	TenantID string
}

// Context is the execution context passed to Tool.Execute. It is distinct
// from execctx.ExecutionContext: Context is tool-invocation-scoped, while
// ExecutionContext is run-scoped and ambient.
type Context struct {
	AgentID       string
	Graph         GraphRef
	Auth          Auth
	CorrelationID string
}

// Result is what a Tool.Execute call returns.
type Result struct {
	Success  bool
	Result   map[string]any
	Error    error
	Metadata map[string]any
	Kind     ResultKind
}

// Tool executes with a parameter map and a tool Context, producing a
// structured Result. Size-limiting, schema validation, and error
// classification are the tool's own concern; the runner only relays
// success/failure and WAITING_HITL pauses.
type Tool interface {
	Name() string
	Execute(ctx context.Context, params map[string]any, tc Context) (Result, error)
}

// ParamMapper derives a tool's input parameters from the run state map of
// the node it runs within.
type ParamMapper func(state map[string]any) map[string]any
