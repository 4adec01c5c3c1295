package graph

import (
	"context"
	"time"

	"github.com/flowgraph/flowgraph/execctx"
)

// NodeRequest is what the middleware chain threads through onNode.
// A middleware MAY replace Input before calling next.
type NodeRequest struct {
	NodeID  string
	Input   any
	Context execctx.ExecutionContext
}

// Status is the terminal or in-flight state of a run or a single node
// execution.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
	StatusSkipped   Status = "SKIPPED"
	StatusPaused    Status = "PAUSED"
	StatusCancelled Status = "CANCELLED"
)

// NodeReport records the outcome of one node execution within a run
//.
type NodeReport struct {
	NodeID    string
	StartTime time.Time
	Duration  time.Duration
	Status    Status
	Output    any
	Err       error
}

// RunReport is the result of a full (or paused) run.
type RunReport struct {
	GraphID      string
	RunID        string
	Status       Status
	Result       any
	Duration     time.Duration
	NodeReports  []NodeReport
	Err          error
	CheckpointID string
}

// ErrorActionKind discriminates what the runner should do after a node
// failure, as decided by the middleware chain's OnError.
type ErrorActionKind string

const (
	ActionPropagate ErrorActionKind = "PROPAGATE"
	ActionRetry     ErrorActionKind = "RETRY"
	ActionSkip      ErrorActionKind = "SKIP"
	ActionContinue  ErrorActionKind = "CONTINUE"
)

// ErrorAction is the verdict returned by Middleware.OnError.
type ErrorAction struct {
	Kind  ErrorActionKind
	Value any // populated when Kind == ActionContinue
}

func Propagate() ErrorAction                 { return ErrorAction{Kind: ActionPropagate} }
func Retry() ErrorAction                      { return ErrorAction{Kind: ActionRetry} }
func Skip() ErrorAction                       { return ErrorAction{Kind: ActionSkip} }
func Continue(value any) ErrorAction          { return ErrorAction{Kind: ActionContinue, Value: value} }

// NodeInvoker is the terminal step of the middleware onion: the node itself.
type NodeInvoker func(ctx context.Context, nc NodeContext) (NodeResult, error)

// Middleware is the cross-cutting interceptor contract. Implementers
// live in package middleware; this interface is declared here so Graph can
// hold a middleware list without that package importing graph (which would
// cycle, since middleware implementations need Node/NodeResult/NodeContext).
//
// Composition is onion-model: outermost-first going in, innermost-first
// coming out. OnNode must call next exactly once on the success path; not
// calling it short-circuits the node.
type Middleware interface {
	OnStart(ctx context.Context, ec execctx.ExecutionContext) error
	OnNode(ctx context.Context, req NodeRequest, nc NodeContext, next NodeInvoker) (NodeResult, error)
	OnError(ctx context.Context, err error, req NodeRequest) ErrorAction
	OnFinish(ctx context.Context, report RunReport)
}
