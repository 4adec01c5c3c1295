// Package grapherr defines the closed taxonomy of error kinds produced by
// the graph execution engine: validation failures, agent/tool/timeout/
// concurrency/event-store/HITL errors, and a fatal catch-all.
//
// Every kind follows the same shape the teacher runtime uses for its node
// and engine errors: a human Message, a machine Code, the NodeID that
// produced it (when applicable), and an optional wrapped Cause. A Transient
// method tells the retry middleware whether the error is worth retrying.
package grapherr

import "errors"

// Kind names the error taxonomy members.
type Kind string

const (
	KindValidation  Kind = "VALIDATION"
	KindAgent       Kind = "AGENT"
	KindTool        Kind = "TOOL"
	KindTimeout     Kind = "TIMEOUT"
	KindConcurrency Kind = "CONCURRENCY"
	KindEventStore  Kind = "EVENT_STORE"
	KindHitl        Kind = "HITL"
	KindFatal       Kind = "FATAL"
)

// ToolKind discriminates the cause of a ToolError.
type ToolKind string

const (
	ToolMissingParam   ToolKind = "MISSING_PARAM"
	ToolInvalidParam   ToolKind = "INVALID_PARAM"
	ToolEmitFailed     ToolKind = "EMIT_FAILED"
	ToolMissingContext ToolKind = "MISSING_CONTEXT"
	ToolRuntime        ToolKind = "RUNTIME"
)

// GraphError is the common shape every taxonomy member implements.
type GraphError struct {
	Kind    Kind
	Code    string
	Message string
	NodeID  string
	Cause   error
}

func (e *GraphError) Error() string {
	prefix := string(e.Kind)
	if e.Code != "" {
		prefix += " [" + e.Code + "]"
	}
	if e.NodeID != "" {
		return prefix + " node " + e.NodeID + ": " + e.Message
	}
	return prefix + ": " + e.Message
}

func (e *GraphError) Unwrap() error { return e.Cause }

// Transient reports whether the error kind is retryable in principle. Tool
// and Agent errors carry their own explicit flag checked by IsTransient.
func (e *GraphError) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindConcurrency:
		return true
	default:
		return false
	}
}

// ValidationError reports a graph/schema issue. Never retried.
func ValidationError(code, message string) error {
	return &GraphError{Kind: KindValidation, Code: code, Message: message}
}

// AgentError wraps an agent-originated failure. Retry iff transient.
type AgentError struct {
	GraphError
	transient bool
}

func NewAgentError(nodeID, message string, transient bool, cause error) *AgentError {
	return &AgentError{
		GraphError: GraphError{Kind: KindAgent, Code: "AGENT_ERROR", Message: message, NodeID: nodeID, Cause: cause},
		transient:  transient,
	}
}

func (e *AgentError) Transient() bool { return e.transient }

// AgentCannotHandle is returned when an AgentNode's CanHandle guard rejects
// the inbound message.
func AgentCannotHandle(nodeID string) error {
	return &GraphError{Kind: KindAgent, Code: "AGENT_CANNOT_HANDLE", Message: "agent cannot handle message", NodeID: nodeID}
}

// ToolError wraps a tool execution failure, discriminated by ToolKind.
type ToolError struct {
	GraphError
	ToolKind  ToolKind
	transient bool
}

func NewToolError(nodeID string, kind ToolKind, message string, transient bool, cause error) *ToolError {
	return &ToolError{
		GraphError: GraphError{Kind: KindTool, Code: string(kind), Message: message, NodeID: nodeID, Cause: cause},
		ToolKind:   kind,
		transient:  transient,
	}
}

func (e *ToolError) Transient() bool { return e.transient }

// TimeoutError is always transient/retryable.
func TimeoutError(nodeID, message string) error {
	return &GraphError{Kind: KindTimeout, Code: "TIMEOUT", Message: message, NodeID: nodeID}
}

// ConcurrencyError reports an optimistic-concurrency violation from a store.
// Retryable a bounded number of times by the caller.
func ConcurrencyError(message string, cause error) error {
	return &GraphError{Kind: KindConcurrency, Code: "CONCURRENCY_CONFLICT", Message: message, Cause: cause}
}

// EventStoreError reports a publish/consume failure. It must never fail the
// run; callers route it to the dead-letter sink and surface a warning metric.
func EventStoreError(message string, cause error) error {
	return &GraphError{Kind: KindEventStore, Code: "EVENT_STORE", Message: message, Cause: cause}
}

// HitlError reports an invalid or expired human response.
func HitlError(nodeID, message string) error {
	return &GraphError{Kind: KindHitl, Code: "HITL_INVALID", Message: message, NodeID: nodeID}
}

// FatalError is the catch-all for unexpected conditions. Never retried.
func FatalError(message string, cause error) error {
	return &GraphError{Kind: KindFatal, Code: "FATAL", Message: message, Cause: cause}
}

// IsTransient reports whether err should be considered for retry: GraphError
// kinds use Transient(); AgentError/ToolError honor their explicit flag.
func IsTransient(err error) bool {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Transient()
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te.Transient()
	}
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge.Transient()
	}
	return false
}

// KindOf extracts the Kind of err, or KindFatal if err does not carry one.
func KindOf(err error) Kind {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te.Kind
	}
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindFatal
}
