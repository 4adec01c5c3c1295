// Package graph provides the graph execution engine's static model: nodes,
// edges, the graph definition, its builder, and its validator. The dynamic
// side (actually running a graph) lives in package runner.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/flowgraph/flowgraph/execctx"
	"github.com/flowgraph/flowgraph/grapherr"
	"github.com/flowgraph/flowgraph/hitl"
)

// NodeContext is threaded into every Node.Run call. State is an immutable
// view: WithState and WithContext return new NodeContexts rather than
// mutating the receiver.
type NodeContext struct {
	GraphID string
	RunID   string
	State   map[string]any
	Context execctx.ExecutionContext
}

// WithState returns a new NodeContext with key set to value in State. The
// original State map is left untouched.
func (nc NodeContext) WithState(key string, value any) NodeContext {
	next := make(map[string]any, len(nc.State)+1)
	for k, v := range nc.State {
		next[k] = v
	}
	next[key] = value
	return NodeContext{GraphID: nc.GraphID, RunID: nc.RunID, State: next, Context: nc.Context}
}

// WithContext returns a new NodeContext with Context replaced.
func (nc NodeContext) WithContext(c execctx.ExecutionContext) NodeContext {
	return NodeContext{GraphID: nc.GraphID, RunID: nc.RunID, State: nc.State, Context: c}
}

// MetadataSizePolicy controls what happens when a NodeResult's serialized
// metadata exceeds the soft limit (5 KB).
type MetadataSizePolicy int

const (
	// SizePolicyWarn logs a warning and keeps the result (default).
	SizePolicyWarn MetadataSizePolicy = iota
	// SizePolicyFail rejects construction once a hard limit is exceeded.
	SizePolicyFail
	// SizePolicyIgnore performs no size check at all.
	SizePolicyIgnore
)

const (
	metadataWarnBytes = 5 * 1024
	metadataHardBytes = 256 * 1024
)

// currentSizePolicy is process-wide configuration for the size policy
// enforced by the NodeResult factories. It defaults to SizePolicyWarn per
// §3.3. Tests may override it with SetMetadataSizePolicy.
var currentSizePolicy = SizePolicyWarn

// SetMetadataSizePolicy overrides the size policy applied by NewNodeResult
// and FromContext.
func SetMetadataSizePolicy(p MetadataSizePolicy) { currentSizePolicy = p }

// NodeResult is the output of a node execution. It may only be constructed
// through NewNodeResult or FromContext so the size policy is always applied.
type NodeResult struct {
	Data      any
	Metadata  map[string]any
	NextEdges []string

	// Paused, when true, signals that this result is a HITL pause rather
	// than a completed node: ToolNode (tool.KindWaitingHITL) and HumanNode
	// (on first visit) both set it. The fields below describe the
	// interaction to present; the runner assembles the full hitl.Interaction
	// (assigning PausedAt and the deterministic tool call id) when it
	// observes Paused.
	Paused             bool
	PausePrompt        string
	PauseOptions       []hitl.Option
	PauseAllowFreeText bool
	PauseTimeoutMs     *int64
}

// PauseResult builds a NodeResult that signals a HITL pause.
func PauseResult(prompt string, options []hitl.Option, allowFreeText bool, timeoutMs *int64) NodeResult {
	return NodeResult{
		Paused:             true,
		PausePrompt:        prompt,
		PauseOptions:       options,
		PauseAllowFreeText: allowFreeText,
		PauseTimeoutMs:     timeoutMs,
	}
}

// NewNodeResult builds a NodeResult directly from data and metadata,
// enforcing the configured metadata size policy.
func NewNodeResult(data any, metadata map[string]any) (NodeResult, error) {
	nr := NodeResult{Data: data, Metadata: metadata}
	if err := enforceSizePolicy(nr); err != nil {
		return NodeResult{}, err
	}
	return nr, nil
}

// FromContext builds a NodeResult whose Metadata is the merge of
// ctx.Context (as a plain map) and additional, with additional winning on
// key collision. This is the required construction path for nodes that want
// to surface context-derived metadata.
func FromContext(nc NodeContext, data any, additional map[string]any) (NodeResult, error) {
	merged := nc.Context.ToMap()
	for k, v := range additional {
		merged[k] = v
	}
	return NewNodeResult(data, merged)
}

func enforceSizePolicy(nr NodeResult) error {
	if currentSizePolicy == SizePolicyIgnore || len(nr.Metadata) == 0 {
		return nil
	}
	encoded, err := json.Marshal(nr.Metadata)
	if err != nil {
		// Non-serializable metadata is a construction bug, not a size
		// violation; surface it distinctly rather than silently ignoring it.
		return err
	}
	size := len(encoded)
	switch currentSizePolicy {
	case SizePolicyFail:
		if size > metadataHardBytes {
			return grapherr.FatalError(fmt.Sprintf("node result metadata exceeds hard limit: %d bytes", size), nil)
		}
		if size > metadataWarnBytes {
			log.Printf("graph: node result metadata is %d bytes (soft limit %d)", size, metadataWarnBytes)
		}
	default: // SizePolicyWarn
		if size > metadataWarnBytes {
			log.Printf("graph: node result metadata is %d bytes (soft limit %d)", size, metadataWarnBytes)
		}
	}
	return nil
}

// Node is a unit of work in a graph: Agent, Tool, Output, or Human.
type Node interface {
	ID() string
	Run(ctx context.Context, nc NodeContext) (NodeResult, error)
}

// Func adapts a plain function to the Node interface, mirroring the
// teacher's NodeFunc adapter.
type Func struct {
	NodeID string
	Fn     func(ctx context.Context, nc NodeContext) (NodeResult, error)
}

func (f Func) ID() string { return f.NodeID }

func (f Func) Run(ctx context.Context, nc NodeContext) (NodeResult, error) {
	return f.Fn(ctx, nc)
}
