package graph

import (
	"context"

	"github.com/flowgraph/flowgraph/agent"
	"github.com/flowgraph/flowgraph/grapherr"
	"github.com/flowgraph/flowgraph/hitl"
	"github.com/flowgraph/flowgraph/message"
	"github.com/flowgraph/flowgraph/tool"
)

// AgentNode adapts an agent.Agent capability into the Node contract.
// It derives an inbound Message from state["_previous"] (the prior node's
// output), falling back to state["input"], invokes the agent, and reports
// the outgoing message plus routing metadata.
type AgentNode struct {
	NodeID string
	Agent  agent.Agent
}

func (n *AgentNode) ID() string { return n.NodeID }

func (n *AgentNode) Run(ctx context.Context, nc NodeContext) (NodeResult, error) {
	in, err := inboundMessage(nc)
	if err != nil {
		return NodeResult{}, err
	}

	if !agent.CanHandle(n.Agent, in) {
		return NodeResult{}, grapherr.AgentCannotHandle(n.NodeID)
	}

	out, err := n.Agent.Process(ctx, in)
	if err != nil {
		return NodeResult{}, grapherr.NewAgentError(n.NodeID, err.Error(), grapherr.IsTransient(err), err)
	}

	return FromContext(nc, out, map[string]any{
		"role": string(out.Role),
		"from": out.From,
	})
}

func inboundMessage(nc NodeContext) (message.Message, error) {
	if prev, ok := nc.State["_previous"]; ok {
		if m, ok := prev.(message.Message); ok {
			return m, nil
		}
	}
	if in, ok := nc.State["input"]; ok {
		if m, ok := in.(message.Message); ok {
			return m, nil
		}
		if s, ok := in.(string); ok {
			return message.New("runner", message.KindText, message.RoleUser, s), nil
		}
	}
	return message.Message{}, grapherr.FatalError("no message available to derive agent input", nil)
}

// ToolNode executes a tool.Tool, deriving its parameters from the run state
// via ParamMapper. A tool.KindWaitingHITL result pauses the run
// rather than failing or succeeding it.
type ToolNode struct {
	NodeID      string
	Tool        tool.Tool
	ParamMapper tool.ParamMapper
	AgentID     string
}

func (n *ToolNode) ID() string { return n.NodeID }

func (n *ToolNode) Run(ctx context.Context, nc NodeContext) (NodeResult, error) {
	params := n.ParamMapper(nc.State)
	tc := tool.Context{
		AgentID: n.AgentID,
		Graph: tool.GraphRef{
			GraphID: nc.GraphID,
			RunID:   nc.RunID,
			NodeID:  n.NodeID,
		},
		Auth: tool.Auth{
			UserID:   nc.Context.UserID(),
			TenantID: nc.Context.TenantID(),
		},
		CorrelationID: nc.Context.CorrelationID(),
	}

	result, err := n.Tool.Execute(ctx, params, tc)
	if err != nil {
		if ge, ok := err.(*grapherr.ToolError); ok {
			return NodeResult{}, ge
		}
		return NodeResult{}, grapherr.NewToolError(n.NodeID, grapherr.ToolRuntime, err.Error(), false, err)
	}

	if result.Kind == tool.KindWaitingHITL {
		return toolPauseResult(result), nil
	}

	if !result.Success {
		msg := "tool execution failed"
		if result.Error != nil {
			msg = result.Error.Error()
		}
		return NodeResult{}, grapherr.NewToolError(n.NodeID, grapherr.ToolRuntime, msg, false, result.Error)
	}

	return FromContext(nc, result.Result, result.Metadata)
}

// toolPauseResult translates a tool.Result carrying Kind == KindWaitingHITL
// into a pause NodeResult. The tool is expected to convey the prompt and
// options via its Metadata under the "hitl_prompt"/"hitl_options"/
// "hitl_allow_free_text" reserved keys.
func toolPauseResult(result tool.Result) NodeResult {
	prompt, _ := result.Metadata["hitl_prompt"].(string)
	allowFreeText, _ := result.Metadata["hitl_allow_free_text"].(bool)

	var options []hitl.Option
	if raw, ok := result.Metadata["hitl_options"].([]hitl.Option); ok {
		options = raw
	}

	return PauseResult(prompt, options, allowFreeText, nil)
}

// OutputNode is a pure selector over the run state. It must not panic; a
// panic recovered here is reported as a fatal GraphError with code
// OUTPUT_SELECTOR_ERROR and the run ends FAILED. Output nodes are terminal:
// the validator rejects any
// outgoing edge from one.
type OutputNode struct {
	NodeID   string
	Selector func(nc NodeContext) (any, error)
}

func (n *OutputNode) ID() string { return n.NodeID }

func (n *OutputNode) Run(ctx context.Context, nc NodeContext) (result NodeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &grapherr.GraphError{Kind: grapherr.KindFatal, Code: "OUTPUT_SELECTOR_ERROR", Message: "output selector panicked", NodeID: n.NodeID}
			result = NodeResult{}
		}
	}()

	data, selErr := n.Selector(nc)
	if selErr != nil {
		return NodeResult{}, grapherr.FatalError("output selector failed: "+selErr.Error(), selErr)
	}
	return NewNodeResult(data, nil)
}

// HumanNode pauses forward execution to request human input, and resumes
// via RunAfterResponse once a hitl.Response is available.
type HumanNode struct {
	NodeID        string
	Prompt        string
	Options       []hitl.Option
	TimeoutMs     *int64
	Validator     func(hitl.Response) bool
	AllowFreeText bool
}

func (n *HumanNode) ID() string { return n.NodeID }

// Run never computes; every forward visit produces a pause signal.
func (n *HumanNode) Run(ctx context.Context, nc NodeContext) (NodeResult, error) {
	allowFreeText := n.AllowFreeText || len(n.Options) == 0
	return PauseResult(n.Prompt, n.Options, allowFreeText, n.TimeoutMs), nil
}

// RunAfterResponse is the resume-path entry point: it validates
// response against an optional Validator and, if valid, returns a completed
// NodeResult whose Data is the response. An invalid response re-raises the
// same pause.
func (n *HumanNode) RunAfterResponse(nc NodeContext, response hitl.Response) (NodeResult, error) {
	if n.Validator != nil && !n.Validator(response) {
		allowFreeText := n.AllowFreeText || len(n.Options) == 0
		return PauseResult(n.Prompt, n.Options, allowFreeText, n.TimeoutMs), nil
	}
	return FromContext(nc, response, map[string]any{"nodeId": n.NodeID})
}
