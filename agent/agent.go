// Package agent defines the Agent contract consumed by graph.AgentNode.
// Agent implementations are external collaborators (LLM-backed or
// otherwise); only their contract is specified here.
package agent

import (
	"context"

	"github.com/flowgraph/flowgraph/message"
)

// Agent is a capability that consumes a Message and produces a Message.
type Agent interface {
	// Process runs the agent against in, returning the agent's reply.
	Process(ctx context.Context, in message.Message) (message.Message, error)
}

// CanHandler is an optional capability an Agent may implement to reject
// messages it cannot process. When absent, the runner treats the agent as
// always able to handle its input.
type CanHandler interface {
	CanHandle(in message.Message) bool
}

// CanHandle evaluates the optional CanHandler capability of a, defaulting to
// true when a does not implement it.
func CanHandle(a Agent, in message.Message) bool {
	if ch, ok := a.(CanHandler); ok {
		return ch.CanHandle(in)
	}
	return true
}

// Func adapts a plain function to the Agent interface.
type Func func(ctx context.Context, in message.Message) (message.Message, error)

func (f Func) Process(ctx context.Context, in message.Message) (message.Message, error) {
	return f(ctx, in)
}
