// Package middleware provides the standard cross-cutting interceptors
// (logging, metrics, retry, checkpoint, tracing) around graph node
// execution, plus the onion-model Chain that composes a graph.Middleware
// list into the single Middleware the runner invokes.
package middleware

import (
	"context"

	"github.com/flowgraph/flowgraph/execctx"
	"github.com/flowgraph/flowgraph/graph"
)

// Chain composes a list of middleware into one graph.Middleware. Outermost
// runs first going in (OnStart, then OnNode wrapping) and last going out
// (OnFinish), matching the onion model of §4.4.
type Chain struct {
	middleware []graph.Middleware
}

// NewChain builds a Chain from ms, outermost first.
func NewChain(ms ...graph.Middleware) *Chain {
	return &Chain{middleware: ms}
}

func (c *Chain) OnStart(ctx context.Context, ec execctx.ExecutionContext) error {
	for _, m := range c.middleware {
		if err := m.OnStart(ctx, ec); err != nil {
			return err
		}
	}
	return nil
}

// OnNode builds the nested invocation chain: middleware[0] wraps
// middleware[1] wraps ... wraps the node itself (final).
func (c *Chain) OnNode(ctx context.Context, req graph.NodeRequest, nc graph.NodeContext, final graph.NodeInvoker) (graph.NodeResult, error) {
	next := final
	for i := len(c.middleware) - 1; i >= 0; i-- {
		m := c.middleware[i]
		wrapped := next
		next = func(ctx context.Context, nc graph.NodeContext) (graph.NodeResult, error) {
			return m.OnNode(ctx, req, nc, wrapped)
		}
	}
	return next(ctx, nc)
}

// OnError walks the chain innermost-outward (i.e. reverse declaration
// order), returning the first non-PROPAGATE verdict. If every middleware
// defers, the error propagates.
func (c *Chain) OnError(ctx context.Context, err error, req graph.NodeRequest) graph.ErrorAction {
	for i := len(c.middleware) - 1; i >= 0; i-- {
		action := c.middleware[i].OnError(ctx, err, req)
		if action.Kind != graph.ActionPropagate {
			return action
		}
	}
	return graph.Propagate()
}

// OnFinish notifies every middleware, innermost first (the reverse of
// OnStart), mirroring the onion model's "last in, first out" on the way out.
func (c *Chain) OnFinish(ctx context.Context, report graph.RunReport) {
	for i := len(c.middleware) - 1; i >= 0; i-- {
		c.middleware[i].OnFinish(ctx, report)
	}
}
