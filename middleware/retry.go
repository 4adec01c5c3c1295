package middleware

import (
	"context"

	"github.com/flowgraph/flowgraph/execctx"
	"github.com/flowgraph/flowgraph/graph"
	"github.com/flowgraph/flowgraph/grapherr"
)

// RetryMiddleware votes RETRY for transient errors and
// defers otherwise. It owns no backoff state itself; the runner owns
// attempt counting and backoff timing once it receives an ActionRetry
// verdict, since only the runner knows how many attempts a node has already
// spent.
type RetryMiddleware struct{}

func NewRetryMiddleware() *RetryMiddleware { return &RetryMiddleware{} }

func (m *RetryMiddleware) OnStart(context.Context, execctx.ExecutionContext) error { return nil }

func (m *RetryMiddleware) OnNode(ctx context.Context, req graph.NodeRequest, nc graph.NodeContext, next graph.NodeInvoker) (graph.NodeResult, error) {
	return next(ctx, nc)
}

func (m *RetryMiddleware) OnError(_ context.Context, err error, _ graph.NodeRequest) graph.ErrorAction {
	if grapherr.IsTransient(err) {
		return graph.Retry()
	}
	return graph.Propagate()
}

func (m *RetryMiddleware) OnFinish(context.Context, graph.RunReport) {}
