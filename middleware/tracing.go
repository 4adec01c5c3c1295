package middleware

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowgraph/flowgraph/execctx"
	"github.com/flowgraph/flowgraph/graph"
)

// TracingMiddleware opens one span per node execution, nesting under
// whatever span is already active in ctx, grounded in the teacher's
// OTelEmitter span-per-event model.
type TracingMiddleware struct {
	tracer trace.Tracer
}

// NewTracingMiddleware builds a TracingMiddleware using tracer. Pass
// otel.Tracer("flowgraph") for the global provider.
func NewTracingMiddleware(tracer trace.Tracer) *TracingMiddleware {
	return &TracingMiddleware{tracer: tracer}
}

func (m *TracingMiddleware) OnStart(_ context.Context, ec execctx.ExecutionContext) error {
	return nil
}

func (m *TracingMiddleware) OnNode(ctx context.Context, req graph.NodeRequest, nc graph.NodeContext, next graph.NodeInvoker) (graph.NodeResult, error) {
	ctx, span := m.tracer.Start(ctx, req.NodeID)
	defer span.End()

	span.SetAttributes(
		attribute.String("flowgraph.run_id", nc.RunID),
		attribute.String("flowgraph.graph_id", nc.GraphID),
		attribute.String("flowgraph.node_id", req.NodeID),
	)

	result, err := next(ctx, nc)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return result, err
	}
	if result.Paused {
		span.SetAttributes(attribute.Bool("flowgraph.paused", true))
	}
	return result, nil
}

func (m *TracingMiddleware) OnError(context.Context, error, graph.NodeRequest) graph.ErrorAction {
	return graph.Propagate()
}

func (m *TracingMiddleware) OnFinish(context.Context, graph.RunReport) {}
