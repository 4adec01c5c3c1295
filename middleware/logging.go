package middleware

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/flowgraph/flowgraph/execctx"
	"github.com/flowgraph/flowgraph/graph"
)

// LoggingMiddleware writes a structured key=value log line on run start,
// per node, and on run finish, grounded in the teacher's LogEmitter text
// mode.
type LoggingMiddleware struct {
	Writer io.Writer
}

// NewLoggingMiddleware logs to w, defaulting to os.Stdout when w is nil.
func NewLoggingMiddleware(w io.Writer) *LoggingMiddleware {
	if w == nil {
		w = os.Stdout
	}
	return &LoggingMiddleware{Writer: w}
}

func (m *LoggingMiddleware) OnStart(_ context.Context, ec execctx.ExecutionContext) error {
	fmt.Fprintf(m.Writer, "[graph_started] correlationId=%s userId=%s tenantId=%s\n",
		ec.CorrelationID(), ec.UserID(), ec.TenantID())
	return nil
}

func (m *LoggingMiddleware) OnNode(ctx context.Context, req graph.NodeRequest, nc graph.NodeContext, next graph.NodeInvoker) (graph.NodeResult, error) {
	start := time.Now()
	fmt.Fprintf(m.Writer, "[node_start] nodeId=%s\n", req.NodeID)

	result, err := next(ctx, nc)

	if err != nil {
		fmt.Fprintf(m.Writer, "[node_error] nodeId=%s duration_ms=%d err=%v\n", req.NodeID, time.Since(start).Milliseconds(), err)
		return result, err
	}
	fmt.Fprintf(m.Writer, "[node_end] nodeId=%s duration_ms=%d paused=%t\n", req.NodeID, time.Since(start).Milliseconds(), result.Paused)
	return result, nil
}

func (m *LoggingMiddleware) OnError(_ context.Context, err error, req graph.NodeRequest) graph.ErrorAction {
	fmt.Fprintf(m.Writer, "[node_failed] nodeId=%s err=%v\n", req.NodeID, err)
	return graph.Propagate()
}

func (m *LoggingMiddleware) OnFinish(_ context.Context, report graph.RunReport) {
	fmt.Fprintf(m.Writer, "[graph_finished] runId=%s status=%s duration_ms=%d nodeCount=%d\n",
		report.RunID, report.Status, report.Duration.Milliseconds(), len(report.NodeReports))
}
