package middleware

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/flowgraph/flowgraph/execctx"
	"github.com/flowgraph/flowgraph/graph"
	"github.com/flowgraph/flowgraph/grapherr"
)

// MetricsMiddleware records per-node execution counts, duration histograms,
// and error counters tagged by kind, grounded in the teacher's
// PrometheusMetrics.
type MetricsMiddleware struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	errors     *prometheus.CounterVec
	runs       *prometheus.CounterVec
}

// NewMetricsMiddleware registers the "flowgraph_" namespaced metrics with
// registry (use prometheus.DefaultRegisterer for the global registry).
func NewMetricsMiddleware(registry prometheus.Registerer) *MetricsMiddleware {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &MetricsMiddleware{
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowgraph",
			Name:      "node_executions_total",
			Help:      "Count of node executions by node id and outcome.",
		}, []string{"node_id", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowgraph",
			Name:      "node_duration_ms",
			Help:      "Node execution duration in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"node_id"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowgraph",
			Name:      "node_errors_total",
			Help:      "Count of node errors by taxonomy kind.",
		}, []string{"node_id", "kind"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowgraph",
			Name:      "runs_total",
			Help:      "Count of completed runs by terminal status.",
		}, []string{"status"}),
	}
}

func (m *MetricsMiddleware) OnStart(context.Context, execctx.ExecutionContext) error { return nil }

func (m *MetricsMiddleware) OnNode(ctx context.Context, req graph.NodeRequest, nc graph.NodeContext, next graph.NodeInvoker) (graph.NodeResult, error) {
	timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
		m.duration.WithLabelValues(req.NodeID).Observe(v * 1000)
	}))
	result, err := next(ctx, nc)
	timer.ObserveDuration()

	status := "success"
	if err != nil {
		status = "error"
		m.errors.WithLabelValues(req.NodeID, string(grapherr.KindOf(err))).Inc()
	} else if result.Paused {
		status = "paused"
	}
	m.executions.WithLabelValues(req.NodeID, status).Inc()
	return result, err
}

func (m *MetricsMiddleware) OnError(context.Context, error, graph.NodeRequest) graph.ErrorAction {
	return graph.Propagate()
}

func (m *MetricsMiddleware) OnFinish(_ context.Context, report graph.RunReport) {
	m.runs.WithLabelValues(string(report.Status)).Inc()
}
