package runner_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgraph/flowgraph/agent"
	"github.com/flowgraph/flowgraph/checkpoint"
	"github.com/flowgraph/flowgraph/eventbus"
	"github.com/flowgraph/flowgraph/execctx"
	"github.com/flowgraph/flowgraph/graph"
	"github.com/flowgraph/flowgraph/grapherr"
	"github.com/flowgraph/flowgraph/hitl"
	"github.com/flowgraph/flowgraph/message"
	"github.com/flowgraph/flowgraph/middleware"
	"github.com/flowgraph/flowgraph/runner"
	"github.com/flowgraph/flowgraph/tool"
)

// buildLinearGraph builds the two-node agent→output graph shared by S1 and
// the event-ordering property test.
func buildLinearGraph(t *testing.T) *graph.Graph {
	t.Helper()
	agentA := &graph.AgentNode{NodeID: "A", Agent: agent.Func(func(_ context.Context, in message.Message) (message.Message, error) {
		return in.Reply("ok:"+in.Content, "A"), nil
	})}
	outputB := &graph.OutputNode{NodeID: "B", Selector: func(nc graph.NodeContext) (any, error) {
		return nc.State["A"].(message.Message).Content, nil
	}}

	g, err := graph.NewBuilder("s1").
		AddNode(agentA).
		AddNode(outputB).
		AddEdge(graph.Edge{From: "A", To: "B"}).
		Build()
	require.NoError(t, err)
	return g
}

// S1 — linear run, no HITL.
func TestScenario_S1_LinearRun(t *testing.T) {
	g := buildLinearGraph(t)

	r := runner.New(runner.DefaultConfig())
	report, err := r.Run(context.Background(), g, map[string]any{"input": "hi"}, execctx.Empty())
	require.NoError(t, err)

	assert.Equal(t, graph.StatusSuccess, report.Status)
	assert.Equal(t, "ok:hi", report.Result)
	require.Len(t, report.NodeReports, 2)
	assert.Equal(t, "A", report.NodeReports[0].NodeID)
	assert.Equal(t, "B", report.NodeReports[1].NodeID)
}

// S2 — conditional branch.
func TestScenario_S2_ConditionalBranch(t *testing.T) {
	classify := &graph.AgentNode{NodeID: "I", Agent: agent.Func(func(_ context.Context, in message.Message) (message.Message, error) {
		category := "general"
		if strings.Contains(in.Content, "refund") {
			category = "refund"
		}
		return message.New("I", message.KindText, message.RoleAssistant, category), nil
	})}
	refund := &graph.AgentNode{NodeID: "refund", Agent: agent.Func(func(context.Context, message.Message) (message.Message, error) {
		return message.New("refund", message.KindText, message.RoleAssistant, "We'll process your refund shortly."), nil
	})}
	tech := &graph.AgentNode{NodeID: "tech", Agent: agent.Func(func(context.Context, message.Message) (message.Message, error) {
		return message.New("tech", message.KindText, message.RoleAssistant, "Connecting you to tech support."), nil
	})}
	general := &graph.AgentNode{NodeID: "general", Agent: agent.Func(func(context.Context, message.Message) (message.Message, error) {
		return message.New("general", message.KindText, message.RoleAssistant, "How can I help?"), nil
	})}
	out := &graph.OutputNode{NodeID: "out", Selector: func(nc graph.NodeContext) (any, error) {
		return nc.State["_previous"].(message.Message).Content, nil
	}}

	categoryIs := func(category string) graph.Predicate {
		return func(result graph.NodeResult, _ map[string]any) bool {
			msg, ok := result.Data.(message.Message)
			return ok && msg.Content == category
		}
	}

	g, err := graph.NewBuilder("s2").
		AddNode(classify).AddNode(refund).AddNode(tech).AddNode(general).AddNode(out).
		AddEdge(graph.Edge{From: "I", To: "refund", Predicate: categoryIs("refund")}).
		AddEdge(graph.Edge{From: "I", To: "tech", Predicate: categoryIs("tech")}).
		AddEdge(graph.Edge{From: "I", To: "general", Predicate: graph.Always}).
		AddEdge(graph.Edge{From: "refund", To: "out"}).
		AddEdge(graph.Edge{From: "tech", To: "out"}).
		AddEdge(graph.Edge{From: "general", To: "out"}).
		Build()
	require.NoError(t, err)

	r := runner.New(runner.DefaultConfig())
	report, err := r.Run(context.Background(), g, map[string]any{"input": "I need a refund"}, execctx.Empty())
	require.NoError(t, err)

	assert.Equal(t, graph.StatusSuccess, report.Status)
	assert.Equal(t, "We'll process your refund shortly.", report.Result)

	var visited []string
	for _, nr := range report.NodeReports {
		visited = append(visited, nr.NodeID)
	}
	assert.Equal(t, []string{"I", "refund", "out"}, visited)
}

// flakyTool fails with a transient ToolError on its first two calls and
// succeeds on the third, grounding S3's retry scenario.
type flakyTool struct{ calls int }

func (f *flakyTool) Name() string { return "flaky" }

func (f *flakyTool) Execute(context.Context, map[string]any, tool.Context) (tool.Result, error) {
	f.calls++
	if f.calls < 3 {
		err := grapherr.NewToolError("T", grapherr.ToolRuntime, "timeout", true, nil)
		return tool.Result{Success: false, Error: err}, err
	}
	return tool.Result{Success: true, Result: map[string]any{"value": "done"}, Kind: tool.KindValue}, nil
}

// S3 — retry on transient error.
func TestScenario_S3_RetryOnTransientError(t *testing.T) {
	toolNode := &graph.ToolNode{NodeID: "T", Tool: &flakyTool{}, ParamMapper: func(map[string]any) map[string]any { return map[string]any{} }}
	out := &graph.OutputNode{NodeID: "out", Selector: func(nc graph.NodeContext) (any, error) {
		return nc.State["T"].(map[string]any)["value"], nil
	}}

	g, err := graph.NewBuilder("s3").
		AddNode(toolNode).AddNode(out).
		AddEdge(graph.Edge{From: "T", To: "out"}).
		Build()
	require.NoError(t, err)

	bus := eventbus.NewMemoryBus(nil)
	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := bus.SubscribeByType(subCtx, eventbus.TypeNodeStarted)
	require.NoError(t, err)

	cfg := runner.DefaultConfig()
	cfg.EventBus = bus
	cfg.Backoff = runner.BackoffPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	cfg.Middleware = []graph.Middleware{middleware.NewRetryMiddleware()}
	r := runner.New(cfg)

	report, err := r.Run(context.Background(), g, map[string]any{}, execctx.Empty())
	require.NoError(t, err)

	assert.Equal(t, graph.StatusSuccess, report.Status)
	assert.Equal(t, "done", report.Result)

	count := 0
drain:
	for {
		select {
		case e := <-events:
			payload, ok := e.Payload.(map[string]any)
			if ok && payload["nodeId"] == "T" {
				count++
			}
		default:
			break drain
		}
	}
	assert.Equal(t, 3, count, "exactly 3 NodeStarted events expected for T")
}

func buildHITLGraph(t *testing.T) *graph.Graph {
	t.Helper()
	draft := &graph.AgentNode{NodeID: "draft", Agent: agent.Func(func(context.Context, message.Message) (message.Message, error) {
		return message.New("draft", message.KindText, message.RoleAssistant, "draft content"), nil
	})}
	review := &graph.HumanNode{
		NodeID:  "review",
		Prompt:  "Approve this draft?",
		Options: []hitl.Option{{ID: "approve", Label: "Approve"}, {ID: "reject", Label: "Reject"}},
	}
	publish := &graph.AgentNode{NodeID: "publish", Agent: agent.Func(func(context.Context, message.Message) (message.Message, error) {
		return message.New("publish", message.KindText, message.RoleAssistant, "published"), nil
	})}
	revise := &graph.AgentNode{NodeID: "revise", Agent: agent.Func(func(context.Context, message.Message) (message.Message, error) {
		return message.New("revise", message.KindText, message.RoleAssistant, "revising"), nil
	})}
	out := &graph.OutputNode{NodeID: "out", Selector: func(nc graph.NodeContext) (any, error) {
		return nc.State["_previous"].(message.Message).Content, nil
	}}

	approved := func(result graph.NodeResult, _ map[string]any) bool {
		resp, ok := result.Data.(hitl.Response)
		return ok && resp.SelectedOption == "approve"
	}

	g, err := graph.NewBuilder("s4").
		AddNode(draft).AddNode(review).AddNode(publish).AddNode(revise).AddNode(out).
		AddEdge(graph.Edge{From: "draft", To: "review"}).
		AddEdge(graph.Edge{From: "review", To: "publish", Predicate: approved}).
		AddEdge(graph.Edge{From: "review", To: "revise", Predicate: graph.Always}).
		AddEdge(graph.Edge{From: "publish", To: "out"}).
		AddEdge(graph.Edge{From: "revise", To: "out"}).
		Build()
	require.NoError(t, err)
	return g
}

// S4 — HITL pause & resume.
func TestScenario_S4_HITLPauseAndResume(t *testing.T) {
	g := buildHITLGraph(t)
	store := checkpoint.NewMemoryStore()
	bus := eventbus.NewMemoryBus(nil)
	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	requests, err := bus.SubscribeByType(subCtx, eventbus.TypeHitlRequested)
	require.NoError(t, err)

	cfg := runner.DefaultConfig()
	cfg.Store = store
	cfg.EventBus = bus
	r := runner.New(cfg)

	report1, err := r.Run(context.Background(), g, map[string]any{"input": "draft this"}, execctx.Empty())
	require.NoError(t, err)
	require.Equal(t, graph.StatusPaused, report1.Status)
	require.NotEmpty(t, report1.CheckpointID)

	select {
	case e := <-requests:
		req, ok := e.Payload.(hitl.Request)
		require.True(t, ok)
		assert.Equal(t, "hitl_"+report1.RunID+"_review_0", req.ToolCallID)
	default:
		t.Fatal("expected a HitlRequested event")
	}

	response := hitl.Response{NodeID: "review", SelectedOption: "approve", Timestamp: time.Now()}
	report2, err := r.ResumeWithHumanResponse(context.Background(), g, report1.CheckpointID, response)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusSuccess, report2.Status)
	assert.Equal(t, "published", report2.Result)
}

// S5 — invalid HITL response.
func TestScenario_S5_InvalidHITLResponse(t *testing.T) {
	g := buildHITLGraph(t)
	store := checkpoint.NewMemoryStore()
	cfg := runner.DefaultConfig()
	cfg.Store = store
	r := runner.New(cfg)

	report1, err := r.Run(context.Background(), g, map[string]any{"input": "draft this"}, execctx.Empty())
	require.NoError(t, err)
	require.Equal(t, graph.StatusPaused, report1.Status)

	response := hitl.Response{NodeID: "review", SelectedOption: "maybe"}
	report2, err := r.ResumeWithHumanResponse(context.Background(), g, report1.CheckpointID, response)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusFailed, report2.Status)
	assert.Equal(t, grapherr.KindHitl, grapherr.KindOf(report2.Err))

	cp, err := store.Load(context.Background(), report1.CheckpointID)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StateWaitingForHuman, cp.Execution)
}

// S6 — cycle prevented at build time for an unconditional cycle.
func TestScenario_S6_UnconditionalCycleRejectedAtBuild(t *testing.T) {
	a := &graph.Func{NodeID: "A", Fn: func(_ context.Context, nc graph.NodeContext) (graph.NodeResult, error) {
		return graph.NewNodeResult("a", nil)
	}}
	b := &graph.Func{NodeID: "B", Fn: func(_ context.Context, nc graph.NodeContext) (graph.NodeResult, error) {
		return graph.NewNodeResult("b", nil)
	}}

	_, err := graph.NewBuilder("s6a").
		AddNode(a).AddNode(b).
		AddEdge(graph.Edge{From: "A", To: "B"}).
		AddEdge(graph.Edge{From: "B", To: "A"}).
		Build()
	require.Error(t, err)
	assert.Equal(t, grapherr.KindValidation, grapherr.KindOf(err))
}

// S6 variant — a conditional cycle that never converges (identical state on
// every revisit) is caught at runtime rather than looping forever.
func TestScenario_S6_RuntimeCycleDetected(t *testing.T) {
	fixedA := message.New("A", message.KindText, message.RoleAssistant, "loop-a")
	fixedB := message.New("B", message.KindText, message.RoleAssistant, "loop-b")

	a := &graph.AgentNode{NodeID: "A", Agent: agent.Func(func(context.Context, message.Message) (message.Message, error) {
		return fixedA, nil
	})}
	b := &graph.AgentNode{NodeID: "B", Agent: agent.Func(func(context.Context, message.Message) (message.Message, error) {
		return fixedB, nil
	})}

	g, err := graph.NewBuilder("s6b").
		AddNode(a).AddNode(b).
		AddEdge(graph.Edge{From: "A", To: "B", Predicate: graph.Always}).
		AddEdge(graph.Edge{From: "B", To: "A", Predicate: graph.Always}).
		Build()
	require.NoError(t, err)

	cfg := runner.DefaultConfig()
	cfg.MaxSteps = 50 // backstop in case the state-hash convergence analysis is ever wrong
	r := runner.New(cfg)

	report, err := r.Run(context.Background(), g, map[string]any{"input": "start"}, execctx.Empty())
	require.NoError(t, err)
	assert.Equal(t, graph.StatusFailed, report.Status)
	require.Error(t, report.Err)
	assert.Contains(t, report.Err.Error(), "cycle")
}
