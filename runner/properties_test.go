package runner_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgraph/flowgraph/checkpoint"
	"github.com/flowgraph/flowgraph/eventbus"
	"github.com/flowgraph/flowgraph/execctx"
	"github.com/flowgraph/flowgraph/hitl"
	"github.com/flowgraph/flowgraph/runner"
)

// drainEvents collects every event currently buffered on ch without blocking.
func drainEvents(ch <-chan eventbus.Event) []eventbus.Event {
	var out []eventbus.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func eventTypes(events []eventbus.Event) []string {
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.EventType
	}
	return types
}

// TestProperty_CheckpointRoundTrip verifies property 6: resuming a paused run
// from a persisted checkpoint, using a Runner instance distinct from the one
// that produced the pause, reaches the same outcome as the original run
// would have — the checkpoint alone carries everything resume needs.
func TestProperty_CheckpointRoundTrip(t *testing.T) {
	g := buildHITLGraph(t)
	store := checkpoint.NewMemoryStore()
	cfg := runner.DefaultConfig()
	cfg.Store = store

	producer := runner.New(cfg)
	report1, err := producer.Run(context.Background(), g, map[string]any{"input": "draft this"}, execctx.Empty())
	require.NoError(t, err)
	require.Equal(t, "PAUSED", string(report1.Status))

	cp, err := store.Load(context.Background(), report1.CheckpointID)
	require.NoError(t, err)
	assert.Equal(t, "review", cp.CurrentNodeID)
	assert.Equal(t, checkpoint.StateWaitingForHuman, cp.Execution)
	require.NotNil(t, cp.PendingInteraction)
	assert.Equal(t, "review", cp.PendingInteraction.NodeID)

	// A fresh Runner sharing only the checkpoint store stands in for a
	// resume issued from a different process.
	consumer := runner.New(cfg)
	response := hitl.Response{NodeID: "review", SelectedOption: "approve"}
	report2, err := consumer.ResumeWithHumanResponse(context.Background(), g, report1.CheckpointID, response)
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", string(report2.Status))
	assert.Equal(t, "published", report2.Result)
	assert.Equal(t, report1.RunID, report2.RunID)
}

// TestProperty_EventOrdering verifies property 7: a linear run's lifecycle
// events are emitted in the order GraphStarted, (NodeStarted, NodeSucceeded)
// per node, GraphFinished — with no gaps or reordering.
func TestProperty_EventOrdering(t *testing.T) {
	g := buildLinearGraph(t)

	bus := eventbus.NewMemoryBus(nil)
	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(subCtx, "", 0)
	require.NoError(t, err)

	cfg := runner.DefaultConfig()
	cfg.EventBus = bus
	r := runner.New(cfg)

	report, err := r.Run(context.Background(), g, map[string]any{"input": "hi"}, execctx.Empty())
	require.NoError(t, err)
	require.Equal(t, "SUCCESS", string(report.Status))

	got := eventTypes(drainEvents(ch))
	want := []string{
		eventbus.TypeGraphStarted,
		eventbus.TypeNodeStarted, eventbus.TypeNodeSucceeded,
		eventbus.TypeNodeStarted, eventbus.TypeNodeSucceeded,
		eventbus.TypeGraphFinished,
	}
	assert.Equal(t, want, got)
}

// TestProperty_AtMostOnePausePerNode verifies property 8: a node that pauses
// produces exactly one HitlRequested/GraphPaused pair and never a
// NodeSucceeded for that invocation, across both the initial run and its
// resume.
func TestProperty_AtMostOnePausePerNode(t *testing.T) {
	g := buildHITLGraph(t)
	store := checkpoint.NewMemoryStore()
	bus := eventbus.NewMemoryBus(nil)
	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(subCtx, "", 0)
	require.NoError(t, err)

	cfg := runner.DefaultConfig()
	cfg.Store = store
	cfg.EventBus = bus
	r := runner.New(cfg)

	report1, err := r.Run(context.Background(), g, map[string]any{"input": "draft this"}, execctx.Empty())
	require.NoError(t, err)
	require.Equal(t, "PAUSED", string(report1.Status))

	response := hitl.Response{NodeID: "review", SelectedOption: "approve"}
	report2, err := r.ResumeWithHumanResponse(context.Background(), g, report1.CheckpointID, response)
	require.NoError(t, err)
	require.Equal(t, "SUCCESS", string(report2.Status))

	events := drainEvents(ch)
	var hitlRequested, graphPaused, nodeSucceededForReview int
	for _, e := range events {
		switch e.EventType {
		case eventbus.TypeHitlRequested:
			hitlRequested++
		case eventbus.TypeGraphPaused:
			graphPaused++
		case eventbus.TypeNodeSucceeded:
			if payload, ok := e.Payload.(map[string]any); ok && payload["nodeId"] == "review" {
				nodeSucceededForReview++
			}
		}
	}
	assert.Equal(t, 1, hitlRequested)
	assert.Equal(t, 1, graphPaused)
	assert.Equal(t, 0, nodeSucceededForReview)

	got := eventTypes(events)
	want := []string{
		eventbus.TypeGraphStarted,
		eventbus.TypeNodeStarted, eventbus.TypeNodeSucceeded, // draft
		eventbus.TypeNodeStarted, // review (pauses, no NodeSucceeded)
		eventbus.TypeHitlRequested,
		eventbus.TypeCheckpointSaved,
		eventbus.TypeGraphPaused,
		eventbus.TypeHitlResolved,
		eventbus.TypeGraphResumed,
		eventbus.TypeNodeStarted, eventbus.TypeNodeSucceeded, // publish
		eventbus.TypeNodeStarted, eventbus.TypeNodeSucceeded, // out
		eventbus.TypeGraphFinished,
	}
	assert.Equal(t, want, got)
}
