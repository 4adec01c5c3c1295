package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/flowgraph/flowgraph/checkpoint"
	"github.com/flowgraph/flowgraph/execctx"
	"github.com/flowgraph/flowgraph/graph"
	"github.com/flowgraph/flowgraph/runid"
)

// CheckpointMiddleware persists periodic and error checkpoints per the
// store's retention policy. It does not write the durable
// WAITING_FOR_HUMAN checkpoint itself: only the runner holds the assembled
// hitl.Interaction (tool_call_id, invocation index) that belongs in that
// checkpoint, so the runner writes that one directly against its own
// configured Store; the runner keeps its own Tracker and does not use the
// trackers held here.
type CheckpointMiddleware struct {
	Store  checkpoint.Store
	Config checkpoint.Config

	mu       sync.Mutex
	trackers map[string]*checkpoint.Tracker
}

// NewCheckpointMiddleware builds a CheckpointMiddleware writing to store
// under cfg's save cadence and retention policy.
func NewCheckpointMiddleware(store checkpoint.Store, cfg checkpoint.Config) *CheckpointMiddleware {
	return &CheckpointMiddleware{
		Store:    store,
		Config:   cfg,
		trackers: make(map[string]*checkpoint.Tracker),
	}
}

func (m *CheckpointMiddleware) trackerFor(runID string) *checkpoint.Tracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trackers[runID]
	if !ok {
		t = checkpoint.NewTracker(m.Config)
		m.trackers[runID] = t
	}
	return t
}

func (m *CheckpointMiddleware) OnStart(context.Context, execctx.ExecutionContext) error { return nil }

func (m *CheckpointMiddleware) OnNode(ctx context.Context, req graph.NodeRequest, nc graph.NodeContext, next graph.NodeInvoker) (graph.NodeResult, error) {
	result, err := next(ctx, nc)

	tracker := m.trackerFor(nc.RunID)
	forced := err != nil && m.Config.SaveOnError
	if !tracker.ShouldSave(forced) {
		tracker.RecordNode()
		return result, err
	}

	state := execStateFor(err, result)
	cp := checkpoint.Checkpoint{
		ID:            runid.New(),
		RunID:         nc.RunID,
		GraphID:       nc.GraphID,
		CurrentNodeID: req.NodeID,
		State:         nc.State,
		Context:       req.Context.ToMap(),
		Timestamp:     time.Now(),
		Execution:     state,
	}
	if saveErr := m.save(ctx, cp); saveErr != nil && err == nil {
		return result, saveErr
	}
	return result, err
}

func (m *CheckpointMiddleware) save(ctx context.Context, cp checkpoint.Checkpoint) error {
	if _, err := m.Store.Save(ctx, cp); err != nil {
		return err
	}
	m.trackerFor(cp.RunID).RecordSave()
	return checkpoint.Prune(ctx, m.Store, cp.RunID, m.Config)
}

func execStateFor(err error, result graph.NodeResult) checkpoint.ExecutionState {
	switch {
	case err != nil:
		return checkpoint.StateFailed
	case result.Paused:
		return checkpoint.StateWaitingForHuman
	default:
		return checkpoint.StateRunning
	}
}

func (m *CheckpointMiddleware) OnError(context.Context, error, graph.NodeRequest) graph.ErrorAction {
	return graph.Propagate()
}

func (m *CheckpointMiddleware) OnFinish(ctx context.Context, report graph.RunReport) {
	m.mu.Lock()
	delete(m.trackers, report.RunID)
	m.mu.Unlock()
}
