// Package runner implements the graph execution engine's dynamic side: the
// forward execution loop, its error/retry handling, checkpoint persistence,
// HITL pause/resume, and lifecycle event emission.
package runner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"time"

	"github.com/flowgraph/flowgraph/checkpoint"
	"github.com/flowgraph/flowgraph/eventbus"
	"github.com/flowgraph/flowgraph/execctx"
	"github.com/flowgraph/flowgraph/graph"
	"github.com/flowgraph/flowgraph/grapherr"
	"github.com/flowgraph/flowgraph/hitl"
	"github.com/flowgraph/flowgraph/middleware"
	"github.com/flowgraph/flowgraph/runid"
)

// Config is the runner's static configuration: retry/timeout policy, where
// to checkpoint, where to publish lifecycle events, and the middleware
// stack wrapping every node invocation.
type Config struct {
	Backoff          BackoffPolicy
	PerNodeTimeout   time.Duration
	PerRunTimeout    time.Duration
	CheckpointPolicy checkpoint.Config
	Store            checkpoint.Store
	EventBus         eventbus.Bus
	Middleware       []graph.Middleware

	// MaxSteps bounds the number of node transitions a single run may take,
	// independent of the runtime cycle detector; 0 means unlimited.
	MaxSteps int
	// CostTracker, when set, is fed every AgentNode result that reports
	// tokens_in/tokens_out/model in its metadata.
	CostTracker *CostTracker
	// ReplayLog, when set together with ReplayMode, supplies recorded I/O
	// for nodes implementing Recordable so a resumed run doesn't re-invoke
	// them; in record mode (ReplayMode=false) successful Recordable node
	// results are appended to it instead.
	ReplayLog *ReplayLog
	ReplayMode   bool
	StrictReplay bool
}

// DefaultConfig returns the spec's stated defaults: 3 attempts/100ms/5s
// backoff, no timeouts, and the default checkpoint retention policy.
func DefaultConfig() Config {
	return Config{
		Backoff:          DefaultBackoffPolicy(),
		CheckpointPolicy: checkpoint.DefaultConfig(),
	}
}

// Runner executes graphs built by graph.GraphBuilder.
type Runner struct {
	cfg   Config
	chain *middleware.Chain
	rng   *rand.Rand
}

// New builds a Runner from cfg.
func New(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		chain: middleware.NewChain(cfg.Middleware...),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ErrAwaitingResponse is returned by Resume when a checkpoint is still
// WAITING_FOR_HUMAN and no response has been attached yet.
var ErrAwaitingResponse = errors.New("runner: checkpoint is awaiting a human response")

// Run executes graph g from its entry point with input as the initial state
//.
func (r *Runner) Run(ctx context.Context, g *graph.Graph, input map[string]any, ec execctx.ExecutionContext) (graph.RunReport, error) {
	runID := runid.New()
	state := cloneState(input)
	return r.execute(ctx, g, runID, state, ec, g.EntryPoint(), nil, "", 0)
}

// RunWithCheckpoint behaves like Run but forces cfg.Store and
// cfg.CheckpointPolicy to store and policy for the duration of this call,
// letting callers vary the checkpoint backend per run without constructing
// a new Runner.
func (r *Runner) RunWithCheckpoint(ctx context.Context, g *graph.Graph, input map[string]any, ec execctx.ExecutionContext, store checkpoint.Store, policy checkpoint.Config) (graph.RunReport, error) {
	scoped := *r
	scoped.cfg.Store = store
	scoped.cfg.CheckpointPolicy = policy
	return scoped.Run(ctx, g, input, ec)
}

// Resume continues a paused run from its last checkpoint. If the
// checkpoint is still WAITING_FOR_HUMAN with no attached response, it
// returns ErrAwaitingResponse.
func (r *Runner) Resume(ctx context.Context, g *graph.Graph, checkpointID string) (graph.RunReport, error) {
	if r.cfg.Store == nil {
		return graph.RunReport{}, errors.New("runner: Resume requires a configured checkpoint store")
	}
	cp, err := r.cfg.Store.Load(ctx, checkpointID)
	if err != nil {
		return graph.RunReport{}, err
	}
	if cp.GraphID != g.ID {
		return graph.RunReport{}, grapherr.ValidationError("GRAPH_MISMATCH", "checkpoint belongs to a different graph")
	}
	if cp.Execution == checkpoint.StateWaitingForHuman && cp.HumanResponse == nil {
		return graph.RunReport{}, ErrAwaitingResponse
	}
	return r.resumeFrom(ctx, g, cp)
}

// ResumeWithHumanResponse attaches response to the checkpoint's pending
// interaction, validates it, persists the attachment, and resumes.
func (r *Runner) ResumeWithHumanResponse(ctx context.Context, g *graph.Graph, checkpointID string, response hitl.Response) (graph.RunReport, error) {
	if r.cfg.Store == nil {
		return graph.RunReport{}, errors.New("runner: ResumeWithHumanResponse requires a configured checkpoint store")
	}
	cp, err := r.cfg.Store.Load(ctx, checkpointID)
	if err != nil {
		return graph.RunReport{}, err
	}
	if cp.GraphID != g.ID {
		return graph.RunReport{}, grapherr.ValidationError("GRAPH_MISMATCH", "checkpoint belongs to a different graph")
	}
	if cp.PendingInteraction == nil {
		return graph.RunReport{}, grapherr.HitlError(cp.CurrentNodeID, "checkpoint has no pending interaction")
	}
	if !response.Valid(*cp.PendingInteraction) {
		cp.Execution = checkpoint.StateWaitingForHuman
		return graph.RunReport{
			GraphID:      cp.GraphID,
			RunID:        cp.RunID,
			Status:       graph.StatusFailed,
			Err:          grapherr.HitlError(cp.CurrentNodeID, "human response failed validation"),
			CheckpointID: cp.ID,
		}, nil
	}
	cp.HumanResponse = &response
	if _, err := r.cfg.Store.Save(ctx, cp); err != nil {
		return graph.RunReport{}, err
	}
	r.emit(ctx, cp.RunID, eventbus.TypeHitlResolved, cp.RunID, map[string]any{
		"nodeId": cp.CurrentNodeID,
	}, execctx.Of(cp.Context))
	return r.resumeFrom(ctx, g, cp)
}

// GetPendingInteractions returns the interaction awaiting a human response
// on checkpointID, if any.
func (r *Runner) GetPendingInteractions(ctx context.Context, checkpointID string) ([]hitl.Interaction, error) {
	if r.cfg.Store == nil {
		return nil, errors.New("runner: GetPendingInteractions requires a configured checkpoint store")
	}
	cp, err := r.cfg.Store.Load(ctx, checkpointID)
	if err != nil {
		return nil, err
	}
	if cp.PendingInteraction == nil {
		return nil, nil
	}
	return []hitl.Interaction{*cp.PendingInteraction}, nil
}

// resumeFrom reconstructs the loop state from cp and continues execution.
func (r *Runner) resumeFrom(ctx context.Context, g *graph.Graph, cp checkpoint.Checkpoint) (graph.RunReport, error) {
	ec := execctx.Of(cp.Context)
	state := cloneState(cp.State)

	node, ok := g.Node(cp.CurrentNodeID)
	if !ok {
		return graph.RunReport{}, grapherr.FatalError("resume: unknown node "+cp.CurrentNodeID, nil)
	}

	nc := graph.NodeContext{GraphID: g.ID, RunID: cp.RunID, State: state, Context: ec}

	var synthesized graph.NodeResult
	var err error
	switch n := node.(type) {
	case *graph.HumanNode:
		synthesized, err = n.RunAfterResponse(nc, *cp.HumanResponse)
	default:
		// Tool-initiated pauses resume with the human's raw response as the
		// synthesized tool output; a tool wanting richer post-HITL behavior
		// re-derives it from nc.State on its next forward visit.
		synthesized, err = graph.FromContext(nc, cp.HumanResponse, map[string]any{"nodeId": cp.CurrentNodeID})
	}
	if err != nil {
		return graph.RunReport{}, err
	}

	r.emit(ctx, cp.RunID, eventbus.TypeGraphResumed, cp.RunID, map[string]any{"nodeId": cp.CurrentNodeID}, ec)

	if synthesized.Paused {
		// The node's validator rejected the response and the node paused
		// again (re-prompt); persist a fresh WAITING_FOR_HUMAN checkpoint and
		// return PAUSED rather than looping forever.
		return r.pauseRun(ctx, g, cp.RunID, cp.CurrentNodeID, 0, state, ec, nil, synthesized)
	}

	state = applyResult(state, cp.CurrentNodeID, synthesized)
	ec = promoteContext(ec, synthesized.Metadata)

	report := graph.NodeReport{NodeID: cp.CurrentNodeID, StartTime: time.Now(), Status: graph.StatusSuccess, Output: synthesized.Data}
	return r.execute(ctx, g, cp.RunID, state, ec, nextNodeAfter(g, cp.CurrentNodeID, synthesized, state), []graph.NodeReport{report}, cp.ID, 1)
}

// execute runs the forward loop starting at currentNode.
func (r *Runner) execute(ctx context.Context, g *graph.Graph, runID string, state map[string]any, ec execctx.ExecutionContext, currentNode string, priorReports []graph.NodeReport, lastCheckpointID string, eventVersion int64) (graph.RunReport, error) {
	ctx = execctx.WithAmbient(ctx, ec)

	if r.cfg.PerRunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.PerRunTimeout)
		defer cancel()
	}

	start := time.Now()
	reports := append([]graph.NodeReport{}, priorReports...)
	visited := make(map[string]map[string]bool)
	tracker := checkpoint.NewTracker(r.cfg.CheckpointPolicy)
	checkpointID := lastCheckpointID
	version := eventVersion

	nextVersion := func() int64 { version++; return version }

	if err := r.chain.OnStart(ctx, ec); err != nil {
		return graph.RunReport{GraphID: g.ID, RunID: runID, Status: graph.StatusFailed, Err: err, Duration: time.Since(start), NodeReports: reports}, nil
	}
	if len(priorReports) == 0 {
		r.emitVersioned(ctx, runID, eventbus.TypeGraphStarted, runID, map[string]any{"graphId": g.ID}, ec, nextVersion())
	}

	var finalResult any
	finalStatus := graph.StatusSuccess
	var finalErr error

	for {
		if err := ctx.Err(); err != nil {
			finalStatus = graph.StatusCancelled
			finalErr = err
			if r.cfg.CheckpointPolicy.SaveOnError {
				checkpointID = r.saveCheckpoint(context.Background(), g, runID, currentNode, state, ec, checkpoint.StateCancelled, nil, nil)
			}
			break
		}

		hash := stateHash(state)
		if visited[currentNode][hash] {
			finalErr = grapherr.FatalError("runtime cycle detected at node "+currentNode, nil)
			finalStatus = graph.StatusFailed
			reports = append(reports, graph.NodeReport{NodeID: currentNode, StartTime: time.Now(), Status: graph.StatusFailed, Err: finalErr})
			if r.cfg.CheckpointPolicy.SaveOnError {
				checkpointID = r.saveCheckpoint(context.Background(), g, runID, currentNode, state, ec, checkpoint.StateFailed, nil, nil)
			}
			break
		}
		if visited[currentNode] == nil {
			visited[currentNode] = make(map[string]bool)
		}
		visited[currentNode][hash] = true

		node, ok := g.Node(currentNode)
		if !ok {
			finalErr = grapherr.FatalError("unknown node "+currentNode, nil)
			finalStatus = graph.StatusFailed
			break
		}

		invocationIndex := countReports(reports, currentNode)
		nc := graph.NodeContext{GraphID: g.ID, RunID: runID, State: state, Context: ec}
		req := graph.NodeRequest{NodeID: currentNode, Input: deriveInput(node, nc), Context: ec}

		nodeStart := time.Now()
		result, err, action := r.invokeWithRetry(ctx, runID, req, nc, node, ec, nextVersion)

		switch {
		case action.Kind == graph.ActionSkip:
			prev, _ := state["_previous"]
			reports = append(reports, graph.NodeReport{NodeID: currentNode, StartTime: nodeStart, Duration: time.Since(nodeStart), Status: graph.StatusSkipped})
			r.emitVersioned(ctx, runID, eventbus.TypeNodeSkipped, runID, map[string]any{"nodeId": currentNode}, ec, nextVersion())
			lastResult := graph.NodeResult{Data: prev}
			next := nextNodeAfter(g, currentNode, lastResult, state)
			if next == "" {
				finalResult = prev
				finalStatus = graph.StatusSuccess
				goto finish
			}
			currentNode = next
			continue

		case err != nil:
			reports = append(reports, graph.NodeReport{NodeID: currentNode, StartTime: nodeStart, Duration: time.Since(nodeStart), Status: graph.StatusFailed, Err: err})
			finalErr = err
			finalStatus = graph.StatusFailed
			if r.cfg.CheckpointPolicy.SaveOnError {
				checkpointID = r.saveCheckpoint(context.Background(), g, runID, currentNode, state, ec, checkpoint.StateFailed, nil, nil)
			}
			goto finish

		case action.Kind == graph.ActionContinue:
			result = graph.NodeResult{Data: action.Value}
		}

		reports = append(reports, graph.NodeReport{NodeID: currentNode, StartTime: nodeStart, Duration: time.Since(nodeStart), Status: graph.StatusSuccess, Output: result.Data})
		state = applyResult(state, currentNode, result)
		ec = promoteContext(ec, result.Metadata)
		recordCostFromMetadata(r.cfg.CostTracker, currentNode, result.Metadata)

		if tracker.ShouldSave(false) {
			checkpointID = r.saveCheckpoint(ctx, g, runID, currentNode, state, ec, checkpoint.StateRunning, nil, nil)
			tracker.RecordSave()
		} else {
			tracker.RecordNode()
		}

		if result.Paused {
			report, err := r.pauseRun(ctx, g, runID, currentNode, invocationIndex, state, ec, reports, result)
			return report, err
		}
		r.emitVersioned(ctx, runID, eventbus.TypeNodeSucceeded, runID, map[string]any{"nodeId": currentNode}, ec, nextVersion())

		if _, ok := node.(*graph.OutputNode); ok {
			finalResult = result.Data
			finalStatus = graph.StatusSuccess
			goto finish
		}

		next := nextNodeAfter(g, currentNode, result, state)
		if next == "" {
			finalResult = state["_previous"]
			finalStatus = graph.StatusSuccess
			goto finish
		}
		if r.cfg.MaxSteps > 0 && len(reports) >= r.cfg.MaxSteps {
			finalErr = grapherr.FatalError(fmt.Sprintf("run exceeded MaxSteps (%d)", r.cfg.MaxSteps), nil)
			finalStatus = graph.StatusFailed
			if r.cfg.CheckpointPolicy.SaveOnError {
				checkpointID = r.saveCheckpoint(context.Background(), g, runID, currentNode, state, ec, checkpoint.StateFailed, nil, nil)
			}
			goto finish
		}
		currentNode = next
	}

finish:
	duration := time.Since(start)
	report := graph.RunReport{
		GraphID:      g.ID,
		RunID:        runID,
		Status:       finalStatus,
		Result:       finalResult,
		Duration:     duration,
		NodeReports:  reports,
		Err:          finalErr,
		CheckpointID: checkpointID,
	}
	r.chain.OnFinish(ctx, report)
	r.emitVersioned(context.Background(), runID, eventbus.TypeGraphFinished, runID, map[string]any{"status": string(finalStatus)}, ec, nextVersion())
	return report, nil
}

// invokeWithRetry runs node through the middleware chain, applying the
// chain's onError verdict: PROPAGATE (return err), RETRY (re-invoke up to
// Backoff.MaxAttempts), SKIP/CONTINUE (return the verdict for the caller to
// apply, err=nil). Each attempt, including retries, emits its own
// NodeStarted, and a NodeFailed whenever that attempt fails: flagged
// willRetry when a RETRY verdict re-invokes the node, unflagged for a final
// PROPAGATE or an exhausted/non-transient RETRY. An attempt the chain
// resolves to SKIP or CONTINUE emits no NodeFailed.
func (r *Runner) invokeWithRetry(ctx context.Context, runID string, req graph.NodeRequest, nc graph.NodeContext, node graph.Node, ec execctx.ExecutionContext, nextVersion func() int64) (graph.NodeResult, error, graph.ErrorAction) {
	invoker := r.timeoutInvoker(node)
	recordable, _ := node.(Recordable)
	attempt := 0
	for {
		r.emitVersioned(ctx, runID, eventbus.TypeNodeStarted, runID, map[string]any{"nodeId": req.NodeID, "attempt": attempt}, ec, nextVersion())

		if recordable != nil && recordable.Recordable() && r.cfg.ReplayMode && r.cfg.ReplayLog != nil {
			if recorded, ok := r.cfg.ReplayLog.Lookup(req.NodeID, attempt); ok {
				var data any
				if err := json.Unmarshal(recorded.Response, &data); err == nil {
					return graph.NodeResult{Data: data}, nil, graph.ErrorAction{Kind: graph.ActionPropagate}
				}
			}
		}

		result, err := r.chain.OnNode(ctx, req, nc, invoker)

		if err == nil && recordable != nil && recordable.Recordable() && !r.cfg.ReplayMode && r.cfg.ReplayLog != nil {
			if rec, recErr := recordIO(req.NodeID, attempt, req.Input, result.Data); recErr == nil {
				r.cfg.ReplayLog.Append(rec)
			}
		}
		if err == nil {
			return result, nil, graph.ErrorAction{Kind: graph.ActionPropagate}
		}

		action := r.chain.OnError(ctx, err, req)
		switch action.Kind {
		case graph.ActionRetry:
			if attempt >= r.cfg.Backoff.MaxAttempts-1 || !grapherr.IsTransient(err) {
				r.emitVersioned(ctx, runID, eventbus.TypeNodeFailed, runID, map[string]any{"nodeId": req.NodeID, "error": err.Error()}, ec, nextVersion())
				return graph.NodeResult{}, err, graph.ErrorAction{Kind: graph.ActionPropagate}
			}
			r.emitVersioned(ctx, runID, eventbus.TypeNodeFailed, runID, map[string]any{"nodeId": req.NodeID, "error": err.Error(), "willRetry": true}, ec, nextVersion())
			delay := computeBackoff(attempt, r.cfg.Backoff.BaseDelay, r.cfg.Backoff.MaxDelay, r.rng)
			attempt++
			select {
			case <-ctx.Done():
				return graph.NodeResult{}, ctx.Err(), graph.ErrorAction{Kind: graph.ActionPropagate}
			case <-time.After(delay):
			}
			continue
		case graph.ActionSkip:
			return graph.NodeResult{}, nil, action
		case graph.ActionContinue:
			return graph.NodeResult{}, nil, action
		default:
			r.emitVersioned(ctx, runID, eventbus.TypeNodeFailed, runID, map[string]any{"nodeId": req.NodeID, "error": err.Error()}, ec, nextVersion())
			return graph.NodeResult{}, err, graph.ErrorAction{Kind: graph.ActionPropagate}
		}
	}
}

func (r *Runner) timeoutInvoker(node graph.Node) graph.NodeInvoker {
	if r.cfg.PerNodeTimeout <= 0 {
		return node.Run
	}
	return func(ctx context.Context, nc graph.NodeContext) (graph.NodeResult, error) {
		ctx, cancel := context.WithTimeout(ctx, r.cfg.PerNodeTimeout)
		defer cancel()
		result, err := node.Run(ctx, nc)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return graph.NodeResult{}, grapherr.TimeoutError(node.ID(), "node exceeded its per-node timeout")
		}
		return result, err
	}
}

// pauseRun assembles the HITL interaction/request for a pause signal,
// persists the durable WAITING_FOR_HUMAN checkpoint (which MUST complete
// before the runner returns, §4.5), and returns the PAUSED report.
func (r *Runner) pauseRun(ctx context.Context, g *graph.Graph, runID, nodeID string, invocationIndex int, state map[string]any, ec execctx.ExecutionContext, reports []graph.NodeReport, result graph.NodeResult) (graph.RunReport, error) {
	now := time.Now()
	var expiresAt *time.Time
	if result.PauseTimeoutMs != nil {
		t := now.Add(time.Duration(*result.PauseTimeoutMs) * time.Millisecond)
		expiresAt = &t
	}
	interaction := hitl.Interaction{
		NodeID:        nodeID,
		Prompt:        result.PausePrompt,
		Options:       result.PauseOptions,
		PausedAt:      now,
		ExpiresAt:     expiresAt,
		AllowFreeText: result.PauseAllowFreeText,
	}
	toolCallID := hitl.ToolCallID(runID, nodeID, invocationIndex)
	req := hitl.Request{
		ToolCallID:    toolCallID,
		Prompt:        result.PausePrompt,
		HitlType:      hitlTypeFor(result),
		Options:       result.PauseOptions,
		AllowFreeText: result.PauseAllowFreeText,
		TimeoutMs:     result.PauseTimeoutMs,
		RunID:         runID,
		NodeID:        nodeID,
		GraphID:       g.ID,
		CorrelationID: ec.CorrelationID(),
		UserID:        ec.UserID(),
		TenantID:      ec.TenantID(),
	}
	r.emit(ctx, runID, eventbus.TypeHitlRequested, runID, req, ec)

	cpID := r.saveCheckpoint(ctx, g, runID, nodeID, state, ec, checkpoint.StateWaitingForHuman, &interaction, nil)

	r.emit(ctx, runID, eventbus.TypeGraphPaused, runID, map[string]any{"nodeId": nodeID, "checkpointId": cpID}, ec)

	reports = append(reports, graph.NodeReport{NodeID: nodeID, StartTime: now, Status: graph.StatusPaused})
	return graph.RunReport{
		GraphID:      g.ID,
		RunID:        runID,
		Status:       graph.StatusPaused,
		NodeReports:  reports,
		CheckpointID: cpID,
	}, nil
}

func hitlTypeFor(result graph.NodeResult) hitl.Type {
	switch {
	case len(result.PauseOptions) > 0 && !result.PauseAllowFreeText:
		return hitl.TypeSelection
	case result.PauseAllowFreeText:
		return hitl.TypeInput
	default:
		return hitl.TypeConfirmation
	}
}

// saveCheckpoint is the single path to a durable save; it returns the new
// checkpoint id, or "" when no Store is set or the save fails (the failure
// is logged rather than propagated, since a checkpoint-save failure must
// not corrupt an otherwise-successful run outcome on non-durable
// transitions).
func (r *Runner) saveCheckpoint(ctx context.Context, g *graph.Graph, runID, nodeID string, state map[string]any, ec execctx.ExecutionContext, execState checkpoint.ExecutionState, interaction *hitl.Interaction, response *hitl.Response) string {
	if r.cfg.Store == nil {
		return ""
	}
	cp := checkpoint.Checkpoint{
		ID:                 runid.New(),
		RunID:              runID,
		GraphID:            g.ID,
		CurrentNodeID:      nodeID,
		State:              cloneState(state),
		Context:            ec.ToMap(),
		Timestamp:          time.Now(),
		Execution:          execState,
		PendingInteraction: interaction,
		HumanResponse:      response,
	}
	id, err := r.cfg.Store.Save(ctx, cp)
	if err != nil {
		log.Printf("runner: checkpoint save failed for run %s: %v", runID, err)
		return ""
	}
	if err := checkpoint.Prune(ctx, r.cfg.Store, runID, r.cfg.CheckpointPolicy); err != nil {
		log.Printf("runner: checkpoint prune failed for run %s: %v", runID, err)
	}
	r.emit(ctx, runID, eventbus.TypeCheckpointSaved, runID, map[string]any{"checkpointId": id, "state": string(execState)}, ec)
	return id
}

func (r *Runner) emit(ctx context.Context, runID, eventType, streamID string, payload any, ec execctx.ExecutionContext) {
	r.emitVersioned(ctx, runID, eventType, streamID, payload, ec, 0)
}

func (r *Runner) emitVersioned(ctx context.Context, runID, eventType, streamID string, payload any, ec execctx.ExecutionContext, version int64) {
	if r.cfg.EventBus == nil {
		return
	}
	event := eventbus.Event{
		EventID:   runid.New(),
		EventType: eventType,
		StreamID:  streamID,
		Version:   version,
		Timestamp: time.Now(),
		Metadata: eventbus.Metadata{
			UserID:        ec.UserID(),
			CorrelationID: ec.CorrelationID(),
			TenantID:      ec.TenantID(),
			SourceSystem:  "flowgraph",
		},
		Payload: payload,
	}
	if err := r.cfg.EventBus.Publish(ctx, event); err != nil {
		log.Printf("runner: %v", grapherr.EventStoreError("publish failed for run "+runID+" ("+eventType+")", err))
	}
}

// deriveInput computes the NodeRequest.Input for req's logging/middleware
// visibility; it mirrors but does not replace each node's own internal
// input derivation.
func deriveInput(node graph.Node, nc graph.NodeContext) any {
	switch n := node.(type) {
	case *graph.AgentNode:
		if prev, ok := nc.State["_previous"]; ok {
			return prev
		}
		return nc.State["input"]
	case *graph.ToolNode:
		if n.ParamMapper != nil {
			return n.ParamMapper(nc.State)
		}
		return nc.State
	default:
		return nc.State
	}
}

// nextNodeAfter selects the next node per declaration-order predicate
// matching, honoring result.NextEdges as a candidate restriction.
// Returns "" when no edge fires (terminal).
func nextNodeAfter(g *graph.Graph, currentNode string, result graph.NodeResult, state map[string]any) string {
	edges := g.EdgesFrom(currentNode)
	candidates := edges
	if len(result.NextEdges) > 0 {
		allowed := make(map[string]bool, len(result.NextEdges))
		for _, id := range result.NextEdges {
			allowed[id] = true
		}
		candidates = nil
		for _, e := range edges {
			if allowed[e.To] {
				candidates = append(candidates, e)
			}
		}
	}
	for _, e := range candidates {
		if e.Predicate == nil || e.Predicate(result, state) {
			return e.To
		}
	}
	return ""
}

// applyResult folds a successful NodeResult into state:
// state' = state ∪ { nodeID → data, "_previous" → data }.
func applyResult(state map[string]any, nodeID string, result graph.NodeResult) map[string]any {
	next := cloneState(state)
	next[nodeID] = result.Data
	next["_previous"] = result.Data
	return next
}

// promoteContext merges the whitelisted metadata keys into ec.
func promoteContext(ec execctx.ExecutionContext, metadata map[string]any) execctx.ExecutionContext {
	if len(metadata) == 0 {
		return ec
	}
	promoted := make(map[string]any)
	for _, key := range execctx.PromotableKeys {
		if v, ok := metadata[key]; ok {
			promoted[key] = v
		}
	}
	return ec.PlusAll(promoted)
}

func countReports(reports []graph.NodeReport, nodeID string) int {
	count := 0
	for _, r := range reports {
		if r.NodeID == nodeID {
			count++
		}
	}
	return count
}

func cloneState(state map[string]any) map[string]any {
	next := make(map[string]any, len(state))
	for k, v := range state {
		next[k] = v
	}
	return next
}

// stateHash computes a deterministic hash of state for runtime cycle
// detection: two visits of the same node are only a cycle if
// their state hashes also match.
func stateHash(state map[string]any) string {
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]any, len(state))
	for _, k := range keys {
		ordered[k] = state[k]
	}
	encoded, err := json.Marshal(ordered)
	if err != nil {
		// Non-serializable state can't be hashed meaningfully; fall back to a
		// pointer-insensitive marker so the loop detector never panics.
		encoded = []byte(runid.New())
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}
