package runner

import (
	"fmt"
	"sync"
	"time"
)

// ModelPricing is the USD-per-million-token rate for one model's input and
// output tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// defaultModelPricing is a small static pricing table covering the
// providers an AgentNode is most likely fronted by. Callers extend or
// override it per model via CostTracker.SetCustomPricing.
var defaultModelPricing = map[string]ModelPricing{
	"gpt-4o":                     {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":                {InputPer1M: 0.15, OutputPer1M: 0.60},
	"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-opus":              {InputPer1M: 15.00, OutputPer1M: 75.00},
	"gemini-1.5-pro":             {InputPer1M: 1.25, OutputPer1M: 5.00},
}

// LLMCall records one priced agent invocation.
type LLMCall struct {
	NodeID       string
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         float64
	Timestamp    time.Time
}

// CostTracker accumulates per-model token usage and USD cost across a run's
// AgentNode executions. It is fed by NodeResult.Metadata["model"],
// ["tokens_in"], and ["tokens_out"] whenever an agent reports them; agents
// that don't report usage simply leave the tracker untouched.
type CostTracker struct {
	mu       sync.Mutex
	runID    string
	currency string
	pricing  map[string]ModelPricing
	calls    []LLMCall
	byModel  map[string]float64
	disabled bool
}

// NewCostTracker creates a tracker scoped to runID, reporting cost in
// currency (informational only; all arithmetic is plain USD-equivalent
// floats).
func NewCostTracker(runID, currency string) *CostTracker {
	pricing := make(map[string]ModelPricing, len(defaultModelPricing))
	for k, v := range defaultModelPricing {
		pricing[k] = v
	}
	return &CostTracker{
		runID:    runID,
		currency: currency,
		pricing:  pricing,
		byModel:  make(map[string]float64),
	}
}

// SetCustomPricing overrides or adds pricing for model.
func (ct *CostTracker) SetCustomPricing(model string, inputPer1M, outputPer1M float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.pricing[model] = ModelPricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
}

// Disable stops RecordLLMCall from accumulating further calls.
func (ct *CostTracker) Disable() { ct.mu.Lock(); ct.disabled = true; ct.mu.Unlock() }

// Enable resumes accumulation after Disable.
func (ct *CostTracker) Enable() { ct.mu.Lock(); ct.disabled = false; ct.mu.Unlock() }

// RecordLLMCall prices one call against the tracker's pricing table and
// accumulates it. Unknown models are recorded at zero cost rather than
// rejected, since cost tracking must never fail a run.
func (ct *CostTracker) RecordLLMCall(nodeID, model string, inputTokens, outputTokens int) LLMCall {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	call := LLMCall{NodeID: nodeID, Model: model, InputTokens: inputTokens, OutputTokens: outputTokens, Timestamp: time.Now()}
	if ct.disabled {
		return call
	}
	if price, ok := ct.pricing[model]; ok {
		call.Cost = float64(inputTokens)/1_000_000*price.InputPer1M + float64(outputTokens)/1_000_000*price.OutputPer1M
	}
	ct.calls = append(ct.calls, call)
	ct.byModel[model] += call.Cost
	return call
}

// GetTotalCost sums every recorded call's cost.
func (ct *CostTracker) GetTotalCost() float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	var total float64
	for _, c := range ct.byModel {
		total += c
	}
	return total
}

// GetCostByModel returns a snapshot of accumulated cost per model.
func (ct *CostTracker) GetCostByModel() map[string]float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	out := make(map[string]float64, len(ct.byModel))
	for k, v := range ct.byModel {
		out[k] = v
	}
	return out
}

// GetCallHistory returns every recorded call in order.
func (ct *CostTracker) GetCallHistory() []LLMCall {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	out := make([]LLMCall, len(ct.calls))
	copy(out, ct.calls)
	return out
}

func (ct *CostTracker) String() string {
	return fmt.Sprintf("CostTracker(run=%s, total=%.4f %s, calls=%d)", ct.runID, ct.GetTotalCost(), ct.currency, len(ct.GetCallHistory()))
}

// recordCostFromMetadata inspects a NodeResult's metadata for the reserved
// tokens_in/tokens_out/model keys and, if present, feeds the tracker.
func recordCostFromMetadata(tracker *CostTracker, nodeID string, metadata map[string]any) {
	if tracker == nil || metadata == nil {
		return
	}
	model, _ := metadata["model"].(string)
	if model == "" {
		return
	}
	in := toInt(metadata["tokens_in"])
	out := toInt(metadata["tokens_out"])
	if in == 0 && out == 0 {
		return
	}
	tracker.RecordLLMCall(nodeID, model, in, out)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
