package tool

import (
	"context"
	"sync"
)

// MockTool is a test implementation of Tool: it returns a configurable
// sequence of responses (or a configured error), tracking every call for
// later assertion. Useful to verify ToolNode/runner behavior without
// exercising real tool logic.
type MockTool struct {
	ToolName  string
	Responses []Result
	Err       error

	mu        sync.Mutex
	Calls     []MockCall
	callIndex int
}

// MockCall records a single invocation of Execute.
type MockCall struct {
	Params map[string]any
	TC     Context
}

func (m *MockTool) Name() string { return m.ToolName }

func (m *MockTool) Execute(_ context.Context, params map[string]any, tc Context) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Params: params, TC: tc})

	if m.Err != nil {
		return Result{Success: false, Error: m.Err, Kind: KindValue}, m.Err
	}

	if len(m.Responses) == 0 {
		return Result{Success: true, Kind: KindValue}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}
