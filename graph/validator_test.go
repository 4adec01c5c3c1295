package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textNode(id string) *OutputNode {
	return &OutputNode{NodeID: id, Selector: func(nc NodeContext) (any, error) { return nc.State["_previous"], nil }}
}

func fnNode(id string) Func {
	return Func{NodeID: id, Fn: func(ctx context.Context, nc NodeContext) (NodeResult, error) {
		return NewNodeResult(id, nil)
	}}
}

func TestValidate_MissingEntryPoint(t *testing.T) {
	g := &Graph{ID: "g1", nodes: map[string]Node{"a": fnNode("a")}}
	err := Validate(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry point")
}

func TestValidate_UnknownEdgeEndpoint(t *testing.T) {
	g := &Graph{
		ID:         "g1",
		nodes:      map[string]Node{"a": fnNode("a")},
		edges:      []Edge{{From: "a", To: "ghost"}},
		entryPoint: "a",
	}
	err := Validate(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNKNOWN_EDGE_ENDPOINT")
}

func TestValidate_OutputNodeNotTerminal(t *testing.T) {
	out := textNode("out")
	g := &Graph{
		ID:         "g1",
		nodes:      map[string]Node{"out": out, "b": fnNode("b")},
		edges:      []Edge{{From: "out", To: "b"}},
		entryPoint: "out",
	}
	err := Validate(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OUTPUT_NODE_NOT_TERMINAL")
}

func TestValidate_UnreachableNodes(t *testing.T) {
	g := &Graph{
		ID: "g1",
		nodes: map[string]Node{
			"a":       fnNode("a"),
			"orphan":  fnNode("orphan"),
		},
		entryPoint: "a",
	}
	err := Validate(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNREACHABLE_NODES")
}

func TestValidate_UnconditionalCycleRejected(t *testing.T) {
	g := &Graph{
		ID: "g1",
		nodes: map[string]Node{
			"a": fnNode("a"),
			"b": fnNode("b"),
		},
		edges: []Edge{
			{From: "a", To: "b"},
			{From: "b", To: "a"},
		},
		entryPoint: "a",
	}
	err := Validate(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CYCLE_DETECTED")
}

func TestValidate_ConditionalCycleAllowed(t *testing.T) {
	g := &Graph{
		ID: "g1",
		nodes: map[string]Node{
			"a": fnNode("a"),
			"b": fnNode("b"),
		},
		edges: []Edge{
			{From: "a", To: "b"},
			{From: "b", To: "a", Predicate: func(r NodeResult, s map[string]any) bool { return false }},
		},
		entryPoint: "a",
	}
	assert.NoError(t, Validate(g))
}

func TestValidate_ValidGraphPasses(t *testing.T) {
	a := fnNode("a")
	out := textNode("out")
	g := &Graph{
		ID:         "g1",
		nodes:      map[string]Node{"a": a, "out": out},
		edges:      []Edge{{From: "a", To: "out"}},
		entryPoint: "a",
	}
	assert.NoError(t, Validate(g))
}

func TestGraphBuilder_DuplicateNodeID(t *testing.T) {
	b := NewBuilder("g1")
	b.AddNode(fnNode("a")).AddNode(fnNode("a"))
	_, err := b.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DUPLICATE_NODE_ID")
}

func TestGraphBuilder_DefaultsEntryPointToFirstNode(t *testing.T) {
	b := NewBuilder("g1")
	b.AddNode(fnNode("a")).AddNode(textNode("out")).AddEdge(Edge{From: "a", To: "out"})
	g, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, "a", g.EntryPoint())
}
