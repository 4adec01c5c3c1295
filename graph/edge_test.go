package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEdge_Conditional(t *testing.T) {
	unconditional := Edge{From: "a", To: "b"}
	conditional := Edge{From: "a", To: "c", Predicate: Always}

	assert.False(t, unconditional.Conditional())
	assert.True(t, conditional.Conditional())
}

// TestGraph_EdgeSelectionIsDeterministic verifies property 4: given an
// identical NodeResult and graph, the selected next node is always the
// first edge (in declaration order) whose predicate matches.
func TestGraph_EdgeSelectionIsDeterministic(t *testing.T) {
	alwaysFalse := func(NodeResult, map[string]any) bool { return false }
	alwaysTrue := func(NodeResult, map[string]any) bool { return true }

	g := &Graph{
		ID:    "g1",
		nodes: map[string]Node{"a": fnNode("a"), "b": fnNode("b"), "c": fnNode("c")},
		edges: []Edge{
			{From: "a", To: "b", Predicate: alwaysFalse},
			{From: "a", To: "c", Predicate: alwaysTrue},
			{From: "a", To: "b", Predicate: alwaysTrue}, // would also match, but "c" is declared first
		},
		entryPoint: "a",
	}

	result := NodeResult{Data: "x"}
	for i := 0; i < 10; i++ {
		var selected string
		for _, e := range g.EdgesFrom("a") {
			if e.Predicate == nil || e.Predicate(result, nil) {
				selected = e.To
				break
			}
		}
		assert.Equal(t, "c", selected)
	}
}

func TestGraph_EdgesFrom_PreservesDeclarationOrder(t *testing.T) {
	g := &Graph{
		edges: []Edge{
			{From: "a", To: "x"},
			{From: "b", To: "y"},
			{From: "a", To: "z"},
		},
	}
	edges := g.EdgesFrom("a")
	assert.Equal(t, []string{"x", "z"}, []string{edges[0].To, edges[1].To})
}
