package graph

import "github.com/flowgraph/flowgraph/runid"

// GraphBuilder collects nodes, edges, and middleware before producing an
// immutable, validated Graph.
type GraphBuilder struct {
	id         string
	added      []Node // raw declaration order, duplicates kept for validation
	edges      []Edge
	entryPoint string
	middleware []Middleware
}

// NewBuilder starts a GraphBuilder. A graph id is generated if id is empty.
func NewBuilder(id string) *GraphBuilder {
	if id == "" {
		id = runid.New()
	}
	return &GraphBuilder{id: id}
}

// AddNode registers n. Adding a second node under an id already used is
// recorded as-is; the validator reports DuplicateNodeId rather than this
// call silently overwriting the first registration.
func (b *GraphBuilder) AddNode(n Node) *GraphBuilder {
	b.added = append(b.added, n)
	return b
}

// AddEdge appends an edge. Declaration order matters for edge selection
//: the first edge whose predicate matches wins.
func (b *GraphBuilder) AddEdge(e Edge) *GraphBuilder {
	b.edges = append(b.edges, e)
	return b
}

// Use appends a middleware to the innermost end of the chain (the chain is
// listed outermost first).
func (b *GraphBuilder) Use(m Middleware) *GraphBuilder {
	b.middleware = append(b.middleware, m)
	return b
}

// EntryPoint sets the entry node id explicitly. If never called, Build
// defaults it to the first node added.
func (b *GraphBuilder) EntryPoint(id string) *GraphBuilder {
	b.entryPoint = id
	return b
}

// Build runs the validator and, on success, returns an immutable Graph.
func (b *GraphBuilder) Build() (*Graph, error) {
	entry := b.entryPoint
	if entry == "" && len(b.added) > 0 {
		entry = b.added[0].ID()
	}

	dupes := duplicateIDs(b.added)
	if len(dupes) > 0 {
		return nil, errDuplicateNodeID(dupes[0])
	}

	nodes := make(map[string]Node, len(b.added))
	for _, n := range b.added {
		nodes[n.ID()] = n
	}

	g := &Graph{
		ID:         b.id,
		nodes:      nodes,
		edges:      append([]Edge(nil), b.edges...),
		entryPoint: entry,
		middleware: append([]Middleware(nil), b.middleware...),
	}

	if err := Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

func duplicateIDs(nodes []Node) []string {
	seen := make(map[string]int, len(nodes))
	var dupes []string
	for _, n := range nodes {
		seen[n.ID()]++
		if seen[n.ID()] == 2 {
			dupes = append(dupes, n.ID())
		}
	}
	return dupes
}
