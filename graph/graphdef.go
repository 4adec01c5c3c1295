package graph

// Graph is the immutable, validated workflow definition. It is only
// ever produced by GraphBuilder.Build, which runs the validator first.
type Graph struct {
	ID         string
	nodes      map[string]Node
	edges      []Edge
	entryPoint string
	middleware []Middleware
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns the graph's nodes keyed by id, order unspecified.
func (g *Graph) Nodes() map[string]Node { return g.nodes }

// EntryPoint is the id of the node where forward execution begins.
func (g *Graph) EntryPoint() string { return g.entryPoint }

// Edges returns the declared edges, in declaration order (edge selection
// relies on this order, §3.3).
func (g *Graph) Edges() []Edge { return g.edges }

// EdgesFrom returns the edges whose From matches nodeID, in declaration
// order.
func (g *Graph) EdgesFrom(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Middleware returns the graph's configured middleware chain, outermost
// first.
func (g *Graph) Middleware() []Middleware { return g.middleware }
