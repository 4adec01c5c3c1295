package graph

import "github.com/flowgraph/flowgraph/grapherr"

// Validate runs the full set of static checks a Graph must satisfy before
// it can be built: a known entry point, no dangling edge endpoints,
// terminal output nodes, full reachability from the entry point, and no
// unconditional cycles. Duplicate node ids are rejected by
// GraphBuilder.Build, not here.
func Validate(g *Graph) error {
	if err := checkEntryPoint(g); err != nil {
		return err
	}
	if err := checkEdgeEndpoints(g); err != nil {
		return err
	}
	if err := checkOutputTerminal(g); err != nil {
		return err
	}
	if err := checkReachability(g); err != nil {
		return err
	}
	if err := checkCycles(g); err != nil {
		return err
	}
	return nil
}

func checkEntryPoint(g *Graph) error {
	if g.entryPoint == "" {
		return errMissingEntryPoint()
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return errMissingEntryPoint()
	}
	return nil
}

func checkEdgeEndpoints(g *Graph) error {
	for _, e := range g.edges {
		if _, ok := g.nodes[e.From]; !ok {
			return errUnknownEdgeEndpoint(e.From, "from")
		}
		if _, ok := g.nodes[e.To]; !ok {
			return errUnknownEdgeEndpoint(e.To, "to")
		}
	}
	return nil
}

func checkOutputTerminal(g *Graph) error {
	for id, n := range g.nodes {
		if _, isOutput := n.(*OutputNode); !isOutput {
			continue
		}
		if len(g.EdgesFrom(id)) > 0 {
			return errOutputNotTerminal(id)
		}
	}
	return nil
}

// checkReachability performs a DFS from entryPoint following every edge
// regardless of predicate, and reports any node never reached.
func checkReachability(g *Graph) error {
	reached := make(map[string]bool, len(g.nodes))
	var stack []string
	stack = append(stack, g.entryPoint)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reached[id] {
			continue
		}
		reached[id] = true
		for _, e := range g.EdgesFrom(id) {
			if !reached[e.To] {
				stack = append(stack, e.To)
			}
		}
	}

	var unreached []string
	for id := range g.nodes {
		if !reached[id] {
			unreached = append(unreached, id)
		}
	}
	if len(unreached) > 0 {
		return errUnreachableNodes(unreached)
	}
	return nil
}

// checkCycles runs a recursion-stack DFS to find cycles, rejecting any cycle
// whose every edge is unconditional (an infinite loop with no way out).
func checkCycles(g *Graph) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		path = append(path, id)

		for _, e := range g.EdgesFrom(id) {
			switch color[e.To] {
			case white:
				if err := visit(e.To); err != nil {
					return err
				}
			case gray:
				cyclePath := cycleSlice(path, e.To)
				if !cycleHasConditionalEdge(g, cyclePath) {
					return errCycleDetected(cyclePath)
				}
			}
		}

		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for id := range g.nodes {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// cycleSlice extracts the portion of path from the first occurrence of
// start through the end, i.e. the cycle itself.
func cycleSlice(path []string, start string) []string {
	for i, id := range path {
		if id == start {
			cycle := append([]string(nil), path[i:]...)
			return append(cycle, start)
		}
	}
	return path
}

func cycleHasConditionalEdge(g *Graph, cyclePath []string) bool {
	for i := 0; i+1 < len(cyclePath); i++ {
		from, to := cyclePath[i], cyclePath[i+1]
		for _, e := range g.EdgesFrom(from) {
			if e.To == to && e.Conditional() {
				return true
			}
		}
	}
	return false
}

func errMissingEntryPoint() error {
	return grapherr.ValidationError("MISSING_ENTRY_POINT", "graph has no valid entry point")
}

func errUnknownEdgeEndpoint(nodeID, side string) error {
	return grapherr.ValidationError("UNKNOWN_EDGE_ENDPOINT", "edge "+side+" references unknown node "+nodeID)
}

func errDuplicateNodeID(id string) error {
	return grapherr.ValidationError("DUPLICATE_NODE_ID", "duplicate node id: "+id)
}

func errOutputNotTerminal(id string) error {
	return grapherr.ValidationError("OUTPUT_NODE_NOT_TERMINAL", "output node "+id+" has outgoing edges")
}

func errUnreachableNodes(ids []string) error {
	msg := "unreachable nodes: "
	for i, id := range ids {
		if i > 0 {
			msg += ", "
		}
		msg += id
	}
	return grapherr.ValidationError("UNREACHABLE_NODES", msg)
}

func errCycleDetected(path []string) error {
	msg := "cycle detected with no conditional edge: "
	for i, id := range path {
		if i > 0 {
			msg += " -> "
		}
		msg += id
	}
	return grapherr.ValidationError("CYCLE_DETECTED", msg)
}
