package graph

// Predicate decides whether an Edge should fire, given the NodeResult
// produced by the edge's source node and the run's current state.
type Predicate func(result NodeResult, state map[string]any) bool

// Edge connects From to To. A nil Predicate is an unconditional edge. When
// an Edge's From node names NextEdges explicitly in its NodeResult, the
// router restricts its candidate set to edges whose To is in that list
// before evaluating Predicate.
type Edge struct {
	From      string
	To        string
	Predicate Predicate
}

// Conditional reports whether e carries a routing predicate. The cycle
// validator treats conditional edges as permitted cycle members.
func (e Edge) Conditional() bool { return e.Predicate != nil }

// Always is a Predicate that matches every result. An edge that carries it
// still has a non-nil Predicate, so Conditional reports true for it and the
// cycle validator treats it as a permitted cycle member; use a nil Predicate
// for an unconditional edge.
func Always(NodeResult, map[string]any) bool { return true }
