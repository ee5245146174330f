package phase

// Transition is an ordered (from, to) pair. An empty From denotes first
// touch: the bead has no recorded phase yet.
type Transition struct {
	From Phase
	To   Phase
}

// Graph answers validity queries against the fixed set of legal transitions.
// It is a pure lookup table with no failure modes; construct one with
// NewGraph and share it freely.
type Graph struct {
	edges map[Transition]bool
}

// legalTransitions is the complete edge set. The graph is not linear:
// forward steps may skip review phases, and the terminal phases (shipping,
// done) cycle back to early phases for follow-up iterations.
var legalTransitions = []Transition{
	// Entry points: a bead with no recorded phase may land anywhere
	// pre-review. Review and terminal phases require history.
	{"", Brainstorm},
	{"", Strategized},
	{"", Planned},
	{"", Executing},

	// Forward steps.
	{Brainstorm, BrainstormReviewed},
	{Brainstorm, Strategized}, // review is optional
	{BrainstormReviewed, Strategized},
	{Strategized, Planned},
	{Planned, PlanReviewed},
	{Planned, Executing}, // review is optional
	{PlanReviewed, Executing},
	{Executing, Shipping},
	{Shipping, Done},

	// Re-entry: shipped or done beads cycle back for follow-up work.
	{Shipping, Brainstorm},
	{Shipping, Strategized},
	{Done, Brainstorm},
	{Done, Strategized},
	{Done, Planned},
}

// NewGraph builds the transition graph from the fixed edge set.
func NewGraph() *Graph {
	edges := make(map[Transition]bool, len(legalTransitions))
	for _, t := range legalTransitions {
		edges[t] = true
	}
	return &Graph{edges: edges}
}

// IsValidTransition reports whether moving from `from` to `to` is legal.
// Lookup is exact-match: there is no wildcard or prefix matching. An empty
// `to` is always invalid.
func (g *Graph) IsValidTransition(from, to Phase) bool {
	if to == "" {
		return false
	}
	return g.edges[Transition{From: from, To: to}]
}

// NextPhases returns the phases legally reachable from `from`, in phase
// order. Pass an empty Phase for the entry edges.
func (g *Graph) NextPhases(from Phase) []Phase {
	var next []Phase
	for _, p := range All {
		if g.edges[Transition{From: from, To: p}] {
			next = append(next, p)
		}
	}
	return next
}

// EntryPhases returns the phases reachable on first touch (empty from).
func (g *Graph) EntryPhases() []Phase {
	var entries []Phase
	for _, p := range All {
		if g.edges[Transition{From: "", To: p}] {
			entries = append(entries, p)
		}
	}
	return entries
}
