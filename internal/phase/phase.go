// Package phase defines the bead lifecycle phases and the fixed graph of
// legal transitions between them.
//
// A bead progresses through up to eight phases, from initial brainstorming
// to done. The phase value is stored as a string on the bead (via tracker
// state) and redundantly as a header line in its markdown artifacts, so
// parsing must be tolerant of unknown values.
package phase

// Phase represents a single stage in the bead lifecycle.
type Phase string

const (
	Brainstorm         Phase = "brainstorm"
	BrainstormReviewed Phase = "brainstorm-reviewed"
	Strategized        Phase = "strategized"
	Planned            Phase = "planned"
	PlanReviewed       Phase = "plan-reviewed"
	Executing          Phase = "executing"
	Shipping           Phase = "shipping"
	Done               Phase = "done"
)

// All lists every phase in lifecycle order.
var All = []Phase{
	Brainstorm,
	BrainstormReviewed,
	Strategized,
	Planned,
	PlanReviewed,
	Executing,
	Shipping,
	Done,
}

// IsValid checks if the phase value is one of the defined lifecycle phases.
func (p Phase) IsValid() bool {
	switch p {
	case Brainstorm, BrainstormReviewed, Strategized, Planned,
		PlanReviewed, Executing, Shipping, Done:
		return true
	}
	return false
}

// Ordinal returns the position of the phase in lifecycle order (0-7).
// Unknown phases return -1.
func (p Phase) Ordinal() int {
	for i, candidate := range All {
		if p == candidate {
			return i
		}
	}
	return -1
}

// Parse converts a raw string into a Phase. The second return value reports
// whether the input named a known phase. Empty input is not a phase.
func Parse(s string) (Phase, bool) {
	p := Phase(s)
	if p.IsValid() {
		return p, true
	}
	return "", false
}
