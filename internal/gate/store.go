package gate

import (
	"context"

	"github.com/steveyegge/gait/internal/phase"
	"github.com/steveyegge/gait/internal/telemetry"
	"github.com/steveyegge/gait/internal/tracker"
)

// PhaseStore is the primary persistence layer for a bead's phase. It
// fails open on every path: a tracker outage must never turn a phase
// bookkeeping write into a visible failure for the caller. The detail
// lives in telemetry only.
type PhaseStore struct {
	state *tracker.StateView
	log   telemetry.Logger
}

// NewPhaseStore wraps a tracker in the fail-open phase store.
func NewPhaseStore(t tracker.Tracker, log telemetry.Logger) *PhaseStore {
	if log == nil {
		log = telemetry.Nop{}
	}
	return &PhaseStore{state: tracker.NewStateView(t), log: log}
}

// SetPhase records the phase for a bead. Tracker errors are swallowed;
// successful and attempted writes alike emit a phase_transition event.
func (s *PhaseStore) SetPhase(ctx context.Context, id string, p phase.Phase, reason string) {
	if id == "" || p == "" {
		return
	}
	ev := telemetry.NewPhaseTransition(id, string(p), reason)
	if err := s.state.SetPhase(ctx, id, string(p)); err != nil {
		ev.Data = map[string]any{"error": err.Error()}
	}
	s.log.Record(ev)
}

// GetPhase reads the recorded phase for a bead. Empty means unset or
// unreadable; callers must not distinguish the two.
func (s *PhaseStore) GetPhase(ctx context.Context, id string) phase.Phase {
	p, _ := s.readPhase(ctx, id)
	return p
}

// readPhase keeps the unset and error cases distinct for tests and
// internal callers. GetPhase collapses them at the public boundary.
func (s *PhaseStore) readPhase(ctx context.Context, id string) (phase.Phase, error) {
	if id == "" {
		return "", nil
	}
	raw, err := s.state.Phase(ctx, id)
	if err != nil {
		return "", err
	}
	p, ok := phase.Parse(raw)
	if !ok {
		return "", nil
	}
	return p, nil
}
