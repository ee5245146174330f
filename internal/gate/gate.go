// Package gate implements the phase-transition enforcement engine. It
// combines the fail-open phase store, the artifact header fallback, the
// transition graph, and review staleness into a single tiered decision:
// hard gates block, soft gates warn, and everything else passes through.
//
// Two postures exist. Legacy mode (the default) never surfaces a failure
// to the caller; every internal error degrades to a safe pass and the
// detail goes to telemetry. Strict mode collapses hard-tier errors into
// exactly one of two outcomes: block with a reason, or skip with an
// audit note.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/steveyegge/gait/internal/artifact"
	"github.com/steveyegge/gait/internal/config"
	"github.com/steveyegge/gait/internal/phase"
	"github.com/steveyegge/gait/internal/repo"
	"github.com/steveyegge/gait/internal/sideband"
	"github.com/steveyegge/gait/internal/telemetry"
	"github.com/steveyegge/gait/internal/tracker"
)

// Gate decisions recorded in gate_enforce events.
const (
	DecisionBypass     = "bypass"
	DecisionPass       = "pass"
	DecisionPassNoGate = "pass-no-gate"
	DecisionWarn       = "warn"
	DecisionWarnStale  = "warn-stale"
	DecisionSkip       = "skip"
	DecisionBlock      = "block"
)

// Verdict is the outcome of an enforcement decision. Message is only set
// when there is something to tell the user (a warning or a block reason).
type Verdict struct {
	Proceed  bool
	Decision string
	Message  string
}

// DependencyProbe checks whether the sideband dependency is loadable.
// A nil return means available. Errors created with classify carry an
// ErrorClass; anything else is treated as transient.
type DependencyProbe func() error

type classifiedError struct {
	class  ErrorClass
	reason string
}

func (e *classifiedError) Error() string {
	return fmt.Sprintf("%s (%s)", e.reason, e.class)
}

func classify(class ErrorClass, reason string) error {
	return &classifiedError{class: class, reason: reason}
}

// EngineConfig wires an Engine's collaborators.
type EngineConfig struct {
	Config    *config.Config
	Tracker   tracker.Tracker
	Repo      repo.Repository
	Log       telemetry.Logger
	Publisher *sideband.Publisher

	// Probe overrides the default sideband availability check. Tests use
	// this to exercise the strict-mode retry path.
	Probe DependencyProbe
}

// Engine is the top-level gate decision maker.
type Engine struct {
	cfg       *config.Config
	tracker   tracker.Tracker
	store     *PhaseStore
	graph     *phase.Graph
	repo      repo.Repository
	log       telemetry.Logger
	publisher *sideband.Publisher
	probe     DependencyProbe
}

// NewEngine constructs an engine from its collaborators. Config, Tracker
// and Repo are required; a nil Log becomes a no-op sink and a nil Probe
// defaults to checking the publisher's structured channel.
func NewEngine(ec EngineConfig) *Engine {
	log := ec.Log
	if log == nil {
		log = telemetry.Nop{}
	}
	e := &Engine{
		cfg:       ec.Config,
		tracker:   ec.Tracker,
		store:     NewPhaseStore(ec.Tracker, log),
		graph:     phase.NewGraph(),
		repo:      ec.Repo,
		log:       log,
		publisher: ec.Publisher,
		probe:     ec.Probe,
	}
	if e.probe == nil {
		e.probe = func() error {
			if !e.publisher.Available() {
				return classify(ClassTransient, ReasonDependencyUnavailable)
			}
			return nil
		}
	}
	return e
}

// Store exposes the engine's phase store for callers that only need
// bookkeeping reads.
func (e *Engine) Store() *PhaseStore {
	return e.store
}

// NextPhases returns the phases the engine's graph allows from current.
func (e *Engine) NextPhases(current phase.Phase) []phase.Phase {
	return e.graph.NextPhases(current)
}

// GetPhaseWithFallback resolves a bead's current phase. The tracker state
// is primary; the artifact header is the fallback when the store has
// nothing. When both are present and disagree the store wins and a
// phase_desync event records the disagreement.
func (e *Engine) GetPhaseWithFallback(ctx context.Context, id, artifactPath string) phase.Phase {
	stored := e.store.GetPhase(ctx, id)
	if artifactPath == "" {
		return stored
	}
	fromHeader := artifact.ReadHeader(e.repo, artifactPath)
	if stored == "" {
		return fromHeader
	}
	if fromHeader != "" && fromHeader != stored {
		e.log.Record(telemetry.NewPhaseDesync(id, string(stored), string(fromHeader), artifactPath))
	}
	return stored
}

// CheckTransition tests whether moving the bead to target is legal from
// its current phase. Missing inputs pass trivially. Every call emits a
// gate_check event with the decision.
func (e *Engine) CheckTransition(ctx context.Context, id string, target phase.Phase, artifactPath string) bool {
	if id == "" || target == "" {
		e.log.Record(telemetry.NewGateCheck(id, "", string(target), true))
		return true
	}
	current := e.GetPhaseWithFallback(ctx, id, artifactPath)
	valid := e.graph.IsValidTransition(current, target)
	e.log.Record(telemetry.NewGateCheck(id, string(current), string(target), valid))
	return valid
}

// checkDependency runs the strict-mode sideband availability probe with
// bounded retry. Only transient classifications retry; a permanent
// classification aborts immediately.
func (e *Engine) checkDependency() (ErrorClass, string, bool) {
	attempts := e.cfg.DependencyRetries
	if attempts < 1 {
		attempts = 1
	}
	op := func() error {
		err := e.probe()
		if err == nil {
			return nil
		}
		var ce *classifiedError
		if errors.As(err, &ce) && ce.class == ClassPermanent {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), uint64(attempts-1))
	err := backoff.Retry(op, b)
	if err == nil {
		return "", "", true
	}
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.class, ce.reason, false
	}
	return ClassTransient, ReasonDependencyUnavailable, false
}

// strictFailOrSkip is the one place strict mode changes an outcome. With
// an override token it records an audited skip and proceeds; without one
// it blocks and names the error class and reason.
func (e *Engine) strictFailOrSkip(ctx context.Context, id string, target phase.Phase, class ErrorClass, reason string) *Verdict {
	if e.cfg.SkipReason != "" {
		note := fmt.Sprintf("gait: audited strict-mode skip on %s -> %s (%s/%s): %s",
			id, target, class, reason, e.cfg.SkipReason)
		ev := telemetry.NewGateEnforce(id, string(target), DecisionSkip, reason)
		if err := e.tracker.AppendNote(ctx, id, note); err != nil {
			ev.Data = map[string]any{"audit_error": err.Error()}
		}
		e.log.Record(ev)
		return &Verdict{Proceed: true, Decision: DecisionSkip}
	}
	e.log.Record(telemetry.NewGateEnforce(id, string(target), DecisionBlock, reason))
	return &Verdict{
		Proceed:  false,
		Decision: DecisionBlock,
		Message: fmt.Sprintf("strict mode: %s (%s). Set skip_reason in .beads/gait.yaml to record an audited skip.",
			reason, class),
	}
}

// EnforceGate is the top-level precondition check for a phase transition.
// Callers run it before AdvancePhase; it never mutates phase state itself.
func (e *Engine) EnforceGate(ctx context.Context, id string, target phase.Phase, artifactPath string) *Verdict {
	if e.cfg.GatesDisabled() {
		e.log.Record(telemetry.NewGateEnforce(id, string(target), DecisionBypass, "gates disabled"))
		return &Verdict{Proceed: true, Decision: DecisionBypass}
	}
	if id == "" || target == "" {
		e.log.Record(telemetry.NewGateEnforce(id, string(target), DecisionPass, "missing inputs"))
		return &Verdict{Proceed: true, Decision: DecisionPass}
	}

	tier, class, reason := ResolveTier(ctx, e.tracker, id)
	if reason != "" && reason != ReasonMissingID {
		// Unresolvable tier: strict mode treats it as possibly hard,
		// legacy mode downgrades to no gate.
		if e.cfg.StrictMode {
			return e.strictFailOrSkip(ctx, id, target, class, reason)
		}
		tier = TierNone
	}
	if tier == TierNone {
		e.log.Record(telemetry.NewGateEnforce(id, string(target), DecisionPassNoGate, ""))
		return &Verdict{Proceed: true, Decision: DecisionPassNoGate}
	}

	if e.cfg.StrictMode && tier == TierHard {
		if depClass, depReason, ok := e.checkDependency(); !ok {
			return e.strictFailOrSkip(ctx, id, target, depClass, depReason)
		}
	}

	if e.CheckTransition(ctx, id, target, artifactPath) {
		e.log.Record(telemetry.NewGateEnforce(id, string(target), DecisionPass, ""))
		return &Verdict{Proceed: true, Decision: DecisionPass}
	}

	staleness := CheckStaleness(e.repo, id, artifactPath)
	if e.cfg.StrictMode && staleness.Status == StalenessUnknown && staleness.Class != "" {
		return e.strictFailOrSkip(ctx, id, target, staleness.Class, staleness.Reason)
	}

	switch tier {
	case TierHard:
		if e.cfg.SkipReason != "" {
			note := fmt.Sprintf("gait: gate override on %s -> %s: %s", id, target, e.cfg.SkipReason)
			ev := telemetry.NewGateEnforce(id, string(target), DecisionSkip, e.cfg.SkipReason)
			if err := e.tracker.AppendNote(ctx, id, note); err != nil {
				ev.Data = map[string]any{"audit_error": err.Error()}
			}
			e.log.Record(ev)
			return &Verdict{Proceed: true, Decision: DecisionSkip}
		}
		if staleness.Status == StalenessStale {
			// A stale review is a soft signal even at hard tier.
			e.log.Record(telemetry.NewGateEnforce(id, string(target), DecisionWarnStale, ""))
			return &Verdict{
				Proceed:  true,
				Decision: DecisionWarnStale,
				Message:  fmt.Sprintf("warning: review for %s predates later changes to %s", id, artifactPath),
			}
		}
		e.log.Record(telemetry.NewGateEnforce(id, string(target), DecisionBlock, "invalid transition"))
		return &Verdict{
			Proceed:  false,
			Decision: DecisionBlock,
			Message: fmt.Sprintf("transition to %s is not valid for %s. Set skip_reason in .beads/gait.yaml to record an audited skip, or GAIT_DISABLE_GATES=1 to bypass gates entirely.",
				target, id),
		}
	default: // TierSoft
		msg := fmt.Sprintf("warning: transition to %s is not valid for %s; proceeding anyway", target, id)
		if staleness.Status == StalenessStale {
			msg += " (review is also stale)"
		}
		e.log.Record(telemetry.NewGateEnforce(id, string(target), DecisionWarn, ""))
		return &Verdict{Proceed: true, Decision: DecisionWarn, Message: msg}
	}
}

// AdvancePhase records a new phase for a bead. It writes the store,
// updates the artifact header when a path is given, emits a phase_advance
// event, and publishes sideband context. It deliberately does not run
// EnforceGate; checking and acting are separate so callers choose when
// to gate.
func (e *Engine) AdvancePhase(ctx context.Context, id string, target phase.Phase, reason, artifactPath string) {
	if id == "" || target == "" {
		return
	}
	e.store.SetPhase(ctx, id, target, reason)
	if artifactPath != "" {
		// Best-effort; WriteHeader already no-ops outside the allow-list.
		_ = artifact.WriteHeader(e.repo, artifactPath, target, time.Now())
	}
	e.log.Record(telemetry.NewPhaseAdvance(id, string(target), reason))
	e.publisher.Publish(id, string(target), reason)
}
