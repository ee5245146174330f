package gate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/gait/internal/config"
	"github.com/steveyegge/gait/internal/phase"
	"github.com/steveyegge/gait/internal/repo"
	"github.com/steveyegge/gait/internal/sideband"
	"github.com/steveyegge/gait/internal/telemetry"
	"github.com/steveyegge/gait/internal/tracker"
)

// stubRepo lets tests control commit history without a real git repo.
type stubRepo struct {
	*repo.FS
	commits    []repo.Commit
	commitsErr error
}

func (s *stubRepo) CommitsSince(path string, since time.Time) ([]repo.Commit, error) {
	return s.commits, s.commitsErr
}

type harness struct {
	mem  *tracker.Memory
	fs   *stubRepo
	capt *telemetry.Capture
	cfg  *config.Config
	eng  *Engine
	root string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("GAIT_DISABLE_GATES", "")

	root := t.TempDir()
	fs, err := repo.NewFS(root)
	require.NoError(t, err)

	h := &harness{
		mem:  tracker.NewMemory(),
		fs:   &stubRepo{FS: fs},
		capt: &telemetry.Capture{},
		cfg:  config.Defaults(),
		root: root,
	}
	h.rebuild(t)
	return h
}

// rebuild recreates the engine after config or probe changes.
func (h *harness) rebuild(t *testing.T) {
	t.Helper()
	h.eng = NewEngine(EngineConfig{
		Config:    h.cfg,
		Tracker:   h.mem,
		Repo:      h.fs,
		Log:       h.capt,
		Publisher: sideband.NewPublisher(h.root, "test", sideband.NewFileEnvelopeWriter(h.root)),
	})
}

func (h *harness) addBead(id string, priority int) {
	h.mem.Add(&tracker.Bead{ID: id, Title: "work on " + id, Status: tracker.StatusOpen, Priority: priority})
}

func (h *harness) setPhase(t *testing.T, id string, p phase.Phase) {
	t.Helper()
	h.eng.Store().SetPhase(context.Background(), id, p, "test setup")
}

func (h *harness) writeFile(t *testing.T, rel, content string) {
	t.Helper()
	abs := filepath.Join(h.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func TestPhaseStoreFailsOpen(t *testing.T) {
	h := newHarness(t)
	h.mem.FailState = true

	// Must not surface the failure; the event still records the attempt.
	h.eng.Store().SetPhase(context.Background(), "gt-1", phase.Planned, "r")

	events := h.capt.ByType(telemetry.EventPhaseTransition)
	require.Len(t, events, 1)
	assert.Equal(t, "gt-1", events[0].Bead)
	assert.Contains(t, events[0].Data["error"], "unavailable")

	assert.Equal(t, phase.Phase(""), h.eng.Store().GetPhase(context.Background(), "gt-1"))
}

func TestPhaseStoreDistinguishesErrorInternally(t *testing.T) {
	h := newHarness(t)

	// Unset: no error.
	p, err := h.eng.Store().readPhase(context.Background(), "gt-1")
	assert.NoError(t, err)
	assert.Empty(t, p)

	// Unreadable: error visible internally, collapsed by GetPhase.
	h.mem.FailState = true
	_, err = h.eng.Store().readPhase(context.Background(), "gt-1")
	assert.Error(t, err)
	assert.Empty(t, h.eng.Store().GetPhase(context.Background(), "gt-1"))
}

func TestGetPhaseWithFallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	plan := "history/plans/gt-1-plan.md"
	h.writeFile(t, plan, "# Plan\n\n**Phase:** strategized (updated 2026-08-01T00:00:00Z)\n")

	// Store empty: header wins.
	assert.Equal(t, phase.Strategized, h.eng.GetPhaseWithFallback(ctx, "gt-1", plan))
	assert.Empty(t, h.capt.ByType(telemetry.EventPhaseDesync))

	// Both set, disagreeing: store wins, desync recorded.
	h.setPhase(t, "gt-1", phase.Planned)
	assert.Equal(t, phase.Planned, h.eng.GetPhaseWithFallback(ctx, "gt-1", plan))

	desyncs := h.capt.ByType(telemetry.EventPhaseDesync)
	require.Len(t, desyncs, 1)
	assert.Equal(t, "planned", desyncs[0].Phase)
	assert.Equal(t, "strategized", desyncs[0].Data["artifact_phase"])
}

func TestCheckTransition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Missing inputs pass trivially.
	assert.True(t, h.eng.CheckTransition(ctx, "", phase.Planned, ""))
	assert.True(t, h.eng.CheckTransition(ctx, "gt-1", "", ""))

	// No recorded phase: entry edges only.
	assert.True(t, h.eng.CheckTransition(ctx, "gt-1", phase.Brainstorm, ""))
	assert.False(t, h.eng.CheckTransition(ctx, "gt-1", phase.Done, ""))

	h.setPhase(t, "gt-1", phase.Executing)
	assert.True(t, h.eng.CheckTransition(ctx, "gt-1", phase.Shipping, ""))
	assert.False(t, h.eng.CheckTransition(ctx, "gt-1", phase.Brainstorm, ""))

	checks := h.capt.ByType(telemetry.EventGateCheck)
	assert.Len(t, checks, 6)
}

func TestResolveTier(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addBead("gt-0", 0)
	h.addBead("gt-1", 1)
	h.addBead("gt-2", 2)
	h.addBead("gt-3", 3)
	h.addBead("gt-4", 4)
	h.addBead("gt-bad", -1)

	for _, tc := range []struct {
		id     string
		tier   Tier
		class  ErrorClass
		reason string
	}{
		{"gt-0", TierHard, "", ""},
		{"gt-1", TierHard, "", ""},
		{"gt-2", TierSoft, "", ""},
		{"gt-3", TierSoft, "", ""},
		{"gt-4", TierNone, "", ""},
		{"gt-bad", TierNone, ClassPermanent, ReasonPriorityMalformed},
		{"", TierNone, "", ReasonMissingID},
	} {
		tier, class, reason := ResolveTier(ctx, h.mem, tc.id)
		assert.Equal(t, tc.tier, tier, tc.id)
		assert.Equal(t, tc.class, class, tc.id)
		assert.Equal(t, tc.reason, reason, tc.id)
	}

	h.mem.FailShow = true
	tier, class, reason := ResolveTier(ctx, h.mem, "gt-0")
	assert.Equal(t, TierNone, tier)
	assert.Equal(t, ClassTransient, class)
	assert.Equal(t, ReasonTrackerUnreachable, reason)
}

func TestEnforceGateHardBlocks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addBead("gt-1", 0)
	h.setPhase(t, "gt-1", phase.Executing)

	v := h.eng.EnforceGate(ctx, "gt-1", phase.Brainstorm, "")
	assert.False(t, v.Proceed)
	assert.Equal(t, DecisionBlock, v.Decision)
	assert.Contains(t, v.Message, "skip_reason")

	enforces := h.capt.ByType(telemetry.EventGateEnforce)
	require.NotEmpty(t, enforces)
	assert.Equal(t, DecisionBlock, enforces[len(enforces)-1].Decision)
}

func TestEnforceGateOverrideSkips(t *testing.T) {
	h := newHarness(t)
	h.cfg.SkipReason = "hotfix, approved by oncall"
	h.rebuild(t)
	ctx := context.Background()
	h.addBead("gt-1", 0)
	h.setPhase(t, "gt-1", phase.Executing)

	v := h.eng.EnforceGate(ctx, "gt-1", phase.Brainstorm, "")
	assert.True(t, v.Proceed)
	assert.Equal(t, DecisionSkip, v.Decision)

	notes := h.mem.Notes("gt-1")
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "hotfix, approved by oncall")
}

func TestEnforceGateSoftWarns(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addBead("gt-1", 2)
	h.setPhase(t, "gt-1", phase.Executing)

	v := h.eng.EnforceGate(ctx, "gt-1", phase.Brainstorm, "")
	assert.True(t, v.Proceed)
	assert.Equal(t, DecisionWarn, v.Decision)
	assert.Contains(t, v.Message, "warning")
}

func TestEnforceGateNoTierPasses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addBead("gt-1", 4)
	h.setPhase(t, "gt-1", phase.Executing)

	v := h.eng.EnforceGate(ctx, "gt-1", phase.Brainstorm, "")
	assert.True(t, v.Proceed)
	assert.Equal(t, DecisionPassNoGate, v.Decision)
	assert.Empty(t, v.Message)
}

func TestEnforceGateValidTransitionPasses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addBead("gt-1", 0)
	h.setPhase(t, "gt-1", phase.Executing)

	v := h.eng.EnforceGate(ctx, "gt-1", phase.Shipping, "")
	assert.True(t, v.Proceed)
	assert.Equal(t, DecisionPass, v.Decision)
}

func TestEnforceGateKillSwitch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addBead("gt-1", 0)
	h.setPhase(t, "gt-1", phase.Executing)

	t.Setenv("GAIT_DISABLE_GATES", "1")
	v := h.eng.EnforceGate(ctx, "gt-1", phase.Brainstorm, "")
	assert.True(t, v.Proceed)
	assert.Equal(t, DecisionBypass, v.Decision)
}

func TestEnforceGateMissingInputs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v := h.eng.EnforceGate(ctx, "", phase.Planned, "")
	assert.True(t, v.Proceed)
	v = h.eng.EnforceGate(ctx, "gt-1", "", "")
	assert.True(t, v.Proceed)
}

func TestEnforceGateLegacyDowngradesTierErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mem.FailShow = true

	v := h.eng.EnforceGate(ctx, "gt-1", phase.Brainstorm, "")
	assert.True(t, v.Proceed)
	assert.Equal(t, DecisionPassNoGate, v.Decision)
}

func TestEnforceGateStrictBlocksTierErrors(t *testing.T) {
	h := newHarness(t)
	h.cfg.StrictMode = true
	h.rebuild(t)
	ctx := context.Background()
	h.mem.FailShow = true

	v := h.eng.EnforceGate(ctx, "gt-1", phase.Brainstorm, "")
	assert.False(t, v.Proceed)
	assert.Equal(t, DecisionBlock, v.Decision)
	assert.Contains(t, v.Message, ReasonTrackerUnreachable)
	assert.Contains(t, v.Message, string(ClassTransient))
}

func TestEnforceGateStrictSkipWithOverride(t *testing.T) {
	h := newHarness(t)
	h.cfg.StrictMode = true
	h.cfg.SkipReason = "tracker maintenance window"
	h.rebuild(t)
	ctx := context.Background()
	h.mem.FailShow = true

	v := h.eng.EnforceGate(ctx, "gt-1", phase.Brainstorm, "")
	assert.True(t, v.Proceed)
	assert.Equal(t, DecisionSkip, v.Decision)

	notes := h.mem.Notes("gt-1")
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], ReasonTrackerUnreachable)
	assert.Contains(t, notes[0], "tracker maintenance window")
}

func TestStrictDependencyRetryTransient(t *testing.T) {
	h := newHarness(t)
	h.cfg.StrictMode = true
	h.cfg.DependencyRetries = 3

	attempts := 0
	h.eng = NewEngine(EngineConfig{
		Config:  h.cfg,
		Tracker: h.mem,
		Repo:    h.fs,
		Log:     h.capt,
		Probe: func() error {
			attempts++
			if attempts < 3 {
				return classify(ClassTransient, ReasonDependencyUnavailable)
			}
			return nil
		},
	})
	ctx := context.Background()
	h.addBead("gt-1", 0)
	h.setPhase(t, "gt-1", phase.Executing)

	// Probe recovers on the third attempt; the valid transition passes.
	v := h.eng.EnforceGate(ctx, "gt-1", phase.Shipping, "")
	assert.True(t, v.Proceed)
	assert.Equal(t, DecisionPass, v.Decision)
	assert.Equal(t, 3, attempts)
}

func TestStrictDependencyPermanentNoRetry(t *testing.T) {
	h := newHarness(t)
	h.cfg.StrictMode = true
	h.cfg.DependencyRetries = 3

	attempts := 0
	h.eng = NewEngine(EngineConfig{
		Config:  h.cfg,
		Tracker: h.mem,
		Repo:    h.fs,
		Log:     h.capt,
		Probe: func() error {
			attempts++
			return classify(ClassPermanent, ReasonDependencyUnavailable)
		},
	})
	ctx := context.Background()
	h.addBead("gt-1", 0)
	h.setPhase(t, "gt-1", phase.Executing)

	v := h.eng.EnforceGate(ctx, "gt-1", phase.Shipping, "")
	assert.False(t, v.Proceed)
	assert.Equal(t, DecisionBlock, v.Decision)
	assert.Equal(t, 1, attempts)
}

func TestStrictDependencyExhaustsRetries(t *testing.T) {
	h := newHarness(t)
	h.cfg.StrictMode = true
	h.cfg.DependencyRetries = 2

	attempts := 0
	h.eng = NewEngine(EngineConfig{
		Config:  h.cfg,
		Tracker: h.mem,
		Repo:    h.fs,
		Log:     h.capt,
		Probe: func() error {
			attempts++
			return errors.New("flaky")
		},
	})
	ctx := context.Background()
	h.addBead("gt-1", 0)

	v := h.eng.EnforceGate(ctx, "gt-1", phase.Brainstorm, "")
	assert.False(t, v.Proceed)
	assert.Contains(t, v.Message, ReasonDependencyUnavailable)
	assert.Equal(t, 2, attempts)
}

func TestCheckStaleness(t *testing.T) {
	h := newHarness(t)
	plan := "history/plans/gt-1-plan.md"
	h.writeFile(t, plan, "# Plan\n")

	// No artifact path.
	assert.Equal(t, StalenessNone, CheckStaleness(h.fs, "gt-1", "").Status)

	// No review record.
	assert.Equal(t, StalenessNone, CheckStaleness(h.fs, "gt-1", plan).Status)

	// Unreadable reviewed-at.
	h.writeFile(t, "history/reviews/gt-1-review.yaml", "bead: gt-1\nreviewed_at: nonsense\n")
	s := CheckStaleness(h.fs, "gt-1", plan)
	assert.Equal(t, StalenessUnknown, s.Status)
	assert.Equal(t, ClassPermanent, s.Class)

	// Valid review, fresh history.
	h.writeFile(t, "history/reviews/gt-1-review.yaml", "bead: gt-1\nreviewed_at: \"2026-08-01T00:00:00Z\"\n")
	assert.Equal(t, StalenessFresh, CheckStaleness(h.fs, "gt-1", plan).Status)

	// Commits after the review.
	h.fs.commits = []repo.Commit{{Hash: "abc", When: time.Now()}}
	assert.Equal(t, StalenessStale, CheckStaleness(h.fs, "gt-1", plan).Status)

	// History query failure.
	h.fs.commits = nil
	h.fs.commitsErr = errors.New("not a repo")
	s = CheckStaleness(h.fs, "gt-1", plan)
	assert.Equal(t, StalenessUnknown, s.Status)
	assert.Equal(t, ClassTransient, s.Class)
}

func TestEnforceGateWarnStale(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addBead("gt-1", 0)
	h.setPhase(t, "gt-1", phase.Executing)

	plan := "history/plans/gt-1-plan.md"
	h.writeFile(t, plan, "# Plan\n")
	h.writeFile(t, "history/reviews/gt-1-review.yaml", "bead: gt-1\nreviewed_at: \"2026-08-01T00:00:00Z\"\n")
	h.fs.commits = []repo.Commit{{Hash: "abc", When: time.Now()}}

	// Invalid hard-tier transition, but the review is stale: warn, not block.
	v := h.eng.EnforceGate(ctx, "gt-1", phase.Brainstorm, plan)
	assert.True(t, v.Proceed)
	assert.Equal(t, DecisionWarnStale, v.Decision)
	assert.Contains(t, v.Message, "predates")
}

func TestEnforceGateStrictUnknownStaleness(t *testing.T) {
	h := newHarness(t)
	h.cfg.StrictMode = true
	h.rebuild(t)
	ctx := context.Background()
	h.addBead("gt-1", 2)
	h.setPhase(t, "gt-1", phase.Executing)

	plan := "history/plans/gt-1-plan.md"
	h.writeFile(t, plan, "# Plan\n")
	h.writeFile(t, "history/reviews/gt-1-review.yaml", "bead: gt-1\nreviewed_at: nonsense\n")

	v := h.eng.EnforceGate(ctx, "gt-1", phase.Brainstorm, plan)
	assert.False(t, v.Proceed)
	assert.Contains(t, v.Message, "reviewed_at_unreadable")
}

func TestAdvancePhase(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	plan := "history/plans/gt-1-plan.md"
	h.writeFile(t, plan, "# Plan for gt-1\n\n**Bead:** gt-1\n")

	h.eng.AdvancePhase(ctx, "gt-1", phase.Executing, "plan approved", plan)

	assert.Equal(t, phase.Executing, h.eng.Store().GetPhase(ctx, "gt-1"))

	content, err := h.fs.ReadFile(plan)
	require.NoError(t, err)
	assert.Contains(t, string(content), "**Phase:** executing")

	advances := h.capt.ByType(telemetry.EventPhaseAdvance)
	require.Len(t, advances, 1)
	assert.Equal(t, "executing", advances[0].Phase)
	assert.Equal(t, "plan approved", advances[0].Reason)

	// Sideband legacy file written as part of the advance.
	_, err = os.Stat(filepath.Join(h.root, ".beads", "gait-status-test.json"))
	assert.NoError(t, err)
}

func TestAdvancePhaseDoesNotGate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addBead("gt-1", 0)
	h.setPhase(t, "gt-1", phase.Executing)

	// Advancing along an edge the gate would reject still writes: the
	// check/act split means callers decide whether to gate first.
	h.eng.AdvancePhase(ctx, "gt-1", phase.Brainstorm, "forced", "")
	assert.Equal(t, phase.Brainstorm, h.eng.Store().GetPhase(ctx, "gt-1"))
}
