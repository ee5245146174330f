// Package discovery ranks actionable beads. A scan merges the open and
// in-progress backlogs, scores each bead on priority, phase progress and
// recency, applies penalties for contested or orphaned work, and infers
// the recommended next action from the bead's phase or its artifacts.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/steveyegge/gait/internal/artifact"
	"github.com/steveyegge/gait/internal/config"
	"github.com/steveyegge/gait/internal/gate"
	"github.com/steveyegge/gait/internal/phase"
	"github.com/steveyegge/gait/internal/repo"
	"github.com/steveyegge/gait/internal/telemetry"
	"github.com/steveyegge/gait/internal/tracker"
)

// ErrUnavailable means the tracker's backing store does not exist here.
// Distinct from a scan error: there is nothing to scan, not a failed scan.
var ErrUnavailable = errors.New("no beads database found")

// Recommended next actions.
const (
	ActionBrainstorm = "brainstorm"
	ActionStrategize = "strategize"
	ActionPlan       = "plan"
	ActionExecute    = "execute"
	ActionContinue   = "continue"
	ActionShip       = "ship"
	ActionClosed     = "closed"
	ActionCreateBead = "create_bead"
)

// Penalty annotations on a ScoreRecord.
const (
	PenaltyClaimedByOther   = "claimed-by-other"
	PenaltyParentEpicClosed = "parent-epic-closed"
)

// ScoreRecord is one ranked candidate. Orphan records have an empty ID and
// always sort after scored beads.
type ScoreRecord struct {
	ID           string   `json:"id,omitempty"`
	Title        string   `json:"title"`
	Priority     int      `json:"priority"`
	Status       string   `json:"status,omitempty"`
	Phase        string   `json:"phase,omitempty"`
	Score        int      `json:"score"`
	Action       string   `json:"action"`
	ArtifactPath string   `json:"artifact_path,omitempty"`
	Stale        bool     `json:"stale,omitempty"`
	Penalties    []string `json:"penalties,omitempty"`
	Orphan       bool     `json:"orphan,omitempty"`
}

// ScannerConfig wires a Scanner's collaborators.
type ScannerConfig struct {
	Config  *config.Config
	Tracker tracker.Tracker
	Repo    repo.Repository
	Store   *gate.PhaseStore
	Log     telemetry.Logger

	// Session identifies this scanner for claim comparisons. A claim held
	// by a different session within the freshness window depresses score.
	Session string

	// Now overrides the clock for tests.
	Now func() time.Time
}

// Scanner computes ranked work recommendations.
type Scanner struct {
	cfg     *config.Config
	tracker tracker.Tracker
	repo    repo.Repository
	store   *gate.PhaseStore
	state   *tracker.StateView
	log     telemetry.Logger
	session string
	now     func() time.Time
}

// NewScanner builds a scanner. Config, Tracker and Repo are required.
func NewScanner(sc ScannerConfig) *Scanner {
	log := sc.Log
	if log == nil {
		log = telemetry.Nop{}
	}
	store := sc.Store
	if store == nil {
		store = gate.NewPhaseStore(sc.Tracker, log)
	}
	now := sc.Now
	if now == nil {
		now = time.Now
	}
	return &Scanner{
		cfg:     sc.Config,
		tracker: sc.Tracker,
		repo:    sc.Repo,
		store:   store,
		state:   tracker.NewStateView(sc.Tracker),
		log:     log,
		session: sc.Session,
		now:     now,
	}
}

// Scan returns the ranked backlog. ErrUnavailable when no backing store
// exists; any other error means the primary open-beads query failed. An
// empty backlog is an empty list, not an error.
func (s *Scanner) Scan(ctx context.Context) ([]*ScoreRecord, error) {
	if !s.storeExists() {
		return nil, ErrUnavailable
	}

	open, err := s.tracker.List(ctx, tracker.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to list open beads: %w", err)
	}
	inProgress, err := s.tracker.List(ctx, tracker.StatusInProgress)
	if err != nil {
		// Secondary query degrades to empty rather than failing the scan.
		inProgress = nil
	}

	seen := make(map[string]bool)
	var candidates []*tracker.Bead
	for _, b := range append(open, inProgress...) {
		if b == nil || b.ID == "" || seen[b.ID] {
			continue
		}
		seen[b.ID] = true
		if s.cfg.LaneFilter != "" && !hasLabel(b, s.cfg.LaneFilter) {
			continue
		}
		candidates = append(candidates, b)
	}

	closedChildren := s.closedEpicChildren(ctx)

	records := make([]*ScoreRecord, 0, len(candidates))
	for _, b := range candidates {
		records = append(records, s.scoreBead(ctx, b, closedChildren))
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].ID < records[j].ID
	})

	records = append(records, s.orphanRecords(ctx, seen)...)

	if len(records) > 0 && records[0].ID != "" {
		top := records[0]
		s.log.Record(telemetry.NewDiscoverySelect(top.ID, top.Action, top.Score, map[string]any{
			"priority": top.Priority,
			"phase":    top.Phase,
			"stale":    top.Stale,
		}))
	}
	return records, nil
}

// storeExists probes for the tracker's database under .beads.
func (s *Scanner) storeExists() bool {
	matches, err := s.repo.FindFiles(".beads", "*.db")
	return err == nil && len(matches) > 0
}

func hasLabel(b *tracker.Bead, label string) bool {
	for _, l := range b.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// closedEpicChildren returns the IDs of beads whose parent epic is closed.
// Walking children of closed epics keeps the cost proportional to the
// number of closed epics instead of the size of the open backlog. All
// failures degrade to "no penalty".
func (s *Scanner) closedEpicChildren(ctx context.Context) map[string]bool {
	children := make(map[string]bool)
	closed, err := s.tracker.List(ctx, tracker.StatusClosed)
	if err != nil {
		return children
	}
	for _, b := range closed {
		if b == nil || b.BeadType != tracker.TypeEpic {
			continue
		}
		deps, err := s.tracker.DependenciesOf(ctx, b.ID, tracker.DepDown, "parent-child")
		if err != nil {
			continue
		}
		for _, child := range deps {
			if child != nil {
				children[child.ID] = true
			}
		}
	}
	return children
}

func (s *Scanner) scoreBead(ctx context.Context, b *tracker.Bead, closedChildren map[string]bool) *ScoreRecord {
	p := s.store.GetPhase(ctx, b.ID)
	action, artifactPath := s.inferAction(b, p)
	stale := s.isStale(b, artifactPath)

	rec := &ScoreRecord{
		ID:           b.ID,
		Title:        b.Title,
		Priority:     b.Priority,
		Status:       string(b.Status),
		Phase:        string(p),
		Action:       action,
		ArtifactPath: artifactPath,
		Stale:        stale,
	}

	score := priorityScore(b.Priority) + phaseScore(p) + recencyScore(b.UpdatedAt, s.now())
	if stale {
		score -= stalePenalty
	}
	if closedChildren[b.ID] {
		score -= parentClosedPenalty
		rec.Penalties = append(rec.Penalties, PenaltyParentEpicClosed)
	}
	if s.claimedByOther(ctx, b.ID) {
		score -= claimPenalty
		rec.Penalties = append(rec.Penalties, PenaltyClaimedByOther)
	}
	rec.Score = score
	return rec
}

// inferAction picks the recommended next step. A recorded phase wins;
// without one the artifacts on disk decide, and an in-progress bead with
// no artifacts at all is simply continued.
func (s *Scanner) inferAction(b *tracker.Bead, p phase.Phase) (string, string) {
	switch p {
	case phase.Brainstorm, phase.BrainstormReviewed:
		return ActionStrategize, artifact.FindForBead(s.repo, artifact.CategoryBrainstorms, b.ID)
	case phase.Strategized:
		return ActionPlan, artifact.FindForBead(s.repo, artifact.CategoryBrainstorms, b.ID)
	case phase.Planned, phase.PlanReviewed:
		return ActionExecute, artifact.FindForBead(s.repo, artifact.CategoryPlans, b.ID)
	case phase.Executing:
		return ActionContinue, artifact.FindForBead(s.repo, artifact.CategoryPlans, b.ID)
	case phase.Shipping:
		return ActionShip, artifact.FindForBead(s.repo, artifact.CategoryPlans, b.ID)
	case phase.Done:
		return ActionClosed, ""
	}

	if b.Status == tracker.StatusInProgress {
		return ActionContinue, artifact.FindForBead(s.repo, artifact.CategoryPlans, b.ID)
	}
	if path := artifact.FindForBead(s.repo, artifact.CategoryPlans, b.ID); path != "" {
		return ActionExecute, path
	}
	if path := artifact.FindForBead(s.repo, artifact.CategoryPRDs, b.ID); path != "" {
		return ActionPlan, path
	}
	if path := artifact.FindForBead(s.repo, artifact.CategoryBrainstorms, b.ID); path != "" {
		return ActionStrategize, path
	}
	return ActionBrainstorm, ""
}

// isStale compares the plan artifact's modification time, or failing that
// the bead's own updated-at, against the staleness window. Errors default
// to not-stale to avoid false positives from transient filesystem issues.
func (s *Scanner) isStale(b *tracker.Bead, artifactPath string) bool {
	cutoff := s.now().Add(-s.cfg.DiscoveryStaleAfter)
	if artifactPath != "" {
		info, err := os.Stat(filepath.Join(s.repo.Root(), artifactPath))
		if err == nil {
			return info.ModTime().Before(cutoff)
		}
	}
	if b.UpdatedAt.IsZero() {
		return false
	}
	return b.UpdatedAt.Before(cutoff)
}

// claimedByOther reports whether another session holds a fresh claim on
// the bead. A claim past the freshness window is treated as abandoned and
// released here as a scan side effect; racing scanners settle on
// last-write-wins.
func (s *Scanner) claimedByOther(ctx context.Context, id string) bool {
	claim, err := s.state.Claim(ctx, id)
	if err != nil || claim == nil {
		return false
	}
	if claim.Owner == s.session {
		return false
	}
	age := s.now().Sub(claim.ClaimedAt)
	if claim.ClaimedAt.IsZero() || age > s.cfg.ClaimFreshness {
		if err := s.state.ReleaseClaim(ctx, id); err == nil {
			s.log.Record(telemetry.NewClaimReleased(id, claim.Owner, age))
			// Best-effort audit trail on the bead itself.
			_ = s.tracker.AppendNote(ctx, id,
				fmt.Sprintf("gait: released abandoned claim held by %s", claim.Owner))
		}
		return false
	}
	return true
}

// orphanRecords surfaces artifacts that reference no bead, or reference a
// bead the tracker no longer knows. They carry no score and trail every
// ranked bead, in stable path order.
func (s *Scanner) orphanRecords(ctx context.Context, known map[string]bool) []*ScoreRecord {
	var orphans []*ScoreRecord
	resolved := make(map[string]bool)
	for id := range known {
		resolved[id] = true
	}

	for _, cat := range artifact.Tracked {
		paths, err := s.repo.FindFiles(cat.Dir(), "*.md")
		if err != nil {
			continue
		}
		for _, path := range paths {
			content, err := s.repo.ReadFile(path)
			if err != nil {
				continue
			}
			if s.hasLiveRef(ctx, content, resolved) {
				continue
			}
			orphans = append(orphans, &ScoreRecord{
				Title:        filepath.Base(path),
				Priority:     2,
				Action:       ActionCreateBead,
				ArtifactPath: path,
				Orphan:       true,
			})
		}
	}

	sort.Slice(orphans, func(i, j int) bool {
		return orphans[i].ArtifactPath < orphans[j].ArtifactPath
	})
	return orphans
}

// hasLiveRef reports whether the content references at least one bead that
// resolves in the tracker. Lookups are cached across artifacts within a
// single scan pass.
func (s *Scanner) hasLiveRef(ctx context.Context, content []byte, resolved map[string]bool) bool {
	for _, id := range artifact.ExtractRefs(content) {
		if resolved[id] {
			return true
		}
		if b, err := s.tracker.Show(ctx, id); err == nil && b != nil {
			resolved[id] = true
			return true
		}
	}
	return false
}
