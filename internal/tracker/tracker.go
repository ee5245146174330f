// Package tracker defines the narrow interface gait uses to talk to the
// beads issue tracker, plus a typed view over the tracker's generic
// per-bead state bag.
//
// The tracker owns the bead records. Gait only reads bead metadata and
// reads/writes three named state keys (phase, claimed_by, claimed_at); it
// never caches bead state beyond a single scan pass. All calls may fail and
// callers are expected to treat failure as data, not as an exception.
package tracker

import (
	"context"
	"time"
)

// Status represents the tracker's view of a bead's workflow state.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusClosed     Status = "closed"
)

// BeadType categorizes the kind of work. Only epics matter to gait (for the
// parent-epic-closed scan penalty); everything else is passed through.
type BeadType string

const (
	TypeBug     BeadType = "bug"
	TypeFeature BeadType = "feature"
	TypeTask    BeadType = "task"
	TypeEpic    BeadType = "epic"
	TypeChore   BeadType = "chore"
)

// Bead is the subset of a tracker work item gait cares about.
type Bead struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    Status    `json:"status"`
	Priority  int       `json:"priority"` // 0-4, lower is more urgent
	BeadType  BeadType  `json:"issue_type"`
	Labels    []string  `json:"labels,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DepDirection selects which side of a dependency edge to walk.
type DepDirection string

const (
	// DepUp walks toward the beads this bead depends on (its parents).
	DepUp DepDirection = "up"
	// DepDown walks toward the beads that depend on this bead.
	DepDown DepDirection = "down"
)

// Tracker is the interface to the external issue tracker. Implementations
// must be safe for use by short-lived single-threaded invocations; gait
// relies on the tracker's own atomicity for single-field state writes and
// does not layer locking on top.
type Tracker interface {
	// List returns beads with the given status.
	List(ctx context.Context, status Status) ([]*Bead, error)

	// Show returns a single bead by ID.
	Show(ctx context.Context, id string) (*Bead, error)

	// GetState reads a named state value for a bead. A missing key returns
	// ("", nil): unset and absent are the same thing to the tracker.
	GetState(ctx context.Context, id, key string) (string, error)

	// SetState writes a named state value for a bead. The write is atomic
	// at the single-key level.
	SetState(ctx context.Context, id, key, value string) error

	// AppendNote appends an audit note to a bead's history.
	AppendNote(ctx context.Context, id, text string) error

	// DependenciesOf returns the beads related to id in the given direction,
	// optionally restricted to one dependency type (e.g. "parent-child").
	DependenciesOf(ctx context.Context, id string, direction DepDirection, depType string) ([]*Bead, error)
}

// State keys gait owns on the tracker's generic per-bead state bag. Nothing
// outside this package should use the raw key strings.
const (
	stateKeyPhase     = "phase"
	stateKeyClaimedBy = "claimed_by"
	stateKeyClaimedAt = "claimed_at"
)

// Claim describes who holds a bead and since when.
type Claim struct {
	Owner     string
	ClaimedAt time.Time
}

// StateView is a typed adapter over the tracker's untyped key/value state.
// It keeps the string keys out of the rest of the codebase.
type StateView struct {
	tracker Tracker
}

// NewStateView wraps a tracker in the typed state adapter.
func NewStateView(t Tracker) *StateView {
	return &StateView{tracker: t}
}

// Phase reads the recorded phase string for a bead. Empty means unset.
func (v *StateView) Phase(ctx context.Context, id string) (string, error) {
	return v.tracker.GetState(ctx, id, stateKeyPhase)
}

// SetPhase records the phase string for a bead.
func (v *StateView) SetPhase(ctx context.Context, id, value string) error {
	return v.tracker.SetState(ctx, id, stateKeyPhase, value)
}

// Claim reads the claim state for a bead. Returns (nil, nil) when the bead
// is unclaimed. A claim with an unparsable timestamp is reported with a
// zero ClaimedAt rather than dropped, so callers can decide how to treat it.
func (v *StateView) Claim(ctx context.Context, id string) (*Claim, error) {
	owner, err := v.tracker.GetState(ctx, id, stateKeyClaimedBy)
	if err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, nil
	}

	claim := &Claim{Owner: owner}
	raw, err := v.tracker.GetState(ctx, id, stateKeyClaimedAt)
	if err == nil && raw != "" {
		if ts, parseErr := time.Parse(time.RFC3339, raw); parseErr == nil {
			claim.ClaimedAt = ts
		}
	}
	return claim, nil
}

// SetClaim records a claim for a bead.
func (v *StateView) SetClaim(ctx context.Context, id, owner string, at time.Time) error {
	if err := v.tracker.SetState(ctx, id, stateKeyClaimedBy, owner); err != nil {
		return err
	}
	return v.tracker.SetState(ctx, id, stateKeyClaimedAt, at.UTC().Format(time.RFC3339))
}

// ReleaseClaim clears the claim state for a bead. Clearing an already-clear
// claim is a no-op; racing releasers settle on last-write-wins.
func (v *StateView) ReleaseClaim(ctx context.Context, id string) error {
	if err := v.tracker.SetState(ctx, id, stateKeyClaimedBy, ""); err != nil {
		return err
	}
	return v.tracker.SetState(ctx, id, stateKeyClaimedAt, "")
}
