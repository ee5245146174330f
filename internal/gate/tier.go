package gate

import (
	"context"

	"github.com/steveyegge/gait/internal/tracker"
)

// Tier is the enforcement strictness class derived from bead priority.
// It is computed per decision, never stored.
type Tier string

const (
	// TierHard blocks invalid transitions for P0-P1 beads.
	TierHard Tier = "hard"
	// TierSoft warns on invalid transitions for P2-P3 beads.
	TierSoft Tier = "soft"
	// TierNone applies no gate at all.
	TierNone Tier = "none"
)

// ErrorClass splits failures into the retryable and the hopeless.
type ErrorClass string

const (
	// ClassTransient failures may succeed on retry. Only the strict-mode
	// dependency probe actually retries them.
	ClassTransient ErrorClass = "transient"
	// ClassPermanent failures are malformed data and are never retried.
	ClassPermanent ErrorClass = "permanent"
)

// Structured reasons carried alongside an ErrorClass.
const (
	ReasonTrackerUnreachable    = "tracker_unreachable"
	ReasonPriorityMalformed     = "priority_malformed"
	ReasonMissingID             = "missing_id"
	ReasonDependencyUnavailable = "dependency_unavailable"
)

// ResolveTier maps a bead's priority to an enforcement tier. A failed
// lookup returns TierNone plus a classification the caller consumes as
// data: legacy mode downgrades silently, strict mode escalates.
func ResolveTier(ctx context.Context, t tracker.Tracker, id string) (Tier, ErrorClass, string) {
	if id == "" {
		return TierNone, "", ReasonMissingID
	}
	bead, err := t.Show(ctx, id)
	if err != nil || bead == nil {
		return TierNone, ClassTransient, ReasonTrackerUnreachable
	}
	if bead.Priority < 0 {
		return TierNone, ClassPermanent, ReasonPriorityMalformed
	}
	switch {
	case bead.Priority <= 1:
		return TierHard, "", ""
	case bead.Priority <= 3:
		return TierSoft, "", ""
	default:
		return TierNone, "", ""
	}
}
