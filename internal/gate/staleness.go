package gate

import (
	"github.com/steveyegge/gait/internal/repo"
	"github.com/steveyegge/gait/internal/review"
)

// StalenessStatus is the outcome of comparing a review record against the
// artifact's commit history.
type StalenessStatus string

const (
	// StalenessFresh means the review postdates every change to the artifact.
	StalenessFresh StalenessStatus = "fresh"
	// StalenessStale means the artifact changed after it was reviewed.
	StalenessStale StalenessStatus = "stale"
	// StalenessNone means no review record exists for the pair.
	StalenessNone StalenessStatus = "none"
	// StalenessUnknown means the comparison could not be made.
	StalenessUnknown StalenessStatus = "unknown"
)

// Staleness carries the status plus, for the unknown case, the error
// classification strict mode acts on.
type Staleness struct {
	Status StalenessStatus
	Class  ErrorClass
	Reason string
}

// CheckStaleness decides whether the review covering a bead's artifact is
// still current. A missing artifact path or missing review is StalenessNone;
// an unreadable reviewed-at timestamp is unknown/permanent; a failed commit
// history query is unknown/transient.
func CheckStaleness(r repo.Repository, beadID, artifactPath string) Staleness {
	if artifactPath == "" {
		return Staleness{Status: StalenessNone}
	}
	rec, err := review.Find(r, beadID, artifactPath)
	if err != nil {
		return Staleness{Status: StalenessUnknown, Class: ClassTransient, Reason: "review_scan_failed"}
	}
	if rec == nil {
		return Staleness{Status: StalenessNone}
	}
	reviewedAt, err := rec.ReviewedTime()
	if err != nil {
		return Staleness{Status: StalenessUnknown, Class: ClassPermanent, Reason: "reviewed_at_unreadable"}
	}
	commits, err := r.CommitsSince(artifactPath, reviewedAt)
	if err != nil {
		return Staleness{Status: StalenessUnknown, Class: ClassTransient, Reason: "commit_history_unavailable"}
	}
	if len(commits) > 0 {
		return Staleness{Status: StalenessStale}
	}
	return Staleness{Status: StalenessFresh}
}
