package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/steveyegge/gait/internal/tracker"
)

// briefCachePath holds the cached summary, relative to the project root.
// Living inside .beads keys the cache to the project naturally.
var briefCachePath = filepath.Join(".beads", "gait-brief.json")

// briefCache distinguishes "no work" from "not yet cached": an empty
// backlog is a cacheable answer.
type briefCache struct {
	Summary     string    `json:"summary"`
	NoWork      bool      `json:"no_work"`
	GeneratedAt time.Time `json:"generated_at"`
}

var actionVerbs = map[string]string{
	ActionBrainstorm: "Brainstorm",
	ActionStrategize: "Strategize",
	ActionPlan:       "Plan",
	ActionExecute:    "Execute",
	ActionContinue:   "Continue",
	ActionShip:       "Ship",
	ActionClosed:     "Close",
}

// BriefScan returns a one-line backlog summary, or empty when there is no
// actionable work. Results are cached for the configured TTL.
func (s *Scanner) BriefScan(ctx context.Context) (string, error) {
	if cached, ok := s.readBriefCache(); ok {
		if cached.NoWork {
			return "", nil
		}
		return cached.Summary, nil
	}

	records, err := s.Scan(ctx)
	if err != nil {
		return "", err
	}

	summary := buildBrief(records)
	s.writeBriefCache(&briefCache{
		Summary:     summary,
		NoWork:      summary == "",
		GeneratedAt: s.now(),
	})
	return summary, nil
}

func buildBrief(records []*ScoreRecord) string {
	var open, inProgress int
	var top *ScoreRecord
	for _, rec := range records {
		if rec.Orphan {
			continue
		}
		if top == nil {
			top = rec
		}
		switch tracker.Status(rec.Status) {
		case tracker.StatusOpen:
			open++
		case tracker.StatusInProgress:
			inProgress++
		}
	}
	if top == nil {
		return ""
	}

	verb := actionVerbs[top.Action]
	if verb == "" {
		verb = top.Action
	}
	return fmt.Sprintf("%d open beads (%d in-progress). Top: %s %s — %s (P%d)",
		open, inProgress, verb, top.ID, top.Title, top.Priority)
}

func (s *Scanner) readBriefCache() (*briefCache, bool) {
	data, err := s.repo.ReadFile(briefCachePath)
	if err != nil {
		return nil, false
	}
	var cached briefCache
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false
	}
	if s.now().Sub(cached.GeneratedAt) > s.cfg.BriefCacheTTL {
		return nil, false
	}
	return &cached, true
}

func (s *Scanner) writeBriefCache(cached *briefCache) {
	data, err := json.Marshal(cached)
	if err != nil {
		return
	}
	// Best-effort.
	_ = s.repo.WriteFile(briefCachePath, data)
}
