package discovery

import (
	"time"

	"github.com/steveyegge/gait/internal/phase"
)

// Score weights. Priority dominates: one priority tier (12) outweighs any
// difference phase and recency can produce at equal priority, and the
// penalties exist to push contested or doomed work below clean work of the
// same tier.
const (
	priorityStep = 12
	priorityMax  = 60

	recencyDay   = 20
	recencyTwo   = 15
	recencyWeek  = 10
	recencyFloor = 5

	stalePenalty        = 10
	parentClosedPenalty = 30
	claimPenalty        = 50
)

// phaseScores rewards work that is further along; finishing beats starting.
// An unset phase scores zero.
var phaseScores = map[phase.Phase]int{
	phase.Brainstorm:         3,
	phase.BrainstormReviewed: 7,
	phase.Strategized:        11,
	phase.Planned:            15,
	phase.PlanReviewed:       19,
	phase.Executing:          23,
	phase.Shipping:           26,
	phase.Done:               30,
}

func priorityScore(priority int) int {
	s := priorityMax - priority*priorityStep
	if s < 0 {
		return 0
	}
	if s > priorityMax {
		return priorityMax
	}
	return s
}

func phaseScore(p phase.Phase) int {
	return phaseScores[p]
}

func recencyScore(updatedAt, now time.Time) int {
	if updatedAt.IsZero() {
		return recencyFloor
	}
	age := now.Sub(updatedAt)
	switch {
	case age < 24*time.Hour:
		return recencyDay
	case age < 48*time.Hour:
		return recencyTwo
	case age < 7*24*time.Hour:
		return recencyWeek
	default:
		return recencyFloor
	}
}
