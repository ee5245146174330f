// Package telemetry records gait's structured audit events.
//
// Events are appended as JSON lines to a per-project log file. Recording is
// strictly best-effort: gate decisions and phase writes must never fail
// because the log could not be written, so every sink swallows its own
// errors. Precise failure detail belongs here, not in return values: the
// public operations degrade to safe defaults and leave the explanation in
// the event stream.
package telemetry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of audit event.
type EventType string

const (
	// EventPhaseTransition records every attempted phase store write.
	EventPhaseTransition EventType = "phase_transition"
	// EventPhaseDesync records disagreement between the phase store and an
	// artifact header. Non-fatal; the store value wins.
	EventPhaseDesync EventType = "phase_desync"
	// EventGateCheck records a transition validity check and its outcome.
	EventGateCheck EventType = "gate_check"
	// EventPhaseAdvance records a completed phase advance.
	EventPhaseAdvance EventType = "phase_advance"
	// EventGateEnforce records a top-level gate enforcement decision.
	EventGateEnforce EventType = "gate_enforce"
	// EventDiscoverySelect records the top-ranked bead of a discovery scan.
	EventDiscoverySelect EventType = "discovery_select"
	// EventClaimReleased records an abandoned claim auto-released by a scan.
	EventClaimReleased EventType = "claim_released"
)

// Event is a single structured audit record. Every event carries at least
// the type and timestamp; the remaining fields are event-specific.
type Event struct {
	ID        string         `json:"id"`
	Event     EventType      `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Bead      string         `json:"bead,omitempty"`
	Phase     string         `json:"phase,omitempty"`
	Decision  string         `json:"decision,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Logger is the sink for audit events. Record must never panic and must
// not report failure.
type Logger interface {
	Record(e *Event)
}

// FileLogger appends events to a JSON-lines file, creating it on first use.
type FileLogger struct {
	path string
}

// DefaultLogPath returns the event log location for a project root.
func DefaultLogPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".beads", "gait-events.jsonl")
}

// NewFileLogger creates a logger appending to the given path.
func NewFileLogger(path string) *FileLogger {
	return &FileLogger{path: path}
}

// Record appends the event as one JSON line. All failures are swallowed:
// a broken log must never block a gate decision.
func (l *FileLogger) Record(e *Event) {
	if e == nil {
		return
	}
	line, err := json.Marshal(e)
	if err != nil {
		return
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	line = append(line, '\n')
	_, _ = f.Write(line)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(e *Event) {}

// Capture retains events in memory for test assertions.
type Capture struct {
	Events []*Event
}

func (c *Capture) Record(e *Event) {
	c.Events = append(c.Events, e)
}

// ByType returns the captured events of one type, in record order.
func (c *Capture) ByType(t EventType) []*Event {
	var out []*Event
	for _, e := range c.Events {
		if e.Event == t {
			out = append(out, e)
		}
	}
	return out
}

func newEvent(t EventType) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Event:     t,
		Timestamp: time.Now().UTC(),
	}
}

// NewPhaseTransition builds a phase_transition event.
func NewPhaseTransition(bead, phase, reason string) *Event {
	e := newEvent(EventPhaseTransition)
	e.Bead = bead
	e.Phase = phase
	e.Reason = reason
	return e
}

// NewPhaseDesync builds a phase_desync event recording both sources.
func NewPhaseDesync(bead, storePhase, artifactPhase, artifactPath string) *Event {
	e := newEvent(EventPhaseDesync)
	e.Bead = bead
	e.Phase = storePhase
	e.Data = map[string]any{
		"artifact_phase": artifactPhase,
		"artifact_path":  artifactPath,
	}
	return e
}

// NewGateCheck builds a gate_check event.
func NewGateCheck(bead, fromPhase, toPhase string, passed bool) *Event {
	e := newEvent(EventGateCheck)
	e.Bead = bead
	e.Phase = toPhase
	if passed {
		e.Decision = "pass"
	} else {
		e.Decision = "blocked"
	}
	e.Data = map[string]any{"from": fromPhase}
	return e
}

// NewPhaseAdvance builds a phase_advance event.
func NewPhaseAdvance(bead, phase, reason string) *Event {
	e := newEvent(EventPhaseAdvance)
	e.Bead = bead
	e.Phase = phase
	e.Reason = reason
	return e
}

// NewGateEnforce builds a gate_enforce event with the final decision
// (bypass, pass, pass-no-gate, warn, warn-stale, skip, block).
func NewGateEnforce(bead, targetPhase, decision, reason string) *Event {
	e := newEvent(EventGateEnforce)
	e.Bead = bead
	e.Phase = targetPhase
	e.Decision = decision
	e.Reason = reason
	return e
}

// NewDiscoverySelect builds a discovery_select event for a scan's top pick.
func NewDiscoverySelect(bead, action string, score int, breakdown map[string]any) *Event {
	e := newEvent(EventDiscoverySelect)
	e.Bead = bead
	e.Decision = action
	e.Data = map[string]any{"score": score}
	for k, v := range breakdown {
		e.Data[k] = v
	}
	return e
}

// NewClaimReleased builds a claim_released event.
func NewClaimReleased(bead, owner string, age time.Duration) *Event {
	e := newEvent(EventClaimReleased)
	e.Bead = bead
	e.Reason = "claim_expired"
	e.Data = map[string]any{
		"owner":       owner,
		"age_seconds": int64(age.Seconds()),
	}
	return e
}
