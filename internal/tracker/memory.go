package tracker

import (
	"context"
	"fmt"
	"sort"
)

// Memory is an in-memory Tracker used by tests, analogous to the ":memory:"
// database path the real tracker supports. Error injection hooks let tests
// exercise the fail-open and fail-closed paths without a live backend.
type Memory struct {
	beads map[string]*Bead
	state map[string]string // "<id>/<key>" -> value
	notes map[string][]string
	deps  map[string][]depEdge // child bead id -> edges to its parents

	// FailList, FailShow, FailState force the corresponding calls to error.
	// FailListStatus fails List for one specific status only.
	FailList       bool
	FailListStatus Status
	FailShow       bool
	FailState      bool
}

type depEdge struct {
	parentID string
	depType  string
}

// NewMemory creates an empty in-memory tracker.
func NewMemory() *Memory {
	return &Memory{
		beads: make(map[string]*Bead),
		state: make(map[string]string),
		notes: make(map[string][]string),
		deps:  make(map[string][]depEdge),
	}
}

// Add registers a bead.
func (m *Memory) Add(b *Bead) {
	m.beads[b.ID] = b
}

// AddParent records a parent-child edge from child up to parent.
func (m *Memory) AddParent(childID, parentID string) {
	m.AddDependency(childID, parentID, "parent-child")
}

// AddDependency records that child depends on parent with the given type.
func (m *Memory) AddDependency(childID, parentID, depType string) {
	m.deps[childID] = append(m.deps[childID], depEdge{parentID: parentID, depType: depType})
}

// Notes returns the audit notes appended to a bead.
func (m *Memory) Notes(id string) []string {
	return m.notes[id]
}

func (m *Memory) List(ctx context.Context, status Status) ([]*Bead, error) {
	if m.FailList || (m.FailListStatus != "" && m.FailListStatus == status) {
		return nil, fmt.Errorf("tracker unavailable")
	}
	var out []*Bead
	for _, b := range m.beads {
		if b.Status == status {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Show(ctx context.Context, id string) (*Bead, error) {
	if m.FailShow {
		return nil, fmt.Errorf("tracker unavailable")
	}
	b, ok := m.beads[id]
	if !ok {
		return nil, fmt.Errorf("bead %s not found", id)
	}
	return b, nil
}

func (m *Memory) GetState(ctx context.Context, id, key string) (string, error) {
	if m.FailState {
		return "", fmt.Errorf("tracker unavailable")
	}
	return m.state[id+"/"+key], nil
}

func (m *Memory) SetState(ctx context.Context, id, key, value string) error {
	if m.FailState {
		return fmt.Errorf("tracker unavailable")
	}
	if value == "" {
		delete(m.state, id+"/"+key)
		return nil
	}
	m.state[id+"/"+key] = value
	return nil
}

func (m *Memory) AppendNote(ctx context.Context, id, text string) error {
	m.notes[id] = append(m.notes[id], text)
	return nil
}

func (m *Memory) DependenciesOf(ctx context.Context, id string, direction DepDirection, depType string) ([]*Bead, error) {
	var out []*Bead
	switch direction {
	case DepUp:
		for _, edge := range m.deps[id] {
			if depType != "" && edge.depType != depType {
				continue
			}
			if parent, ok := m.beads[edge.parentID]; ok {
				out = append(out, parent)
			}
		}
	case DepDown:
		var childIDs []string
		for childID, edges := range m.deps {
			for _, edge := range edges {
				if edge.parentID != id {
					continue
				}
				if depType != "" && edge.depType != depType {
					continue
				}
				childIDs = append(childIDs, childID)
				break
			}
		}
		sort.Strings(childIDs)
		for _, childID := range childIDs {
			if child, ok := m.beads[childID]; ok {
				out = append(out, child)
			}
		}
	}
	return out, nil
}
