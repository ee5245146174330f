package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// BDCLI implements Tracker by shelling out to the bd command-line tool.
// Per-bead state lives in the bd key-value store under a gait namespace,
// one key per (bead, field) pair, so single-field writes inherit bd's own
// atomicity.
type BDCLI struct {
	bdPath string
}

// NewBDCLI creates a bd-backed tracker. It verifies the bd binary is
// available. An explicit path wins, then the GAIT_BD_PATH environment
// variable, then PATH lookup.
func NewBDCLI(path string) (*BDCLI, error) {
	bdPath := path
	if bdPath == "" {
		bdPath = os.Getenv("GAIT_BD_PATH")
	}
	if bdPath == "" {
		found, err := exec.LookPath("bd")
		if err != nil {
			return nil, fmt.Errorf("bd not found in PATH: %w", err)
		}
		bdPath = found
	}
	return &BDCLI{bdPath: bdPath}, nil
}

// stateKey namespaces a per-bead field in bd's flat key-value store.
func stateKey(id, key string) string {
	return fmt.Sprintf("gait.%s.%s", id, key)
}

func (b *BDCLI) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, b.bdPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("bd %s: %s", args[0], msg)
	}
	return stdout.Bytes(), nil
}

// List returns beads with the given status.
func (b *BDCLI) List(ctx context.Context, status Status) ([]*Bead, error) {
	out, err := b.run(ctx, "list", "--status", string(status), "--json")
	if err != nil {
		return nil, err
	}

	var beads []*Bead
	if err := json.Unmarshal(out, &beads); err != nil {
		return nil, fmt.Errorf("failed to parse bd list output: %w", err)
	}
	return beads, nil
}

// Show returns a single bead by ID.
func (b *BDCLI) Show(ctx context.Context, id string) (*Bead, error) {
	out, err := b.run(ctx, "show", id, "--json")
	if err != nil {
		return nil, err
	}

	// bd show emits a single-element array for a single ID.
	var beads []*Bead
	if err := json.Unmarshal(out, &beads); err != nil {
		// Older bd versions emit a bare object.
		var bead Bead
		if objErr := json.Unmarshal(out, &bead); objErr == nil && bead.ID != "" {
			return &bead, nil
		}
		return nil, fmt.Errorf("failed to parse bd show output: %w", err)
	}
	if len(beads) == 0 {
		return nil, fmt.Errorf("bead %s not found", id)
	}
	return beads[0], nil
}

// GetState reads a namespaced state value. A missing key reads as empty:
// bd reports missing keys as an error, which we collapse to ("", nil)
// because unset and absent are indistinguishable by design.
func (b *BDCLI) GetState(ctx context.Context, id, key string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("bead id is required")
	}
	out, err := b.run(ctx, "kv", "get", stateKey(id, key))
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// SetState writes a namespaced state value. An empty value clears the key.
func (b *BDCLI) SetState(ctx context.Context, id, key, value string) error {
	if id == "" {
		return fmt.Errorf("bead id is required")
	}
	if value == "" {
		_, err := b.run(ctx, "kv", "clear", stateKey(id, key))
		if err != nil && strings.Contains(err.Error(), "not found") {
			return nil
		}
		return err
	}
	_, err := b.run(ctx, "kv", "set", stateKey(id, key), value)
	return err
}

// AppendNote appends an audit comment to a bead.
func (b *BDCLI) AppendNote(ctx context.Context, id, text string) error {
	if id == "" {
		return fmt.Errorf("bead id is required")
	}
	_, err := b.run(ctx, "comments", "add", id, text)
	return err
}

// DependenciesOf returns related beads one hop away in the given direction.
func (b *BDCLI) DependenciesOf(ctx context.Context, id string, direction DepDirection, depType string) ([]*Bead, error) {
	args := []string{"dep", "tree", id, "--depth", "1", "--json"}
	if direction == DepDown {
		args = append(args, "--reverse")
	}
	out, err := b.run(ctx, args...)
	if err != nil {
		return nil, err
	}

	var nodes []struct {
		Bead
		Depth   int    `json:"depth"`
		DepType string `json:"dep_type"`
	}
	if err := json.Unmarshal(out, &nodes); err != nil {
		return nil, fmt.Errorf("failed to parse bd dep tree output: %w", err)
	}

	var related []*Bead
	for i := range nodes {
		if nodes[i].Depth == 0 {
			continue // the root is the queried bead itself
		}
		if depType != "" && nodes[i].DepType != depType {
			continue
		}
		bead := nodes[i].Bead
		related = append(related, &bead)
	}
	return related, nil
}
