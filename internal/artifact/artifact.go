// Package artifact manages the markdown artifacts backing a bead's
// lifecycle: plans, brainstorms, and PRDs under the project's history
// directory. It owns the embedded phase header (the secondary persistence
// layer for phase state) and the word-boundary-safe bead reference search
// used by discovery.
package artifact

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/steveyegge/gait/internal/phase"
	"github.com/steveyegge/gait/internal/repo"
)

// Category identifies a tracked artifact directory.
type Category string

const (
	CategoryPlans       Category = "plans"
	CategoryBrainstorms Category = "brainstorms"
	CategoryPRDs        Category = "prds"
)

// Dir returns the category's directory relative to the project root.
func (c Category) Dir() string {
	return "history/" + string(c)
}

// Tracked lists the categories discovery scans, in action-precedence order
// (a plan beats a PRD beats a brainstorm when inferring the next action).
var Tracked = []Category{CategoryPlans, CategoryPRDs, CategoryBrainstorms}

// headerAllowed lists the categories that may carry a phase header. PRDs
// are shared across beads and must not carry a single-bead phase marker.
var headerAllowed = map[Category]bool{
	CategoryPlans:       true,
	CategoryBrainstorms: true,
}

// CategoryOf returns the tracked category a path belongs to, if any.
func CategoryOf(path string) (Category, bool) {
	normalized := strings.ReplaceAll(path, "\\", "/")
	for _, c := range Tracked {
		if strings.Contains(normalized, "/"+string(c)+"/") || strings.HasPrefix(normalized, c.Dir()+"/") {
			return c, true
		}
	}
	return "", false
}

// HeaderAllowed reports whether a path may carry a phase header.
func HeaderAllowed(path string) bool {
	c, ok := CategoryOf(path)
	return ok && headerAllowed[c]
}

const (
	phaseMarkerPrefix = "**Phase:**"
	beadAnchorPrefix  = "**Bead:**"
)

// markerPattern matches a phase marker line and captures the phase token,
// ignoring any trailing timestamp annotation.
var markerPattern = regexp.MustCompile(`^\*\*Phase:\*\*\s*([a-z-]+)`)

func markerLine(p phase.Phase, now time.Time) string {
	return fmt.Sprintf("%s %s (updated %s)", phaseMarkerPrefix, p, now.UTC().Format(time.RFC3339))
}

// WriteHeader upserts the phase marker line in an artifact. Exactly one
// marker line results, placed (in order of preference) where a marker
// already was, after the bead anchor line, or after the first top-level
// heading. Missing file, empty phase, or a path outside the header
// allow-list are silent no-ops, not errors.
func WriteHeader(r repo.Repository, path string, p phase.Phase, now time.Time) error {
	if path == "" || p == "" || !HeaderAllowed(path) {
		return nil
	}

	content, err := r.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	lines := strings.Split(string(content), "\n")
	marker := markerLine(p, now)

	// (a) Replace an existing marker in place.
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), phaseMarkerPrefix) {
			lines[i] = marker
			return r.WriteFile(path, []byte(strings.Join(lines, "\n")))
		}
	}

	// (b) Insert after the bead anchor line.
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), beadAnchorPrefix) {
			lines = insertAfter(lines, i, marker)
			return r.WriteFile(path, []byte(strings.Join(lines, "\n")))
		}
	}

	// (c) Insert after the first top-level heading.
	for i, line := range lines {
		if strings.HasPrefix(line, "# ") {
			lines = insertAfter(lines, i, marker)
			return r.WriteFile(path, []byte(strings.Join(lines, "\n")))
		}
	}

	// No heading at all: prepend.
	lines = append([]string{marker}, lines...)
	return r.WriteFile(path, []byte(strings.Join(lines, "\n")))
}

func insertAfter(lines []string, i int, line string) []string {
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:i+1]...)
	out = append(out, line)
	out = append(out, lines[i+1:]...)
	return out
}

// ReadHeader extracts the phase from the first marker line of an artifact.
// Empty on missing file, missing marker, or an unrecognized phase token.
func ReadHeader(r repo.Repository, path string) phase.Phase {
	if path == "" {
		return ""
	}
	content, err := r.ReadFile(path)
	if err != nil {
		return ""
	}

	for _, line := range strings.Split(string(content), "\n") {
		m := markerPattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		if p, ok := phase.Parse(m[1]); ok {
			return p
		}
		return ""
	}
	return ""
}

// refPattern builds a word-boundary-safe matcher for a bead ID. Bead IDs
// contain hyphens, so the boundary set excludes alphanumerics and hyphens:
// a reference to gt-123 must not satisfy a lookup for gt-1.
func refPattern(beadID string) *regexp.Regexp {
	return regexp.MustCompile(`(^|[^A-Za-z0-9-])` + regexp.QuoteMeta(beadID) + `($|[^A-Za-z0-9-])`)
}

// ContainsRef reports whether content references the bead ID as a whole
// token.
func ContainsRef(content []byte, beadID string) bool {
	if beadID == "" {
		return false
	}
	return refPattern(beadID).Match(content)
}

// FindForBead scans a category directory for the first artifact referencing
// the bead ID. Returns "" when no artifact matches. Read failures on
// individual files are skipped; discovery prefers a partial answer over
// none.
func FindForBead(r repo.Repository, c Category, beadID string) string {
	paths, err := r.FindFiles(c.Dir(), "*.md")
	if err != nil {
		return ""
	}
	for _, path := range paths {
		content, err := r.ReadFile(path)
		if err != nil {
			continue
		}
		if ContainsRef(content, beadID) {
			return path
		}
	}
	return ""
}

// ExtractRefs returns all bead-ID-shaped tokens referenced in content,
// used by orphan detection to resolve artifacts back to beads. The shape
// is a lowercase prefix, a hyphen, and an alphanumeric suffix containing
// at least one digit (gt-12, vc-a3f9). The digit requirement keeps prose
// like "plan-reviewed" from reading as a bead ID.
var (
	refTokenPattern = regexp.MustCompile(`[A-Za-z0-9-]+`)
	beadIDShape     = regexp.MustCompile(`^[a-z][a-z0-9]*-[a-z0-9]*[0-9][a-zA-Z0-9]*$`)
)

func ExtractRefs(content []byte) []string {
	seen := make(map[string]bool)
	var refs []string
	for _, tok := range refTokenPattern.FindAll(content, -1) {
		id := string(tok)
		if !beadIDShape.MatchString(id) {
			continue
		}
		if !seen[id] {
			seen[id] = true
			refs = append(refs, id)
		}
	}
	return refs
}
