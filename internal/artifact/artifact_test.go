package artifact

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/gait/internal/phase"
	"github.com/steveyegge/gait/internal/repo"
)

func newRepo(t *testing.T) *repo.FS {
	t.Helper()
	fs, err := repo.NewFS(t.TempDir())
	require.NoError(t, err)
	return fs
}

var testTime = time.Date(2026, 6, 1, 10, 30, 0, 0, time.UTC)

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		path string
		want Category
		ok   bool
	}{
		{"history/plans/gt-1-plan.md", CategoryPlans, true},
		{"history/brainstorms/idea.md", CategoryBrainstorms, true},
		{"history/prds/auth.md", CategoryPRDs, true},
		{"/abs/project/history/plans/gt-1-plan.md", CategoryPlans, true},
		{"docs/readme.md", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := CategoryOf(tt.path)
		assert.Equal(t, tt.ok, ok, "path %q", tt.path)
		assert.Equal(t, tt.want, got, "path %q", tt.path)
	}
}

func TestHeaderAllowedExcludesPRDs(t *testing.T) {
	assert.True(t, HeaderAllowed("history/plans/gt-1-plan.md"))
	assert.True(t, HeaderAllowed("history/brainstorms/gt-1.md"))
	assert.False(t, HeaderAllowed("history/prds/shared.md"), "PRDs are shared across beads")
	assert.False(t, HeaderAllowed("README.md"))
}

func TestWriteHeaderReplacesInPlace(t *testing.T) {
	fs := newRepo(t)
	path := "history/plans/gt-1-plan.md"
	require.NoError(t, fs.WriteFile(path, []byte("# Plan\n**Phase:** brainstorm (updated 2026-01-01T00:00:00Z)\n\nBody.\n")))

	require.NoError(t, WriteHeader(fs, path, phase.Planned, testTime))

	content, err := fs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(content), "**Phase:**"), "marker must not duplicate")
	assert.Contains(t, string(content), "**Phase:** planned (updated 2026-06-01T10:30:00Z)")
	assert.NotContains(t, string(content), "brainstorm")
}

func TestWriteHeaderIdempotent(t *testing.T) {
	fs := newRepo(t)
	path := "history/plans/gt-1-plan.md"
	require.NoError(t, fs.WriteFile(path, []byte("# Plan\n\nBody.\n")))

	require.NoError(t, WriteHeader(fs, path, phase.Executing, testTime))
	require.NoError(t, WriteHeader(fs, path, phase.Executing, testTime.Add(time.Hour)))

	content, err := fs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(content), "**Phase:**"))
	assert.Contains(t, string(content), "11:30:00Z", "timestamp should be updated, not duplicated")
}

func TestWriteHeaderAfterAnchor(t *testing.T) {
	fs := newRepo(t)
	path := "history/brainstorms/gt-2.md"
	require.NoError(t, fs.WriteFile(path, []byte("# Brainstorm\n**Bead:** gt-2\n\nIdeas.\n")))

	require.NoError(t, WriteHeader(fs, path, phase.Brainstorm, testTime))

	content, err := fs.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(content), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "**Bead:** gt-2", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "**Phase:** brainstorm"), "marker goes right after the anchor, got %q", lines[2])
}

func TestWriteHeaderAfterFirstHeading(t *testing.T) {
	fs := newRepo(t)
	path := "history/plans/gt-3-plan.md"
	require.NoError(t, fs.WriteFile(path, []byte("# The Plan\n\n## Steps\n")))

	require.NoError(t, WriteHeader(fs, path, phase.Planned, testTime))

	content, err := fs.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(content), "\n")
	assert.Equal(t, "# The Plan", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "**Phase:** planned"))
}

func TestWriteHeaderNoOps(t *testing.T) {
	fs := newRepo(t)

	// Missing file.
	require.NoError(t, WriteHeader(fs, "history/plans/absent.md", phase.Planned, testTime))

	// Empty phase.
	require.NoError(t, fs.WriteFile("history/plans/gt-4-plan.md", []byte("# Plan\n")))
	require.NoError(t, WriteHeader(fs, "history/plans/gt-4-plan.md", "", testTime))
	content, err := fs.ReadFile("history/plans/gt-4-plan.md")
	require.NoError(t, err)
	assert.NotContains(t, string(content), "**Phase:**")

	// Outside the allow-list.
	require.NoError(t, fs.WriteFile("history/prds/shared.md", []byte("# PRD\n")))
	require.NoError(t, WriteHeader(fs, "history/prds/shared.md", phase.Planned, testTime))
	content, err = fs.ReadFile("history/prds/shared.md")
	require.NoError(t, err)
	assert.NotContains(t, string(content), "**Phase:**")
}

func TestReadHeader(t *testing.T) {
	fs := newRepo(t)
	path := "history/plans/gt-5-plan.md"
	require.NoError(t, fs.WriteFile(path, []byte("# Plan\n**Phase:** plan-reviewed (updated 2026-06-01T10:30:00Z)\n")))

	assert.Equal(t, phase.PlanReviewed, ReadHeader(fs, path))
}

func TestReadHeaderEmptyCases(t *testing.T) {
	fs := newRepo(t)

	assert.Empty(t, ReadHeader(fs, "history/plans/missing.md"))
	assert.Empty(t, ReadHeader(fs, ""))

	require.NoError(t, fs.WriteFile("history/plans/no-marker.md", []byte("# Plan\nBody.\n")))
	assert.Empty(t, ReadHeader(fs, "history/plans/no-marker.md"))

	require.NoError(t, fs.WriteFile("history/plans/bad-marker.md", []byte("**Phase:** warp-speed\n")))
	assert.Empty(t, ReadHeader(fs, "history/plans/bad-marker.md"))
}

func TestContainsRefWordBoundary(t *testing.T) {
	content := []byte("This plan covers gt-123 and also mentions xgt-12.\nSee gt-7.")

	assert.True(t, ContainsRef(content, "gt-123"))
	assert.True(t, ContainsRef(content, "gt-7"))
	assert.False(t, ContainsRef(content, "gt-1"), "gt-123 must not satisfy a lookup for gt-1")
	assert.False(t, ContainsRef(content, "gt-12"), "gt-123 and xgt-12 must not satisfy gt-12")
	assert.False(t, ContainsRef(content, ""))
}

func TestFindForBead(t *testing.T) {
	fs := newRepo(t)
	require.NoError(t, fs.WriteFile("history/plans/gt-1-plan.md", []byte("Plan for gt-1.")))
	require.NoError(t, fs.WriteFile("history/plans/gt-10-plan.md", []byte("Plan for gt-10.")))

	assert.Equal(t, "history/plans/gt-1-plan.md", FindForBead(fs, CategoryPlans, "gt-1"))
	assert.Equal(t, "history/plans/gt-10-plan.md", FindForBead(fs, CategoryPlans, "gt-10"))
	assert.Empty(t, FindForBead(fs, CategoryPlans, "gt-2"))
	assert.Empty(t, FindForBead(fs, CategoryBrainstorms, "gt-1"))
}

func TestExtractRefs(t *testing.T) {
	content := []byte("# Plan\n**Phase:** plan-reviewed\nRelates to gt-12 and vc-a3f9; gt-12 again.")

	refs := ExtractRefs(content)
	assert.Equal(t, []string{"gt-12", "vc-a3f9"}, refs)
	assert.NotContains(t, refs, "plan-reviewed", "phase names are not bead IDs")
}

func TestExtractRefsAdjacentIDs(t *testing.T) {
	// IDs separated by a single character must both be found.
	refs := ExtractRefs([]byte("Covers gt-1 gt-2"))
	assert.Equal(t, []string{"gt-1", "gt-2"}, refs)

	refs = ExtractRefs([]byte("gt-3,gt-4,gt-5"))
	assert.Equal(t, []string{"gt-3", "gt-4", "gt-5"}, refs)

	assert.Empty(t, ExtractRefs([]byte("gt-12-foo")), "hyphen-chained tokens are not IDs")
}
