package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.False(t, cfg.StrictMode)
	assert.False(t, cfg.DisableGates)
	assert.Empty(t, cfg.SkipReason)
	assert.Empty(t, cfg.LaneFilter)
	assert.Equal(t, 2*time.Hour, cfg.ClaimFreshness)
	assert.Equal(t, 48*time.Hour, cfg.DiscoveryStaleAfter)
	assert.Equal(t, 3, cfg.DependencyRetries)
	assert.Equal(t, 60*time.Second, cfg.BriefCacheTTL)
}

func TestLoadFromFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".beads"), 0755))

	content := []byte("strict_mode: true\nlane_filter: backend\nclaim_freshness: 30m\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, ".beads", "gait.yaml"), content, 0644))

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.True(t, cfg.StrictMode)
	assert.Equal(t, "backend", cfg.LaneFilter)
	assert.Equal(t, 30*time.Minute, cfg.ClaimFreshness)
	// Unset keys keep their defaults.
	assert.Equal(t, 3, cfg.DependencyRetries)
}

func TestLoadBadFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".beads"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".beads", "gait.yaml"), []byte("strict_mode: [not yaml"), 0644))

	_, err := Load(root)
	assert.Error(t, err)
}

func TestNonsenseValuesFallBack(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".beads"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".beads", "gait.yaml"),
		[]byte("dependency_retries: -1\nbrief_cache_ttl: 0s\n"), 0644))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.DependencyRetries)
	assert.Equal(t, 60*time.Second, cfg.BriefCacheTTL)
}

func TestGatesDisabledEnvOverride(t *testing.T) {
	cfg := Defaults()
	assert.False(t, cfg.GatesDisabled())

	t.Setenv("GAIT_DISABLE_GATES", "1")
	assert.True(t, cfg.GatesDisabled())

	t.Setenv("GAIT_DISABLE_GATES", "0")
	assert.False(t, cfg.GatesDisabled())

	cfg.DisableGates = true
	assert.True(t, cfg.GatesDisabled())
}
