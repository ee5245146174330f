// Package config loads gait's runtime configuration from the project's
// .beads directory and from GAIT_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds every recognized gait option. All fields have working
// defaults; a missing config file is not an error.
type Config struct {
	// StrictMode enables fail-closed enforcement for hard-tier gates.
	// Default false: all gate failures degrade to fail-open.
	StrictMode bool `mapstructure:"strict_mode"`

	// SkipReason is an audited override token. When set, a blocked
	// transition is recorded as a skip instead of failing.
	SkipReason string `mapstructure:"skip_reason"`

	// DisableGates is the global kill switch: every gate decision becomes
	// a logged bypass.
	DisableGates bool `mapstructure:"disable_gates"`

	// LaneFilter restricts discovery scans to beads carrying this label.
	LaneFilter string `mapstructure:"lane_filter"`

	// BDPath overrides PATH lookup for the bd binary.
	BDPath string `mapstructure:"bd_path"`

	// ClaimFreshness is how long a claim counts as active. Claims older
	// than this are treated as abandoned and auto-released by scans.
	ClaimFreshness time.Duration `mapstructure:"claim_freshness"`

	// DiscoveryStaleAfter is the artifact/update age beyond which a bead
	// is flagged stale in discovery results.
	DiscoveryStaleAfter time.Duration `mapstructure:"discovery_stale_after"`

	// DependencyRetries bounds the strict-mode sideband dependency probe.
	// Only transient failures are retried.
	DependencyRetries int `mapstructure:"dependency_retries"`

	// BriefCacheTTL bounds how long a brief-scan summary is reused.
	BriefCacheTTL time.Duration `mapstructure:"brief_cache_ttl"`
}

// Defaults returns the built-in policy values. The windows and retry count
// are policy knobs, not invariants; nothing downstream assumes their
// specific magnitudes beyond being positive.
func Defaults() *Config {
	return &Config{
		ClaimFreshness:      2 * time.Hour,
		DiscoveryStaleAfter: 48 * time.Hour,
		DependencyRetries:   3,
		BriefCacheTTL:       60 * time.Second,
	}
}

// Load reads configuration for the project rooted at projectRoot. Sources,
// in increasing precedence: built-in defaults, .beads/gait.yaml, GAIT_*
// environment variables.
func Load(projectRoot string) (*Config, error) {
	v := viper.New()

	defaults := Defaults()
	v.SetDefault("strict_mode", defaults.StrictMode)
	v.SetDefault("skip_reason", defaults.SkipReason)
	v.SetDefault("disable_gates", defaults.DisableGates)
	v.SetDefault("lane_filter", defaults.LaneFilter)
	v.SetDefault("bd_path", defaults.BDPath)
	v.SetDefault("claim_freshness", defaults.ClaimFreshness)
	v.SetDefault("discovery_stale_after", defaults.DiscoveryStaleAfter)
	v.SetDefault("dependency_retries", defaults.DependencyRetries)
	v.SetDefault("brief_cache_ttl", defaults.BriefCacheTTL)

	v.SetEnvPrefix("GAIT")
	v.AutomaticEnv()

	configPath := filepath.Join(projectRoot, ".beads", "gait.yaml")
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse gait config: %w", err)
	}

	// Guard against nonsensical values; fall back to defaults rather than
	// erroring so a bad config file cannot disable the tool.
	if cfg.ClaimFreshness <= 0 {
		cfg.ClaimFreshness = defaults.ClaimFreshness
	}
	if cfg.DiscoveryStaleAfter <= 0 {
		cfg.DiscoveryStaleAfter = defaults.DiscoveryStaleAfter
	}
	if cfg.DependencyRetries <= 0 {
		cfg.DependencyRetries = defaults.DependencyRetries
	}
	if cfg.BriefCacheTTL <= 0 {
		cfg.BriefCacheTTL = defaults.BriefCacheTTL
	}

	return &cfg, nil
}

// GatesDisabled reports whether the global kill switch is active, from
// either configuration or the GAIT_DISABLE_GATES environment variable.
func (c *Config) GatesDisabled() bool {
	if c.DisableGates {
		return true
	}
	switch os.Getenv("GAIT_DISABLE_GATES") {
	case "1", "true", "yes":
		return true
	}
	return false
}
