// Package review reads the structured review-findings records that
// reviewers leave under history/reviews. A record ties a bead (and
// usually one artifact) to a reviewed-at timestamp; the gate engine
// compares that timestamp against the artifact's commit history to decide
// whether an approval has gone stale.
package review

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/gait/internal/repo"
)

// Dir is the review records directory relative to the project root.
const Dir = "history/reviews"

// Record is one review-findings file.
type Record struct {
	Bead       string   `yaml:"bead"`
	Artifact   string   `yaml:"artifact"`
	Reviewer   string   `yaml:"reviewer"`
	ReviewedAt string   `yaml:"reviewed_at"`
	Verdict    string   `yaml:"verdict"`
	Findings   []string `yaml:"findings"`

	// Path is where the record was loaded from. Not part of the YAML.
	Path string `yaml:"-"`
}

// ReviewedTime parses the record's reviewed-at timestamp. An empty or
// malformed timestamp is a permanent metadata problem, never retried.
func (rec *Record) ReviewedTime() (time.Time, error) {
	if rec.ReviewedAt == "" {
		return time.Time{}, fmt.Errorf("review record %s has no reviewed_at", rec.Path)
	}
	ts, err := time.Parse(time.RFC3339, rec.ReviewedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("review record %s has malformed reviewed_at: %w", rec.Path, err)
	}
	return ts, nil
}

// Find locates the review record for a bead/artifact pair. The bead-id
// reference wins; a filename-substring match against the artifact is the
// fallback. Returns (nil, nil) when no review directory or no matching
// record exists. Unparsable record files are skipped, matching the
// prefer-a-partial-answer posture of the rest of the read paths.
func Find(r repo.Repository, beadID, artifactPath string) (*Record, error) {
	paths, err := r.FindFiles(Dir, "*.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to scan review records: %w", err)
	}
	if len(paths) == 0 {
		return nil, nil
	}

	var records []*Record
	for _, path := range paths {
		content, err := r.ReadFile(path)
		if err != nil {
			continue
		}
		var rec Record
		if err := yaml.Unmarshal(content, &rec); err != nil {
			continue
		}
		rec.Path = path
		records = append(records, &rec)
	}

	// Primary: explicit bead reference.
	if beadID != "" {
		for _, rec := range records {
			if rec.Bead == beadID {
				return rec, nil
			}
		}
	}

	// Fallback: the record names the artifact, or the record's own
	// filename shares the artifact's base name.
	if artifactPath != "" {
		base := strings.TrimSuffix(filepath.Base(artifactPath), filepath.Ext(artifactPath))
		for _, rec := range records {
			if rec.Artifact != "" && filepath.Base(rec.Artifact) == filepath.Base(artifactPath) {
				return rec, nil
			}
			if base != "" && strings.Contains(filepath.Base(rec.Path), base) {
				return rec, nil
			}
		}
	}

	return nil, nil
}
